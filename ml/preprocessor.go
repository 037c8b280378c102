package ml

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// PeriodPoint is one school's counts observed in one academic period.
type PeriodPoint struct {
	Period      float64
	Students    float64
	Enrollments float64
}

// TimePeriod maps year and semester onto a half-year axis: 2020 semester 2
// becomes 2020.5.
func TimePeriod(year, semester int) float64 {
	return float64(year) + float64(semester-1)*0.5
}

// PeriodSeries holds the per-period mean counts across all schools.
type PeriodSeries struct {
	Periods     []float64
	Students    []float64
	Enrollments []float64
}

func (s PeriodSeries) Len() int {
	return len(s.Periods)
}

// DataPreprocessor groups observations by period and averages them.
type DataPreprocessor struct {
	sums   map[float64][2]float64
	counts map[float64]int
}

func (p *DataPreprocessor) Add(points ...PeriodPoint) {
	if p.sums == nil {
		p.sums = make(map[float64][2]float64)
		p.counts = make(map[float64]int)
	}
	for _, point := range points {
		acc := p.sums[point.Period]
		acc[0] += point.Students
		acc[1] += point.Enrollments
		p.sums[point.Period] = acc
		p.counts[point.Period]++
	}
}

func (p *DataPreprocessor) Series() (PeriodSeries, error) {
	if len(p.counts) == 0 {
		return PeriodSeries{}, errors.New("no observations")
	}
	periods := make([]float64, 0, len(p.counts))
	for period := range p.counts {
		periods = append(periods, period)
	}
	sort.Float64s(periods)

	series := PeriodSeries{
		Periods:     periods,
		Students:    make([]float64, len(periods)),
		Enrollments: make([]float64, len(periods)),
	}
	for i, period := range periods {
		n := float64(p.counts[period])
		series.Students[i] = p.sums[period][0] / n
		series.Enrollments[i] = p.sums[period][1] / n
	}
	return series, nil
}

// Trend labels as persisted in the series metadata.
const (
	TrendUp   = "Aumento"
	TrendDown = "Disminución"
)

// SeriesSummary describes a training series for the forecaster metadata.
type SeriesSummary struct {
	LastValue float64
	MeanValue float64
	Trend     string
}

func Describe(series []float64) (SeriesSummary, error) {
	if len(series) == 0 {
		return SeriesSummary{}, errors.New("series is empty")
	}
	summary := SeriesSummary{
		LastValue: series[len(series)-1],
		MeanValue: stat.Mean(series, nil),
		Trend:     TrendDown,
	}
	if summary.LastValue > series[0] {
		summary.Trend = TrendUp
	}
	return summary, nil
}
