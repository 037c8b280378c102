package predict

import (
	"errors"
	"math"
	"testing"

	"edupredict/ml"
	"edupredict/store"
)

type fakeSeries struct {
	points      []float64
	intervals   []ml.Interval
	err         error
	intervalErr error
	panicMsg    string
}

func (f fakeSeries) Forecast(steps int) ([]float64, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.points, f.err
}

func (f fakeSeries) ConfInt(steps int) ([]ml.Interval, error) {
	return f.intervals, f.intervalErr
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func seriesMeta(studentsMean, enrollmentsMean, aic float64) *store.SeriesMetadata {
	return &store.SeriesMetadata{
		Students:    store.SeriesInfo{AIC: aic, MeanValue: studentsMean},
		Enrollments: store.SeriesInfo{AIC: aic + 2, MeanValue: enrollmentsMean},
	}
}

func TestForecastFallsBackWhenModelRaises(t *testing.T) {
	broken := fakeSeries{err: errors.New("singular matrix")}
	bundle := &store.Bundle{Loaded: true, Students: broken, Enrollments: broken}

	result, err := NewEnrollmentForecaster(bundle, nil).Forecast(EnrollmentRequest{Students: 300, Enrollments: 280, Year: 2024})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	next := result.Predictions.NextSemester
	if next.Students != 315 || next.Enrollments != 288 {
		t.Fatalf("unexpected next semester %+v", next)
	}
	year := result.Predictions.NextYear
	if year.Students != 330 || year.Enrollments != 302 {
		t.Fatalf("unexpected next year %+v", year)
	}
	if next.ConfidenceInterval.StudentsLower != 283 || next.ConfidenceInterval.StudentsUpper != 346 {
		t.Fatalf("unexpected interval %+v", next.ConfidenceInterval)
	}
	if result.Confidence != 0.75 {
		t.Fatalf("expected default confidence 0.75, got %v", result.Confidence)
	}
	if result.TrendAnalysis.GrowthRate != 10 || result.TrendAnalysis.TrendDirection != "increasing" {
		t.Fatalf("unexpected trend %+v", result.TrendAnalysis)
	}
	if result.TrendAnalysis.ModelInfo.StudentsAIC != "N/A" {
		t.Fatalf("expected N/A model info, got %+v", result.TrendAnalysis.ModelInfo)
	}
}

func TestForecastFallsBackWithoutSeriesModels(t *testing.T) {
	bundle := &store.Bundle{Loaded: true}
	result, err := NewEnrollmentForecaster(bundle, nil).Forecast(EnrollmentRequest{Students: 300, Enrollments: 280})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if result.Predictions.NextSemester.Students != 315 {
		t.Fatalf("expected heuristic forecast, got %+v", result.Predictions.NextSemester)
	}
}

func TestForecastUsesModelsAndMetadata(t *testing.T) {
	bundle := &store.Bundle{
		Loaded: true,
		Students: fakeSeries{
			points:    []float64{310, 320},
			intervals: []ml.Interval{{Lower: 290, Upper: 330}, {Lower: 280, Upper: 360}},
		},
		Enrollments: fakeSeries{
			points:    []float64{285, 290},
			intervals: []ml.Interval{{Lower: 270, Upper: 300}, {Lower: 260, Upper: 320}},
		},
		SeriesMeta: seriesMeta(300, 280, 100),
	}

	result, err := NewEnrollmentForecaster(bundle, nil).Forecast(EnrollmentRequest{Students: 600, Enrollments: 280})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	next := result.Predictions.NextSemester
	if next.Students != 620 || next.Enrollments != 285 {
		t.Fatalf("expected scaled forecast, got %+v", next)
	}
	if next.ConfidenceInterval.StudentsLower != 580 || next.ConfidenceInterval.StudentsUpper != 660 {
		t.Fatalf("expected scaled interval, got %+v", next.ConfidenceInterval)
	}
	if result.TrendAnalysis.GrowthRate != 6.67 {
		t.Fatalf("expected growth 6.67, got %v", result.TrendAnalysis.GrowthRate)
	}
	if result.TrendAnalysis.ModelInfo.StudentsAIC != 100.0 {
		t.Fatalf("unexpected model info %+v", result.TrendAnalysis.ModelInfo)
	}
	// base 0.9, consistency 1 - 320/600
	if !approx(result.Confidence, 0.6) {
		t.Fatalf("expected confidence clamped to 0.6, got %v", result.Confidence)
	}
}

func TestForecastConfidenceWithinBounds(t *testing.T) {
	cases := []struct {
		students, enrollments, aic float64
	}{
		{300, 280, 100},
		{300, 300, 10},
		{1000, 10, 50},
		{50, 45, 900},
		{120, 119, -200},
	}
	for _, c := range cases {
		bundle := &store.Bundle{Loaded: true, SeriesMeta: seriesMeta(c.students, c.enrollments, c.aic)}
		result, err := NewEnrollmentForecaster(bundle, nil).Forecast(EnrollmentRequest{Students: c.students, Enrollments: c.enrollments})
		if err != nil {
			t.Fatalf("forecast %+v: %v", c, err)
		}
		if result.Confidence < 0.60 || result.Confidence > 0.95 {
			t.Fatalf("confidence %v out of range for %+v", result.Confidence, c)
		}
	}

	bundle := &store.Bundle{Loaded: true, SeriesMeta: seriesMeta(300, 280, 100)}
	result, err := NewEnrollmentForecaster(bundle, nil).Forecast(EnrollmentRequest{Students: 300, Enrollments: 280})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	// base 0.9, consistency 1 - 20/300
	if !approx(result.Confidence, 0.84) {
		t.Fatalf("expected confidence 0.84, got %v", result.Confidence)
	}
}

func TestForecastSynthesizesIntervalsOnFailure(t *testing.T) {
	series := fakeSeries{points: []float64{200, 400}, intervalErr: errors.New("no variance")}
	bundle := &store.Bundle{Loaded: true, Students: series, Enrollments: series}

	result, err := NewEnrollmentForecaster(bundle, nil).Forecast(EnrollmentRequest{Students: 300, Enrollments: 280})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	ci := result.Predictions.NextYear.ConfidenceInterval
	if ci.StudentsLower != 360 || ci.StudentsUpper != 440 {
		t.Fatalf("expected +/-10%% interval, got %+v", ci)
	}
	if result.Predictions.NextSemester.Students != 200 {
		t.Fatalf("expected model forecast kept, got %+v", result.Predictions.NextSemester)
	}
	if result.TrendAnalysis.TrendDirection != "increasing" {
		t.Fatalf("unexpected direction %s", result.TrendAnalysis.TrendDirection)
	}
}

func TestForecastTrendDecreasing(t *testing.T) {
	series := fakeSeries{points: []float64{290, 270}, intervals: []ml.Interval{{}, {}}}
	bundle := &store.Bundle{Loaded: true, Students: series, Enrollments: series}
	result, err := NewEnrollmentForecaster(bundle, nil).Forecast(EnrollmentRequest{Students: 300, Enrollments: 280})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if result.TrendAnalysis.TrendDirection != "decreasing" || result.TrendAnalysis.GrowthRate != -10 {
		t.Fatalf("unexpected trend %+v", result.TrendAnalysis)
	}
}

func TestForecastReturnsPredictionError(t *testing.T) {
	forecaster := NewEnrollmentForecaster(&store.Bundle{Loaded: true}, nil)
	_, err := forecaster.Forecast(EnrollmentRequest{Students: 0, Enrollments: 280})
	var predErr *PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("expected PredictionError, got %v", err)
	}
	if predErr.ModelType != ModelTypeARIMA || predErr.Confidence != 0 {
		t.Fatalf("unexpected error payload %+v", predErr)
	}

	panicky := fakeSeries{panicMsg: "index out of range"}
	forecaster = NewEnrollmentForecaster(&store.Bundle{Loaded: true, Students: panicky, Enrollments: panicky}, nil)
	_, err = forecaster.Forecast(EnrollmentRequest{Students: 300, Enrollments: 280})
	if !errors.As(err, &predErr) || predErr.Message != "index out of range" {
		t.Fatalf("expected recovered PredictionError, got %v", err)
	}
}

func TestForecastRejectsNonFiniteValues(t *testing.T) {
	series := fakeSeries{points: []float64{math.NaN(), 1}, intervals: []ml.Interval{{}, {}}}
	bundle := &store.Bundle{Loaded: true, Students: series, Enrollments: series}
	_, err := NewEnrollmentForecaster(bundle, nil).Forecast(EnrollmentRequest{Students: 300, Enrollments: 280})
	var predErr *PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("expected PredictionError, got %v", err)
	}
}
