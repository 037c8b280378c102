package predict

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"edupredict/ml"
	"edupredict/store"
)

// Horizon is fixed: next semester and next year.
const Horizon = 2

const (
	// heuristic growth used when the models cannot forecast
	fallbackStudentGrowthSemester    = 1.05
	fallbackStudentGrowthYear        = 1.10
	fallbackEnrollmentGrowthSemester = 1.03
	fallbackEnrollmentGrowthYear     = 1.08

	intervalLowerFactor = 0.9
	intervalUpperFactor = 1.1

	defaultForecastConfidence = 0.75
	minForecastConfidence     = 0.60
	maxForecastConfidence     = 0.95
	defaultGrowthRate         = 5.0
)

var errSeriesModelsMissing = errors.New("ARIMA models not loaded. Please run train_model first")

type EnrollmentRequest struct {
	Students    float64
	Enrollments float64
	Year        int
}

type ConfidenceInterval struct {
	StudentsLower    int `json:"students_lower"`
	StudentsUpper    int `json:"students_upper"`
	EnrollmentsLower int `json:"enrollments_lower"`
	EnrollmentsUpper int `json:"enrollments_upper"`
}

type PeriodForecast struct {
	Students           int                `json:"cantidad_alumnos"`
	Enrollments        int                `json:"numero_inscripciones"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
}

type Predictions struct {
	NextSemester PeriodForecast `json:"next_semester"`
	NextYear     PeriodForecast `json:"next_year"`
}

// SeriesModelInfo carries the training AICs, or "N/A" without metadata.
type SeriesModelInfo struct {
	StudentsAIC    any `json:"students_aic"`
	EnrollmentsAIC any `json:"enrollments_aic"`
}

type TrendAnalysis struct {
	GrowthRate         float64         `json:"growth_rate"`
	SeasonalAdjustment float64         `json:"seasonal_adjustment"`
	TrendDirection     string          `json:"trend_direction"`
	ModelInfo          SeriesModelInfo `json:"model_info"`
}

type EnrollmentForecast struct {
	ModelType     string        `json:"model_type"`
	Predictions   Predictions   `json:"predictions"`
	Confidence    float64       `json:"confidence"`
	TrendAnalysis TrendAnalysis `json:"trend_analysis"`
}

// seriesForecast is one series projected over the horizon.
type seriesForecast struct {
	points    []float64
	intervals []ml.Interval
}

func (s seriesForecast) scaled(ratio float64) seriesForecast {
	out := seriesForecast{
		points:    make([]float64, len(s.points)),
		intervals: make([]ml.Interval, len(s.intervals)),
	}
	for i, v := range s.points {
		out.points[i] = v * ratio
	}
	for i, iv := range s.intervals {
		out.intervals[i] = ml.Interval{Lower: iv.Lower * ratio, Upper: iv.Upper * ratio}
	}
	return out
}

type EnrollmentForecaster struct {
	bundle *store.Bundle
	logger *zap.Logger
}

func NewEnrollmentForecaster(bundle *store.Bundle, logger *zap.Logger) *EnrollmentForecaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentForecaster{bundle: bundle, logger: logger}
}

// Forecast projects students and enrollments two periods ahead. Model
// failures degrade to a fixed growth heuristic; anything else comes back
// as a *PredictionError.
func (f *EnrollmentForecaster) Forecast(req EnrollmentRequest) (result *EnrollmentForecast, err error) {
	defer recoverInto(f.logger, ModelTypeARIMA, &err)

	if req.Students <= 0 || req.Enrollments <= 0 {
		return nil, newPredictionError(ModelTypeARIMA, errors.New("student and enrollment counts must be positive"))
	}

	students, enrollments, err := f.modelForecast()
	if err != nil {
		f.logger.Warn("Error making ARIMA forecasts, using growth heuristic", zap.Error(err))
		students = heuristicForecast(req.Students, fallbackStudentGrowthSemester, fallbackStudentGrowthYear)
		enrollments = heuristicForecast(req.Enrollments, fallbackEnrollmentGrowthSemester, fallbackEnrollmentGrowthYear)
	}

	meta := f.bundle.SeriesMeta
	studentsRatio, enrollmentsRatio := 1.0, 1.0
	if meta != nil {
		studentsRatio = req.Students / math.Max(meta.Students.MeanValue, 1)
		enrollmentsRatio = req.Enrollments / math.Max(meta.Enrollments.MeanValue, 1)
	}
	students = students.scaled(studentsRatio)
	enrollments = enrollments.scaled(enrollmentsRatio)
	if err := checkFinite(students, enrollments); err != nil {
		return nil, newPredictionError(ModelTypeARIMA, err)
	}

	rate := growthRate(students.points, req.Students)
	direction := "decreasing"
	if rate > 0 {
		direction = "increasing"
	}

	result = &EnrollmentForecast{
		ModelType: ModelTypeARIMA,
		Predictions: Predictions{
			NextSemester: periodForecast(students, enrollments, 0),
			NextYear:     periodForecast(students, enrollments, 1),
		},
		Confidence: ml.Round(forecastConfidence(meta, req.Students, req.Enrollments), 4),
		TrendAnalysis: TrendAnalysis{
			GrowthRate:         ml.Round(rate, 2),
			SeasonalAdjustment: 0,
			TrendDirection:     direction,
			ModelInfo:          seriesModelInfo(meta),
		},
	}
	f.logger.Info("Enrollment forecast generated",
		zap.Int("year", req.Year),
		zap.Float64("confidence", result.Confidence),
		zap.Float64("growth_rate", result.TrendAnalysis.GrowthRate))
	return result, nil
}

func (f *EnrollmentForecaster) modelForecast() (seriesForecast, seriesForecast, error) {
	if !f.bundle.HasSeriesModels() {
		return seriesForecast{}, seriesForecast{}, errSeriesModelsMissing
	}
	students, err := f.project("students", f.bundle.Students)
	if err != nil {
		return seriesForecast{}, seriesForecast{}, err
	}
	enrollments, err := f.project("enrollments", f.bundle.Enrollments)
	if err != nil {
		return seriesForecast{}, seriesForecast{}, err
	}
	return students, enrollments, nil
}

func (f *EnrollmentForecaster) project(name string, model ml.SeriesModel) (seriesForecast, error) {
	points, err := model.Forecast(Horizon)
	if err != nil {
		return seriesForecast{}, fmt.Errorf("%s forecast: %w", name, err)
	}
	if len(points) < Horizon {
		return seriesForecast{}, fmt.Errorf("%s forecast: got %d points, want %d", name, len(points), Horizon)
	}
	points = points[:Horizon]

	intervals, err := model.ConfInt(Horizon)
	if err == nil && len(intervals) < Horizon {
		err = fmt.Errorf("got %d intervals, want %d", len(intervals), Horizon)
	}
	if err != nil {
		f.logger.Warn("Could not get confidence intervals", zap.String("series", name), zap.Error(err))
		return seriesForecast{points: points, intervals: synthesizedIntervals(points)}, nil
	}
	return seriesForecast{points: points, intervals: intervals[:Horizon]}, nil
}

func heuristicForecast(current, semesterGrowth, yearGrowth float64) seriesForecast {
	points := []float64{current * semesterGrowth, current * yearGrowth}
	return seriesForecast{points: points, intervals: synthesizedIntervals(points)}
}

func synthesizedIntervals(points []float64) []ml.Interval {
	intervals := make([]ml.Interval, len(points))
	for i, p := range points {
		intervals[i] = ml.Interval{Lower: p * intervalLowerFactor, Upper: p * intervalUpperFactor}
	}
	return intervals
}

// periodForecast truncates toward zero rather than rounding.
func periodForecast(students, enrollments seriesForecast, step int) PeriodForecast {
	return PeriodForecast{
		Students:    int(students.points[step]),
		Enrollments: int(enrollments.points[step]),
		ConfidenceInterval: ConfidenceInterval{
			StudentsLower:    int(students.intervals[step].Lower),
			StudentsUpper:    int(students.intervals[step].Upper),
			EnrollmentsLower: int(enrollments.intervals[step].Lower),
			EnrollmentsUpper: int(enrollments.intervals[step].Upper),
		},
	}
}

func forecastConfidence(meta *store.SeriesMetadata, students, enrollments float64) float64 {
	if meta == nil {
		return defaultForecastConfidence
	}
	base := math.Max(minForecastConfidence, 1-meta.Students.AIC/1000)
	consistency := 1 - math.Abs(students-enrollments)/math.Max(students, enrollments)
	return ml.Clamp(base*consistency, minForecastConfidence, maxForecastConfidence)
}

func growthRate(students []float64, current float64) float64 {
	if len(students) < 2 {
		return defaultGrowthRate
	}
	return (students[1] - current) / current * 100
}

func seriesModelInfo(meta *store.SeriesMetadata) SeriesModelInfo {
	if meta == nil {
		return SeriesModelInfo{StudentsAIC: "N/A", EnrollmentsAIC: "N/A"}
	}
	return SeriesModelInfo{StudentsAIC: meta.Students.AIC, EnrollmentsAIC: meta.Enrollments.AIC}
}

func checkFinite(series ...seriesForecast) error {
	for _, s := range series {
		if !finite(s.points...) {
			return errors.New("forecast produced a non-finite value")
		}
		for _, iv := range s.intervals {
			if !finite(iv.Lower, iv.Upper) {
				return errors.New("confidence interval produced a non-finite value")
			}
		}
	}
	return nil
}
