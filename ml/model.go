package ml

import "errors"

var ErrNotFitted = errors.New("model not trained")

// Interval is a lower/upper bound pair around a point forecast.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// SeriesModel projects a fitted time series forward.
type SeriesModel interface {
	Forecast(steps int) ([]float64, error)
	ConfInt(steps int) ([]Interval, error)
}

// Classifier returns the winning class and the per-class probability vector.
type Classifier interface {
	PredictProba(features []float64) (int, []float64, error)
}

type MLModel interface {
	Save(path string) error
	Load(path string) error
}
