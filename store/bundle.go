// Package store reads and writes the fitted models and their metadata.
// Every artifact is optional: a missing file only leaves the matching
// Bundle field empty.
package store

import (
	"errors"

	"edupredict/ml"
)

const (
	StudentsModelFile    = "arima_students_model.json"
	EnrollmentsModelFile = "arima_enrollments_model.json"
	SeriesMetadataFile   = "arima_metadata.json"
	TreeModelFile        = "decision_tree_model.json"
	TreeMetadataFile     = "decision_tree_metadata.json"
)

var ErrNoModelsDir = errors.New("models directory not found, run train_model first")

// SeriesInfo describes one fitted series.
type SeriesInfo struct {
	Order     ml.Order `json:"order"`
	AIC       float64  `json:"aic"`
	LastValue float64  `json:"last_value"`
	MeanValue float64  `json:"mean_value"`
	Trend     string   `json:"trend"`
}

type SeriesMetadata struct {
	Students     SeriesInfo `json:"students"`
	Enrollments  SeriesInfo `json:"enrollments"`
	TrainingDate string     `json:"training_date"`
	DataPeriods  int        `json:"data_periods"`
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importancia"`
}

type ClassDistribution struct {
	LowRisk  int `json:"low_risk"`
	HighRisk int `json:"high_risk"`
}

type TreeMetadata struct {
	Features          []string            `json:"features"`
	FeatureImportance []FeatureImportance `json:"feature_importance"`
	Accuracy          float64             `json:"accuracy"`
	// MedianDropoutThreshold is nil when the training run did not record it.
	MedianDropoutThreshold *float64          `json:"median_dropout_threshold,omitempty"`
	TrainingSamples        int               `json:"training_samples"`
	TestSamples            int               `json:"test_samples"`
	ClassDistribution      ClassDistribution `json:"class_distribution"`
	TrainingDate           string            `json:"training_date"`
}

// Bundle holds whatever artifacts were found. It is built once per run
// and never mutated afterwards.
type Bundle struct {
	Loaded      bool
	Students    ml.SeriesModel
	Enrollments ml.SeriesModel
	SeriesMeta  *SeriesMetadata
	Classifier  ml.Classifier
	TreeMeta    *TreeMetadata
}

func (b *Bundle) Status() string {
	if b != nil && b.Loaded {
		return "loaded"
	}
	return "not_loaded"
}

func (b *Bundle) HasSeriesModels() bool {
	return b != nil && b.Students != nil && b.Enrollments != nil
}

func (b *Bundle) artifacts() int {
	n := 0
	for _, present := range []bool{
		b.Students != nil,
		b.Enrollments != nil,
		b.SeriesMeta != nil,
		b.Classifier != nil,
		b.TreeMeta != nil,
	} {
		if present {
			n++
		}
	}
	return n
}
