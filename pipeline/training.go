package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"edupredict/ml"
	"edupredict/store"
)

const trainingDateLayout = "2006-01-02T15:04:05.000000"

type TrainOptions struct {
	Search          ml.SearchConfig
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	TestRatio       float64
	Seed            int64
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Search:          ml.DefaultSearchConfig(),
		MaxDepth:        8,
		MinSamplesSplit: 10,
		MinSamplesLeaf:  5,
		TestRatio:       0.2,
		Seed:            42,
	}
}

// TrainingReport summarises one run for logging and training_log.
type TrainingReport struct {
	Students    *ml.SearchResult
	Enrollments *ml.SearchResult
	SeriesMeta  store.SeriesMetadata
	TreeMeta    store.TreeMetadata
	Metrics     ml.Metrics
}

// Trainer fits both models from cleaned records and writes the artifacts.
type Trainer struct {
	Options TrainOptions
	Writer  store.Writer
	Logger  *zap.Logger
	Now     func() time.Time
}

func (t *Trainer) Run(records []Record) (*TrainingReport, error) {
	if len(records) == 0 {
		return nil, errors.New("no records to train on")
	}
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := t.Now
	if now == nil {
		now = time.Now
	}
	trainedAt := now().Format(trainingDateLayout)

	report := &TrainingReport{}
	logger.Info("Training ARIMA models", zap.Int("records", len(records)))
	students, enrollments, seriesMeta, err := TrainSeries(records, t.Options.Search)
	if err != nil {
		return nil, fmt.Errorf("train series models: %w", err)
	}
	seriesMeta.TrainingDate = trainedAt
	report.Students, report.Enrollments, report.SeriesMeta = students, enrollments, seriesMeta
	logger.Info("ARIMA models trained",
		zap.Stringer("students_order", students.Order),
		zap.Float64("students_aic", seriesMeta.Students.AIC),
		zap.Int("students_failed", students.Failed),
		zap.Stringer("enrollments_order", enrollments.Order),
		zap.Float64("enrollments_aic", seriesMeta.Enrollments.AIC),
		zap.Int("enrollments_cache_hits", enrollments.CacheHits),
		zap.Int("periods", seriesMeta.DataPeriods))

	logger.Info("Training decision tree")
	tree, treeMeta, metrics, err := TrainDropout(records, t.Options)
	if err != nil {
		return nil, fmt.Errorf("train decision tree: %w", err)
	}
	treeMeta.TrainingDate = trainedAt
	report.TreeMeta, report.Metrics = treeMeta, metrics
	logger.Info("Decision tree trained",
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("precision", metrics.Precision),
		zap.Float64("recall", metrics.Recall),
		zap.Float64("median_dropout_threshold", *treeMeta.MedianDropoutThreshold))
	for _, fi := range treeMeta.FeatureImportance {
		logger.Debug("Feature importance", zap.String("feature", fi.Feature), zap.Float64("importance", fi.Importance))
	}

	// nothing is written unless both models trained
	if err := t.Writer.SaveSeries(students.Model, enrollments.Model, seriesMeta); err != nil {
		return nil, err
	}
	if err := t.Writer.SaveTree(tree, treeMeta); err != nil {
		return nil, err
	}
	return report, nil
}

// TrainSeries builds the per-period mean series and searches an order for
// each of them. Both searches share one fit cache.
func TrainSeries(records []Record, cfg ml.SearchConfig) (students, enrollments *ml.SearchResult, meta store.SeriesMetadata, err error) {
	var prep ml.DataPreprocessor
	for _, r := range records {
		prep.Add(ml.PeriodPoint{Period: r.Period(), Students: r.Students, Enrollments: r.Enrollments})
	}
	series, err := prep.Series()
	if err != nil {
		return nil, nil, meta, err
	}

	searcher, err := ml.NewOrderSearcher(cfg)
	if err != nil {
		return nil, nil, meta, err
	}
	if students, meta.Students, err = fitSeries(searcher, series.Students); err != nil {
		return nil, nil, meta, fmt.Errorf("students: %w", err)
	}
	if enrollments, meta.Enrollments, err = fitSeries(searcher, series.Enrollments); err != nil {
		return nil, nil, meta, fmt.Errorf("enrollments: %w", err)
	}
	meta.DataPeriods = series.Len()
	return students, enrollments, meta, nil
}

func fitSeries(searcher *ml.OrderSearcher, values []float64) (*ml.SearchResult, store.SeriesInfo, error) {
	result, err := searcher.Search(values)
	if err != nil {
		return nil, store.SeriesInfo{}, err
	}
	summary, err := ml.Describe(values)
	if err != nil {
		return nil, store.SeriesInfo{}, err
	}
	return result, store.SeriesInfo{
		Order:     result.Order,
		AIC:       result.Model.AIC(),
		LastValue: summary.LastValue,
		MeanValue: summary.MeanValue,
		Trend:     summary.Trend,
	}, nil
}

// TrainDropout labels records above the median dropout rate as high risk
// and fits a balanced tree on a stratified split.
func TrainDropout(records []Record, opts TrainOptions) (*ml.DecisionTree, store.TreeMetadata, ml.Metrics, error) {
	var meta store.TreeMetadata
	columns, err := ml.Extractors(nil)
	if err != nil {
		return nil, meta, ml.Metrics{}, err
	}

	features := make([][]float64, len(records))
	rates := make([]float64, len(records))
	for i, r := range records {
		features[i] = ml.FeatureVector(r.Features(), columns)
		rates[i] = r.DropoutRate
	}
	labels, median, err := ml.GenerateLabels(rates)
	if err != nil {
		return nil, meta, ml.Metrics{}, err
	}
	var distribution store.ClassDistribution
	for _, label := range labels {
		if label == 1 {
			distribution.HighRisk++
		} else {
			distribution.LowRisk++
		}
	}
	if distribution.HighRisk == 0 || distribution.LowRisk == 0 {
		return nil, meta, ml.Metrics{}, errors.New("dropout rates do not separate into two classes")
	}

	train, test, err := ml.StratifiedSplit(features, labels, opts.TestRatio, opts.Seed)
	if err != nil {
		return nil, meta, ml.Metrics{}, err
	}
	tree := ml.NewDecisionTree(opts.MaxDepth)
	tree.MinSamplesSplit = opts.MinSamplesSplit
	tree.MinSamplesLeaf = opts.MinSamplesLeaf
	tree.Balanced = true
	if err := tree.Train(train.X, train.Y); err != nil {
		return nil, meta, ml.Metrics{}, err
	}
	if tree.Classes() != 2 {
		return nil, meta, ml.Metrics{}, errors.New("training split lost a class")
	}
	metrics := ml.Evaluate(tree, test)

	names := ml.FeatureNames()
	importance := tree.FeatureImportance()
	meta = store.TreeMetadata{
		Features:               names,
		FeatureImportance:      rankImportance(names, importance),
		Accuracy:               metrics.Accuracy,
		MedianDropoutThreshold: &median,
		TrainingSamples:        train.Len(),
		TestSamples:            test.Len(),
		ClassDistribution:      distribution,
	}
	return tree, meta, metrics, nil
}

// rankImportance pairs names with importances, highest first.
func rankImportance(names []string, importance []float64) []store.FeatureImportance {
	ranked := make([]store.FeatureImportance, len(names))
	for i, name := range names {
		ranked[i] = store.FeatureImportance{Feature: name}
		if i < len(importance) {
			ranked[i].Importance = importance[i]
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Importance > ranked[j].Importance
	})
	return ranked
}
