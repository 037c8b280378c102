package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"edupredict/config"
	"edupredict/logging"
	"edupredict/ml"
	"edupredict/pipeline"
	"edupredict/store"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	defaults := cfg.Training

	dataPath := flag.String("data", defaults.Data, "historical dataset CSV")
	encodingName := flag.String("encoding", defaults.Encoding, "CSV encoding: utf-8, latin1 or windows-1252")
	dbPath := flag.String("db", defaults.Database, "SQLite database for the dataset and training log")
	importCSV := flag.Bool("import", false, "copy the CSV rows into the database before training")
	modelsDir := flag.String("models_dir", cfg.ModelsDir, "model output directory")
	maxP := flag.Int("max_p", defaults.MaxP, "max AR order")
	maxD := flag.Int("max_d", defaults.MaxD, "max differencing order")
	maxQ := flag.Int("max_q", defaults.MaxQ, "max MA order")
	maxDepth := flag.Int("max_depth", defaults.MaxDepth, "max tree depth")
	minSplit := flag.Int("min_samples_split", defaults.MinSamplesSplit, "min samples to split a node")
	minLeaf := flag.Int("min_samples_leaf", defaults.MinSamplesLeaf, "min samples per leaf")
	testRatio := flag.Float64("test_ratio", defaults.TestRatio, "test ratio")
	seed := flag.Int64("seed", defaults.Seed, "split seed")
	flag.Parse()

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	opts := pipeline.TrainOptions{
		Search:          ml.SearchConfig{MaxP: *maxP, MaxD: *maxD, MaxQ: *maxQ},
		MaxDepth:        *maxDepth,
		MinSamplesSplit: *minSplit,
		MinSamplesLeaf:  *minLeaf,
		TestRatio:       *testRatio,
		Seed:            *seed,
	}
	src := source{data: *dataPath, encoding: *encodingName, db: *dbPath, importCSV: *importCSV}
	if err := run(context.Background(), runID, src, *modelsDir, opts, logger); err != nil {
		logger.Fatal("Training failed", zap.Error(err))
	}
	fmt.Printf("models saved to %s\n", *modelsDir)
}

type source struct {
	data      string
	encoding  string
	db        string
	importCSV bool
}

func run(ctx context.Context, runID string, src source, modelsDir string, opts pipeline.TrainOptions, logger *zap.Logger) error {
	started := time.Now()

	var storage *pipeline.Storage
	if src.db != "" {
		var err error
		storage, err = pipeline.NewStorage(pipeline.StorageConfig{DBPath: src.db, EnableWAL: true}, logger)
		if err != nil {
			return err
		}
		defer storage.Close()
	}

	// 1. Load data
	records, issues, err := loadRecords(ctx, src, storage, logger)
	if err != nil {
		return err
	}

	// 2. Clean
	cleaner := pipeline.NewDataCleaner(logger)
	cleaned, rejected := cleaner.Clean(records)
	issues = append(issues, rejected...)
	logger.Info("Dataset cleaned", zap.Int("records", len(cleaned)), zap.Int("rejected", len(issues)))
	if storage != nil {
		if err := storage.SaveQualityIssues(ctx, runID, issues); err != nil {
			logger.Warn("Failed to store quality issues", zap.Error(err))
		}
	}

	// 3. Train and save
	trainer := &pipeline.Trainer{Options: opts, Writer: store.Writer{Dir: modelsDir}, Logger: logger}
	report, err := trainer.Run(cleaned)
	if err != nil {
		return err
	}
	logger.Info("Training completed",
		zap.String("models_dir", modelsDir),
		zap.Float64("accuracy", report.Metrics.Accuracy),
		zap.Duration("elapsed", time.Since(started)))

	if storage == nil {
		return nil
	}
	return storage.LogTraining(ctx, pipeline.TrainingRun{
		RunID:            runID,
		StartedAt:        started,
		FinishedAt:       time.Now(),
		Records:          len(cleaned),
		Rejected:         len(issues),
		StudentsOrder:    report.SeriesMeta.Students.Order.String(),
		StudentsAIC:      report.SeriesMeta.Students.AIC,
		EnrollmentsOrder: report.SeriesMeta.Enrollments.Order.String(),
		EnrollmentsAIC:   report.SeriesMeta.Enrollments.AIC,
		Accuracy:         report.Metrics.Accuracy,
		MedianThreshold:  *report.TreeMeta.MedianDropoutThreshold,
		ModelsDir:        modelsDir,
	})
}

// loadRecords reads the CSV unless a database is given without -import,
// in which case the stored dataset is used.
func loadRecords(ctx context.Context, src source, storage *pipeline.Storage, logger *zap.Logger) ([]pipeline.Record, []pipeline.QualityIssue, error) {
	if storage != nil && !src.importCSV {
		records, err := storage.LoadRecords(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load records from %s: %w", src.db, err)
		}
		logger.Info("Loaded dataset from database", zap.String("db", src.db), zap.Int("records", len(records)))
		return records, nil, nil
	}

	if src.data == "" {
		return nil, nil, errors.New("no dataset: set -data or -db")
	}
	if _, err := os.Stat(src.data); err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", src.data, err)
	}
	records, issues, err := pipeline.ReadCSVFile(src.data, src.encoding)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", src.data, err)
	}
	logger.Info("Loaded dataset", zap.String("path", src.data), zap.Int("records", len(records)), zap.Int("unparsed", len(issues)))

	if storage != nil {
		if err := storage.SaveRecords(ctx, records); err != nil {
			return nil, nil, fmt.Errorf("import records: %w", err)
		}
		logger.Info("Imported dataset into database", zap.String("db", src.db))
	}
	return records, issues, nil
}
