package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"edupredict/ml"
)

// Load reads every artifact found in dir. Only a missing directory is
// reported as not loaded without looking further; unreadable artifacts are
// logged and left out.
func Load(dir string, logger *zap.Logger) *Bundle {
	if logger == nil {
		logger = zap.NewNop()
	}
	bundle := &Bundle{}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		logger.Error("Error loading models", zap.String("dir", dir), zap.Error(ErrNoModelsDir))
		return bundle
	}

	if model, ok := loadArtifact(logger, dir, StudentsModelFile, "ARIMA students model", loadARIMA); ok {
		bundle.Students = model
	}
	if model, ok := loadArtifact(logger, dir, EnrollmentsModelFile, "ARIMA enrollments model", loadARIMA); ok {
		bundle.Enrollments = model
	}
	if meta, ok := loadArtifact(logger, dir, SeriesMetadataFile, "ARIMA metadata", readJSON[SeriesMetadata]); ok {
		bundle.SeriesMeta = meta
	}
	if tree, ok := loadArtifact(logger, dir, TreeModelFile, "Decision Tree model", loadTree); ok {
		bundle.Classifier = tree
	}
	if meta, ok := loadArtifact(logger, dir, TreeMetadataFile, "Decision Tree metadata", readJSON[TreeMetadata]); ok {
		bundle.TreeMeta = meta
	}

	bundle.Loaded = bundle.artifacts() > 0
	if bundle.Loaded {
		logger.Info("Models loaded", zap.String("dir", dir), zap.Int("artifacts", bundle.artifacts()))
	} else {
		logger.Error("Error loading models: no artifacts found", zap.String("dir", dir))
	}
	return bundle
}

func loadArtifact[T any](logger *zap.Logger, dir, name, label string, read func(string) (T, error)) (T, bool) {
	path := filepath.Join(dir, name)
	value, err := read(path)
	switch {
	case err == nil:
		logger.Info(label+" loaded successfully", zap.String("path", path))
		return value, true
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn(label+" not found", zap.String("path", path))
	default:
		logger.Error("Error loading "+label, zap.String("path", path), zap.Error(err))
	}
	var zero T
	return zero, false
}

func loadARIMA(path string) (*ml.ARIMA, error) {
	model, err := ml.LoadModel(ml.KindARIMA, path)
	if err != nil {
		return nil, err
	}
	return model.(*ml.ARIMA), nil
}

func loadTree(path string) (*ml.DecisionTree, error) {
	model, err := ml.LoadModel(ml.KindDecisionTree, path)
	if err != nil {
		return nil, err
	}
	tree := model.(*ml.DecisionTree)
	if tree.Classes() != 2 {
		return nil, fmt.Errorf("%s: expected a binary classifier, got %d classes", path, tree.Classes())
	}
	return tree, nil
}

func readJSON[T any](path string) (*T, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &value, nil
}
