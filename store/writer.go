package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"edupredict/ml"
)

// Writer saves artifacts into one models directory, creating it on first use.
type Writer struct {
	Dir string
}

func (w Writer) SaveSeries(students, enrollments *ml.ARIMA, meta SeriesMetadata) error {
	if err := w.ensureDir(); err != nil {
		return err
	}
	if err := students.Save(filepath.Join(w.Dir, StudentsModelFile)); err != nil {
		return fmt.Errorf("save students model: %w", err)
	}
	if err := enrollments.Save(filepath.Join(w.Dir, EnrollmentsModelFile)); err != nil {
		return fmt.Errorf("save enrollments model: %w", err)
	}
	return writeJSON(filepath.Join(w.Dir, SeriesMetadataFile), meta)
}

func (w Writer) SaveTree(tree *ml.DecisionTree, meta TreeMetadata) error {
	if err := w.ensureDir(); err != nil {
		return err
	}
	if err := tree.Save(filepath.Join(w.Dir, TreeModelFile)); err != nil {
		return fmt.Errorf("save decision tree: %w", err)
	}
	return writeJSON(filepath.Join(w.Dir, TreeMetadataFile), meta)
}

func (w Writer) ensureDir() error {
	if w.Dir == "" {
		return errors.New("models directory not set")
	}
	return os.MkdirAll(w.Dir, 0o755)
}

func writeJSON(path string, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, payload, 0o644)
}
