package store

import (
	"os"
	"path/filepath"
	"testing"

	"edupredict/ml"
)

func fittedSeries(t *testing.T, base float64) *ml.ARIMA {
	t.Helper()
	model := ml.NewARIMA(0, 1, 0)
	if err := model.Fit([]float64{base, base + 5, base + 3, base + 9, base + 12}); err != nil {
		t.Fatalf("fit: %v", err)
	}
	return model
}

func trainedTree(t *testing.T) *ml.DecisionTree {
	t.Helper()
	tree := ml.NewDecisionTree(2)
	if err := tree.Train([][]float64{{1}, {2}, {8}, {9}}, []int{0, 0, 1, 1}); err != nil {
		t.Fatalf("train: %v", err)
	}
	return tree
}

func TestLoadMissingDirectory(t *testing.T) {
	bundle := Load(filepath.Join(t.TempDir(), "absent"), nil)
	if bundle.Loaded {
		t.Fatal("expected bundle not loaded")
	}
	if bundle.Status() != "not_loaded" {
		t.Fatalf("unexpected status %s", bundle.Status())
	}
}

func TestLoadEmptyDirectory(t *testing.T) {
	bundle := Load(t.TempDir(), nil)
	if bundle.Loaded {
		t.Fatal("expected empty directory to count as not loaded")
	}
}

func TestWriterLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	w := Writer{Dir: dir}
	threshold := 5.5
	if err := w.SaveSeries(fittedSeries(t, 300), fittedSeries(t, 280), SeriesMetadata{
		Students:    SeriesInfo{Order: ml.Order{D: 1}, AIC: 120, MeanValue: 305},
		Enrollments: SeriesInfo{Order: ml.Order{D: 1}, AIC: 118, MeanValue: 285},
		DataPeriods: 5,
	}); err != nil {
		t.Fatalf("save series: %v", err)
	}
	if err := w.SaveTree(trainedTree(t), TreeMetadata{
		Features:               []string{ml.FeatureStudents},
		Accuracy:               0.9,
		MedianDropoutThreshold: &threshold,
	}); err != nil {
		t.Fatalf("save tree: %v", err)
	}

	bundle := Load(dir, nil)
	if !bundle.Loaded || bundle.Status() != "loaded" {
		t.Fatal("expected bundle loaded")
	}
	if !bundle.HasSeriesModels() || bundle.Classifier == nil {
		t.Fatalf("expected all models, got %+v", bundle)
	}
	if bundle.SeriesMeta == nil || bundle.SeriesMeta.Students.MeanValue != 305 {
		t.Fatalf("unexpected series metadata %+v", bundle.SeriesMeta)
	}
	if bundle.TreeMeta == nil || bundle.TreeMeta.MedianDropoutThreshold == nil || *bundle.TreeMeta.MedianDropoutThreshold != 5.5 {
		t.Fatalf("unexpected tree metadata %+v", bundle.TreeMeta)
	}
	forecast, err := bundle.Students.Forecast(2)
	if err != nil || forecast[0] != 312 {
		t.Fatalf("expected random walk forecast 312, got %v (%v)", forecast, err)
	}
}

func TestLoadSkipsBrokenArtifacts(t *testing.T) {
	dir := t.TempDir()
	if err := (Writer{Dir: dir}).SaveTree(trainedTree(t), TreeMetadata{Accuracy: 0.8}); err != nil {
		t.Fatalf("save tree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, StudentsModelFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, TreeMetadataFile), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	bundle := Load(dir, nil)
	if !bundle.Loaded {
		t.Fatal("expected partial bundle to be loaded")
	}
	if bundle.Students != nil || bundle.Enrollments != nil || bundle.SeriesMeta != nil {
		t.Fatalf("expected series artifacts absent, got %+v", bundle)
	}
	if bundle.Classifier == nil {
		t.Fatal("expected classifier present")
	}
	if bundle.TreeMeta != nil {
		t.Fatal("expected undecodable metadata to be dropped")
	}
}
