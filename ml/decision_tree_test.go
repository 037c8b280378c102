package ml

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 1, 1}

	model := NewDecisionTree(2)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	if confidence != 1 {
		t.Fatalf("expected pure leaf confidence 1, got %f", confidence)
	}

	label, proba, err := model.PredictProba([]float64{0.85, 0.85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 1 || len(proba) != 2 || proba[1] != 1 {
		t.Fatalf("expected class 1 with probability 1, got %d %v", label, proba)
	}
}

func TestDecisionTreeMinSamplesLeafKeepsMixedLeaf(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	labels := []int{0, 0, 0, 1}

	model := NewDecisionTree(5)
	model.MinSamplesLeaf = 2
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, proba, err := model.PredictProba([]float64{4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(proba[1]-0.5) > 1e-9 {
		t.Fatalf("expected mixed leaf with p(1)=0.5, got %v", proba)
	}
}

func TestDecisionTreeBalancedWeights(t *testing.T) {
	features := [][]float64{{1}, {1}, {1}, {1}}
	labels := []int{0, 0, 0, 1}

	model := NewDecisionTree(3)
	model.Balanced = true
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, proba, err := model.PredictProba([]float64{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(proba[0]-0.5) > 1e-9 || math.Abs(proba[1]-0.5) > 1e-9 {
		t.Fatalf("expected balanced distribution, got %v", proba)
	}
}

func TestDecisionTreeDeepTreeChildOffsets(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}}
	labels := []int{0, 1, 0, 1, 0, 1, 0, 1}

	model := NewDecisionTree(10)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, row := range features {
		label, _, err := model.Predict(row)
		if err != nil {
			t.Fatalf("row %d: unexpected error: %v", i, err)
		}
		if label != labels[i] {
			t.Fatalf("row %d: expected %d, got %d", i, labels[i], label)
		}
	}
}

func TestDecisionTreeSaveLoad(t *testing.T) {
	features := [][]float64{{1, 5}, {2, 4}, {8, 1}, {9, 2}}
	labels := []int{0, 0, 1, 1}
	model := NewDecisionTree(3)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	importance := model.FeatureImportance()
	if len(importance) != 2 || math.Abs(importance[0]+importance[1]-1) > 1e-9 {
		t.Fatalf("expected normalised importance, got %v", importance)
	}

	path := filepath.Join(t.TempDir(), "tree.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadModel(KindDecisionTree, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tree := loaded.(*DecisionTree)
	label, _, err := tree.Predict([]float64{8.5, 1.5})
	if err != nil || label != 1 {
		t.Fatalf("expected class 1 after reload, got %d (%v)", label, err)
	}
}

func TestDecisionTreeUntrained(t *testing.T) {
	model := &DecisionTree{}
	if _, _, err := model.PredictProba([]float64{1}); !errors.Is(err, ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
	if err := model.Save(filepath.Join(t.TempDir(), "x.json")); !errors.Is(err, ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted on save, got %v", err)
	}
}
