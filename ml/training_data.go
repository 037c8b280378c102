package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// GenerateLabels marks every rate strictly above the median as high risk
// (1) and the rest as low risk (0). The median is returned alongside.
func GenerateLabels(rates []float64) ([]int, float64, error) {
	if len(rates) == 0 {
		return nil, 0, errors.New("rates is empty")
	}
	median := Median(rates)
	labels := make([]int, len(rates))
	for i, rate := range rates {
		if rate > median {
			labels[i] = 1
		}
	}
	return labels, median, nil
}

// Dataset is a feature matrix with its labels.
type Dataset struct {
	X [][]float64
	Y []int
}

func (d Dataset) Len() int {
	return len(d.Y)
}

// StratifiedSplit shuffles each class with a seeded source and holds out
// testRatio of it, so both halves keep the class balance.
func StratifiedSplit(features [][]float64, labels []int, testRatio float64, seed int64) (train, test Dataset, err error) {
	if len(features) != len(labels) {
		return train, test, errors.New("features and labels size mismatch")
	}
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	byClass := make(map[int][]int)
	classes := make([]int, 0)
	for i, label := range labels {
		if _, ok := byClass[label]; !ok {
			classes = append(classes, label)
		}
		byClass[label] = append(byClass[label], i)
	}

	sort.Ints(classes)
	rnd := rand.New(rand.NewSource(seed))
	for _, class := range classes {
		indices := byClass[class]
		rnd.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
		holdout := int(math.Round(float64(len(indices)) * testRatio))
		for pos, idx := range indices {
			if pos < holdout {
				test.X = append(test.X, features[idx])
				test.Y = append(test.Y, labels[idx])
			} else {
				train.X = append(train.X, features[idx])
				train.Y = append(train.Y, labels[idx])
			}
		}
	}
	return train, test, nil
}

// Metrics for the positive class 1.
type Metrics struct {
	Accuracy  float64
	Precision float64
	Recall    float64
}

func Evaluate(model Classifier, data Dataset) Metrics {
	var metrics Metrics
	if data.Len() == 0 {
		return metrics
	}

	var correct, truePositive, predictedPositive, actualPositive int
	for i, feature := range data.X {
		label, _, err := model.PredictProba(feature)
		if err != nil {
			continue
		}
		if label == data.Y[i] {
			correct++
		}
		if label == 1 {
			predictedPositive++
		}
		if data.Y[i] == 1 {
			actualPositive++
			if label == 1 {
				truePositive++
			}
		}
	}

	metrics.Accuracy = float64(correct) / float64(data.Len())
	if predictedPositive > 0 {
		metrics.Precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		metrics.Recall = float64(truePositive) / float64(actualPositive)
	}
	return metrics
}
