package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

// DecisionTree is a binary CART classifier using weighted gini impurity.
// Nodes are stored depth-first in a flat slice; leaves carry the class
// distribution observed during training.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// Balanced weights every class by n_samples / (n_classes * n_class).
	Balanced bool

	classes    int
	nodes      []TreeNode
	importance []float64
}

type TreeNode struct {
	FeatureIdx   int       `json:"feature_idx"`
	Threshold    float64   `json:"threshold"`
	LeftChild    int       `json:"left_child"`
	RightChild   int       `json:"right_child"`
	ClassLabel   int       `json:"class_label"`
	IsLeaf       bool      `json:"is_leaf"`
	Distribution []float64 `json:"distribution"`
}

type treeFile struct {
	MaxDepth        int        `json:"max_depth"`
	MinSamplesSplit int        `json:"min_samples_split"`
	MinSamplesLeaf  int        `json:"min_samples_leaf"`
	Balanced        bool       `json:"balanced"`
	Classes         int        `json:"classes"`
	Importance      []float64  `json:"feature_importance"`
	Nodes           []TreeNode `json:"nodes"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature vectors are empty")
	}
	classes := 0
	for i, label := range labels {
		if label < 0 {
			return fmt.Errorf("negative label %d at row %d", label, i)
		}
		if len(features[i]) != width {
			return fmt.Errorf("row %d has %d features, want %d", i, len(features[i]), width)
		}
		if label+1 > classes {
			classes = label + 1
		}
	}
	if dt.MaxDepth <= 0 {
		dt.MaxDepth = 3
	}
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}
	if dt.MinSamplesLeaf < 1 {
		dt.MinSamplesLeaf = 1
	}

	b := &treeBuilder{
		tree:       dt,
		features:   features,
		labels:     labels,
		weights:    sampleWeights(labels, classes, dt.Balanced),
		classes:    classes,
		importance: make([]float64, width),
	}
	indices := make([]int, len(labels))
	for i := range indices {
		indices[i] = i
	}
	b.total = b.weightOf(indices)

	dt.classes = classes
	dt.nodes = b.build(indices, 0)
	dt.importance = normalizeImportance(b.importance)
	return nil
}

// Predict returns the winning class and its probability.
func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	label, dist, err := dt.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	return label, dist[label], nil
}

func (dt *DecisionTree) PredictProba(features []float64) (int, []float64, error) {
	if len(dt.nodes) == 0 {
		return 0, nil, ErrNotFitted
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			dist := append([]float64(nil), node.Distribution...)
			return node.ClassLabel, dist, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, nil, errors.New("invalid tree state")
		}
	}
}

// FeatureImportance returns the normalised total impurity decrease per feature.
func (dt *DecisionTree) FeatureImportance() []float64 {
	return append([]float64(nil), dt.importance...)
}

func (dt *DecisionTree) Classes() int {
	return dt.classes
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrNotFitted
	}
	payload, err := json.MarshalIndent(treeFile{
		MaxDepth:        dt.MaxDepth,
		MinSamplesSplit: dt.MinSamplesSplit,
		MinSamplesLeaf:  dt.MinSamplesLeaf,
		Balanced:        dt.Balanced,
		Classes:         dt.classes,
		Importance:      dt.importance,
		Nodes:           dt.nodes,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file treeFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return err
	}
	if len(file.Nodes) == 0 {
		return fmt.Errorf("%s: tree has no nodes", path)
	}
	for i, node := range file.Nodes {
		if node.IsLeaf && len(node.Distribution) != file.Classes {
			return fmt.Errorf("%s: leaf %d has %d probabilities, want %d", path, i, len(node.Distribution), file.Classes)
		}
	}
	dt.MaxDepth = file.MaxDepth
	dt.MinSamplesSplit = file.MinSamplesSplit
	dt.MinSamplesLeaf = file.MinSamplesLeaf
	dt.Balanced = file.Balanced
	dt.classes = file.Classes
	dt.importance = file.Importance
	dt.nodes = file.Nodes
	return nil
}

type treeBuilder struct {
	tree       *DecisionTree
	features   [][]float64
	labels     []int
	weights    []float64
	classes    int
	total      float64
	importance []float64
}

func (b *treeBuilder) build(indices []int, depth int) []TreeNode {
	counts := b.classWeights(indices)
	leaf := leafNode(counts)
	if depth >= b.tree.MaxDepth || len(indices) < b.tree.MinSamplesSplit || isPure(counts) {
		return []TreeNode{leaf}
	}

	split, ok := b.bestSplit(indices, counts)
	if !ok {
		return []TreeNode{leaf}
	}

	left, right := partition(b.features, indices, split.feature, split.threshold)
	nodeWeight := sum(counts)
	b.importance[split.feature] += nodeWeight/b.total*gini(counts) -
		split.leftWeight/b.total*split.leftImpurity -
		split.rightWeight/b.total*split.rightImpurity

	leftNodes := b.build(left, depth+1)
	rightNodes := b.build(right, depth+1)

	root := leaf
	root.IsLeaf = false
	root.FeatureIdx = split.feature
	root.Threshold = split.threshold
	root.LeftChild = 1
	root.RightChild = 1 + len(leftNodes)

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetChildren(leftNodes, 1)...)
	nodes = append(nodes, offsetChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

type candidateSplit struct {
	feature       int
	threshold     float64
	leftWeight    float64
	rightWeight   float64
	leftImpurity  float64
	rightImpurity float64
}

func (b *treeBuilder) bestSplit(indices []int, counts []float64) (candidateSplit, bool) {
	best := candidateSplit{feature: -1}
	bestImpurity := math.MaxFloat64
	minLeaf := b.tree.MinSamplesLeaf
	nodeWeight := sum(counts)

	order := make([]int, len(indices))
	for featureIdx := range b.features[indices[0]] {
		copy(order, indices)
		sort.SliceStable(order, func(i, j int) bool {
			return b.features[order[i]][featureIdx] < b.features[order[j]][featureIdx]
		})

		left := make([]float64, b.classes)
		right := append([]float64(nil), counts...)
		for pos := 0; pos < len(order)-1; pos++ {
			row := order[pos]
			w := b.weights[row]
			left[b.labels[row]] += w
			right[b.labels[row]] -= w

			current := b.features[row][featureIdx]
			next := b.features[order[pos+1]][featureIdx]
			if current == next {
				continue
			}
			if pos+1 < minLeaf || len(order)-pos-1 < minLeaf {
				continue
			}
			lw, rw := sum(left), sum(right)
			li, ri := gini(left), gini(right)
			impurity := (lw*li + rw*ri) / nodeWeight
			if impurity < bestImpurity {
				bestImpurity = impurity
				best = candidateSplit{
					feature:       featureIdx,
					threshold:     (current + next) / 2,
					leftWeight:    lw,
					rightWeight:   rw,
					leftImpurity:  li,
					rightImpurity: ri,
				}
			}
		}
	}
	return best, best.feature != -1
}

func (b *treeBuilder) classWeights(indices []int) []float64 {
	counts := make([]float64, b.classes)
	for _, i := range indices {
		counts[b.labels[i]] += b.weights[i]
	}
	return counts
}

func (b *treeBuilder) weightOf(indices []int) float64 {
	total := 0.0
	for _, i := range indices {
		total += b.weights[i]
	}
	return total
}

func sampleWeights(labels []int, classes int, balanced bool) []float64 {
	weights := make([]float64, len(labels))
	if !balanced {
		for i := range weights {
			weights[i] = 1
		}
		return weights
	}
	counts := make([]int, classes)
	for _, label := range labels {
		counts[label]++
	}
	present := 0
	for _, c := range counts {
		if c > 0 {
			present++
		}
	}
	for i, label := range labels {
		weights[i] = float64(len(labels)) / (float64(present) * float64(counts[label]))
	}
	return weights
}

func partition(features [][]float64, indices []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func offsetChildren(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func leafNode(counts []float64) TreeNode {
	total := sum(counts)
	dist := make([]float64, len(counts))
	label := 0
	for i, c := range counts {
		if total > 0 {
			dist[i] = c / total
		}
		if c > counts[label] {
			label = i
		}
	}
	return TreeNode{
		FeatureIdx:   -1,
		LeftChild:    -1,
		RightChild:   -1,
		ClassLabel:   label,
		IsLeaf:       true,
		Distribution: dist,
	}
}

func gini(counts []float64) float64 {
	total := sum(counts)
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := c / total
		impurity -= p * p
	}
	return impurity
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func normalizeImportance(values []float64) []float64 {
	total := sum(values)
	out := make([]float64, len(values))
	if total <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / total
	}
	return out
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
