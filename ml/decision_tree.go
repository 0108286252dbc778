package ml

import (
	"fmt"
	"math"
	"sort"
)

const DefaultMaxDepth = 6

// DecisionTree is a CART classifier with median-threshold splits chosen by
// weighted Gini impurity. Nodes are stored flat; children are indices.
type DecisionTree struct {
	MaxDepth int        `json:"max_depth"`
	Features int        `json:"features"`
	Nodes    []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int             `json:"feature_idx"`
	Threshold  float64         `json:"threshold"`
	LeftChild  int             `json:"left_child"`
	RightChild int             `json:"right_child"`
	ClassLabel int             `json:"class_label"`
	IsLeaf     bool            `json:"is_leaf"`
	ClassProbs map[int]float64 `json:"class_probs,omitempty"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth}
}

func (dt *DecisionTree) Trained() bool {
	return len(dt.Nodes) > 0
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	width, err := CheckMatrix(features)
	if err != nil {
		return err
	}
	if len(features) != len(labels) {
		return fmt.Errorf("%d rows but %d labels: %w", len(features), len(labels), ErrShapeMismatch)
	}
	if dt.MaxDepth <= 0 {
		dt.MaxDepth = DefaultMaxDepth
	}
	dt.Features = width
	dt.Nodes = dt.grow(features, labels, 0)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, 0, err
	}
	return leaf.ClassLabel, leaf.ClassProbs[leaf.ClassLabel], nil
}

func (dt *DecisionTree) Probabilities(features []float64) (map[int]float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	out := make(map[int]float64, len(leaf.ClassProbs))
	for k, v := range leaf.ClassProbs {
		out[k] = v
	}
	return out, nil
}

func (dt *DecisionTree) leaf(features []float64) (*TreeNode, error) {
	if !dt.Trained() {
		return nil, ErrNotTrained
	}
	if len(features) != dt.Features {
		return nil, fmt.Errorf("got %d features, want %d: %w", len(features), dt.Features, ErrShapeMismatch)
	}
	if err := CheckFinite(features); err != nil {
		return nil, err
	}
	idx := 0
	for {
		node := &dt.Nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return nil, fmt.Errorf("corrupt tree: child index %d", idx)
		}
	}
}

// grow returns the subtree for the given rows with child indices relative
// to the first returned node.
func (dt *DecisionTree) grow(features [][]float64, labels []int, depth int) []TreeNode {
	leaf := []TreeNode{newLeaf(labels)}
	if depth >= dt.MaxDepth || isPure(labels) {
		return leaf
	}
	featureIdx, threshold, ok := bestSplit(features, labels)
	if !ok {
		return leaf
	}

	var leftX, rightX [][]float64
	var leftY, rightY []int
	for i, row := range features {
		if row[featureIdx] <= threshold {
			leftX, leftY = append(leftX, row), append(leftY, labels[i])
		} else {
			rightX, rightY = append(rightX, row), append(rightY, labels[i])
		}
	}

	left := dt.grow(leftX, leftY, depth+1)
	right := dt.grow(rightX, rightY, depth+1)
	shift(left, 1)
	shift(right, 1+len(left))

	root := leaf[0]
	root.IsLeaf = false
	root.FeatureIdx = featureIdx
	root.Threshold = threshold
	root.LeftChild = 1
	root.RightChild = 1 + len(left)

	nodes := make([]TreeNode, 0, 1+len(left)+len(right))
	nodes = append(nodes, root)
	nodes = append(nodes, left...)
	return append(nodes, right...)
}

func shift(nodes []TreeNode, offset int) {
	for i := range nodes {
		if !nodes[i].IsLeaf {
			nodes[i].LeftChild += offset
			nodes[i].RightChild += offset
		}
	}
}

func newLeaf(labels []int) TreeNode {
	counts := ClassCounts(labels)
	probs := make(map[int]float64, len(counts))
	best, bestCount := 0, -1
	for _, label := range uniqueSorted(labels) {
		probs[label] = float64(counts[label]) / float64(len(labels))
		if counts[label] > bestCount {
			best, bestCount = label, counts[label]
		}
	}
	return TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: best,
		IsLeaf:     true,
		ClassProbs: probs,
	}
}

func bestSplit(features [][]float64, labels []int) (int, float64, bool) {
	bestFeature, bestThreshold := -1, 0.0
	bestImpurity := math.MaxFloat64
	values := make([]float64, len(features))
	for f := range features[0] {
		for i, row := range features {
			values[i] = row[f]
		}
		threshold := median(values)
		var left, right []int
		for i, row := range features {
			if row[f] <= threshold {
				left = append(left, labels[i])
			} else {
				right = append(right, labels[i])
			}
		}
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		n := float64(len(labels))
		impurity := float64(len(left))/n*gini(left) + float64(len(right))/n*gini(right)
		if impurity < bestImpurity {
			bestFeature, bestThreshold, bestImpurity = f, threshold, impurity
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range ClassCounts(labels) {
		p := float64(count) / float64(len(labels))
		impurity -= p * p
	}
	return impurity
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func isPure(labels []int) bool {
	for _, l := range labels[1:] {
		if l != labels[0] {
			return false
		}
	}
	return true
}
