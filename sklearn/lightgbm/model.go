package lightgbm

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// Node is a single node of a decision tree. Leaves have both children set
// to -1.
type Node struct {
	LeftChild  int
	RightChild int

	// Split information (internal nodes)
	SplitFeature int
	Threshold    float64
	DefaultLeft  bool // direction taken by NaN
	Gain         float64

	// LeafValue already includes the learning rate.
	LeafValue float64

	Count      int
	SumHessian float64
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree is one boosting round. Nodes[0] is the root.
type Tree struct {
	Nodes     []Node
	NumLeaves int
	Shrinkage float64
}

// Predict returns the output of the leaf that x falls into.
func (t *Tree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	id := 0
	for {
		node := &t.Nodes[id]
		if node.IsLeaf() {
			return node.LeafValue
		}
		v := x[node.SplitFeature]
		switch {
		case v != v: // NaN
			if node.DefaultLeft {
				id = node.LeftChild
			} else {
				id = node.RightChild
			}
		case v <= node.Threshold:
			id = node.LeftChild
		default:
			id = node.RightChild
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(id int) int
	walk = func(id int) int {
		n := &t.Nodes[id]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.LeftChild), walk(n.RightChild))
	}
	return walk(0)
}

// BoostingType represents the boosting algorithm type
type BoostingType string

const (
	GBDT BoostingType = "gbdt" // Gradient Boosting Decision Tree
	GOSS BoostingType = "goss" // Gradient-based One-Side Sampling
)

// ParseBoostingType validates a boosting type name.
func ParseBoostingType(s string) (BoostingType, error) {
	switch BoostingType(s) {
	case GBDT, GOSS:
		return BoostingType(s), nil
	}
	return "", perrors.NewValidationError("boosting_type", "must be one of gbdt, goss", s)
}

// Model is a trained binary ensemble.
type Model struct {
	Objective    string
	BoostingType BoostingType
	LearningRate float64

	Trees     []Tree
	InitScore float64

	NumFeatures  int
	FeatureNames []string

	// BestIteration is the number of trees kept after early stopping, 0
	// when training ran to completion.
	BestIteration int
}

// NewModel creates an empty binary model.
func NewModel(numFeatures int) *Model {
	return &Model{
		Objective:    "binary",
		BoostingType: GBDT,
		NumFeatures:  numFeatures,
	}
}

func (m *Model) rawScore(x []float64) float64 {
	score := m.InitScore
	for i := range m.Trees {
		score += m.Trees[i].Predict(x)
	}
	return score
}

func (m *Model) checkInput(op string, X mat.Matrix) (int, error) {
	r, c := X.Dims()
	if c != m.NumFeatures {
		return 0, perrors.NewDimensionError(op, m.NumFeatures, c, 1)
	}
	return r, nil
}

// PredictRaw returns the raw log-odds for each row of X.
func (m *Model) PredictRaw(X mat.Matrix) (*mat.VecDense, error) {
	rows, err := m.checkInput("Model.PredictRaw", X)
	if err != nil {
		return nil, err
	}
	out := mat.NewVecDense(rows, nil)
	x := make([]float64, m.NumFeatures)
	for i := 0; i < rows; i++ {
		mat.Row(x, i, X)
		out.SetVec(i, m.rawScore(x))
	}
	return out, nil
}

// PredictProba returns P(y=1) for each row of X.
func (m *Model) PredictProba(X mat.Matrix) (*mat.VecDense, error) {
	raw, err := m.PredictRaw(X)
	if err != nil {
		return nil, err
	}
	for i := 0; i < raw.Len(); i++ {
		raw.SetVec(i, perrors.Sigmoid(raw.AtVec(i)))
	}
	return raw, nil
}

// Predict returns 0/1 labels using a 0.5 probability threshold.
func (m *Model) Predict(X mat.Matrix) (*mat.VecDense, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	for i := 0; i < proba.Len(); i++ {
		if proba.AtVec(i) > 0.5 {
			proba.SetVec(i, 1)
		} else {
			proba.SetVec(i, 0)
		}
	}
	return proba, nil
}

// FeatureImportance returns per-feature split counts ("split") or summed
// split gains ("gain").
func (m *Model) FeatureImportance(importanceType string) ([]float64, error) {
	if importanceType != "split" && importanceType != "gain" {
		return nil, perrors.NewValidationError("importance_type", "must be split or gain", importanceType)
	}
	importance := make([]float64, m.NumFeatures)
	for _, tree := range m.Trees {
		for _, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			if importanceType == "split" {
				importance[node.SplitFeature]++
			} else {
				importance[node.SplitFeature] += node.Gain
			}
		}
	}
	return importance, nil
}

// DumpText renders the model in a LightGBM-like text format.
func (m *Model) DumpText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tree\nversion=v3\nnum_class=1\nnum_tree_per_iteration=1\n")
	fmt.Fprintf(&sb, "max_feature_idx=%d\n", m.NumFeatures-1)
	fmt.Fprintf(&sb, "objective=%s\n", m.Objective)
	fmt.Fprintf(&sb, "boosting=%s\n", m.BoostingType)
	fmt.Fprintf(&sb, "feature_names=%s\n", strings.Join(m.featureNames(), " "))
	fmt.Fprintf(&sb, "init_score=%g\n", m.InitScore)

	for i, tree := range m.Trees {
		fmt.Fprintf(&sb, "\nTree=%d\nnum_leaves=%d\nshrinkage=%g\n", i, tree.NumLeaves, tree.Shrinkage)
		var splitFeature, threshold, gain, left, right, leafValue []string
		for _, n := range tree.Nodes {
			if n.IsLeaf() {
				leafValue = append(leafValue, fmt.Sprintf("%g", n.LeafValue))
				continue
			}
			splitFeature = append(splitFeature, fmt.Sprint(n.SplitFeature))
			threshold = append(threshold, fmt.Sprintf("%g", n.Threshold))
			gain = append(gain, fmt.Sprintf("%g", n.Gain))
			left = append(left, fmt.Sprint(n.LeftChild))
			right = append(right, fmt.Sprint(n.RightChild))
		}
		fmt.Fprintf(&sb, "split_feature=%s\n", strings.Join(splitFeature, " "))
		fmt.Fprintf(&sb, "split_gain=%s\n", strings.Join(gain, " "))
		fmt.Fprintf(&sb, "threshold=%s\n", strings.Join(threshold, " "))
		fmt.Fprintf(&sb, "left_child=%s\n", strings.Join(left, " "))
		fmt.Fprintf(&sb, "right_child=%s\n", strings.Join(right, " "))
		fmt.Fprintf(&sb, "leaf_value=%s\n", strings.Join(leafValue, " "))
	}
	sb.WriteString("\nend of trees\n")
	return sb.String()
}

func (m *Model) featureNames() []string {
	if len(m.FeatureNames) == m.NumFeatures {
		return m.FeatureNames
	}
	names := make([]string, m.NumFeatures)
	for i := range names {
		names[i] = DefaultFeatureName(i)
	}
	return names
}

// DefaultFeatureName is the name LightGBM gives an unnamed column.
func DefaultFeatureName(i int) string {
	return fmt.Sprintf("Column_%d", i)
}
