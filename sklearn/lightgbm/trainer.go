package lightgbm

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanic-survival/core/parallel"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

const (
	metricTrainLoss = "training_binary_logloss"
	metricValidLoss = "valid_binary_logloss"

	// features searched concurrently once a tree has more than this many
	parallelFeatureThreshold = 4
	// rows scored concurrently once the dataset has more than this many
	parallelRowThreshold = 2048
)

// Trainer implements histogram-based, leaf-wise gradient boosting.
type Trainer struct {
	params       TrainingParams
	objective    ObjectiveFunction
	sampler      *SamplingStrategy
	callbacks    *CallbackList
	logger       log.Logger
	featureNames []string

	// Data
	X       *mat.Dense
	y       []float64
	mappers []*BinMapper
	binned  [][]uint16 // [feature][row]

	// Gradient and Hessian
	scores    []float64
	gradients []float64
	hessians  []float64

	trees         []Tree
	initScore     float64
	bestIteration int
}

// NewTrainer creates a trainer. Zero-valued parameters that have no valid
// zero setting take LightGBM's defaults.
func NewTrainer(params TrainingParams) *Trainer {
	def := DefaultTrainingParams()
	if params.NumIterations == 0 {
		params.NumIterations = def.NumIterations
	}
	if params.LearningRate == 0 {
		params.LearningRate = def.LearningRate
	}
	if params.NumLeaves == 0 {
		params.NumLeaves = def.NumLeaves
	}
	if params.MinDataInLeaf == 0 {
		params.MinDataInLeaf = def.MinDataInLeaf
	}
	if params.MaxBin == 0 {
		params.MaxBin = def.MaxBin
	}
	if params.BaggingFraction == 0 {
		params.BaggingFraction = def.BaggingFraction
	}
	if params.FeatureFraction == 0 {
		params.FeatureFraction = def.FeatureFraction
	}
	if params.TopRate == 0 {
		params.TopRate = def.TopRate
	}
	if params.OtherRate == 0 {
		params.OtherRate = def.OtherRate
	}
	if params.BoostingType == "" {
		params.BoostingType = def.BoostingType
	}
	if params.Objective == "" {
		params.Objective = def.Objective
	}

	return &Trainer{
		params: params,
		logger: log.GetLoggerWithName("lightgbm.trainer"),
	}
}

// WithCallbacks sets the callbacks for training
func (t *Trainer) WithCallbacks(callbacks ...Callback) *Trainer {
	t.callbacks = NewCallbackList(callbacks...)
	return t
}

// WithLogger sets the logger used for training progress.
func (t *Trainer) WithLogger(logger log.Logger) *Trainer {
	t.logger = logger
	return t
}

// WithFeatureNames records feature names in the trained model.
func (t *Trainer) WithFeatureNames(names []string) *Trainer {
	t.featureNames = slices.Clone(names)
	return t
}

// Params returns the effective training parameters.
func (t *Trainer) Params() TrainingParams {
	return t.params
}

// Fit trains the LightGBM model
func (t *Trainer) Fit(X, y mat.Matrix) error {
	return t.FitWithValidation(X, y, nil)
}

// FitWithValidation trains on X, y and, when valData is given, evaluates
// it after every iteration. With EarlyStoppingRounds > 0 training stops once
// the validation loss has not improved for that many rounds and the
// ensemble is truncated to the best iteration.
func (t *Trainer) FitWithValidation(X, y mat.Matrix, valData *ValidationData) error {
	if err := t.params.Validate(); err != nil {
		return err
	}
	objective, err := CreateObjectiveFunction(t.params.Objective)
	if err != nil {
		return err
	}
	t.objective = objective

	if err := t.setData(X, y); err != nil {
		return err
	}
	rows, cols := t.X.Dims()

	var valX *mat.Dense
	var valY, valScores []float64
	if valData != nil {
		if valX, valY, err = toDataset("FitWithValidation", valData.X, valData.Y); err != nil {
			return err
		}
		if _, vc := valX.Dims(); vc != cols {
			return perrors.NewDimensionError("FitWithValidation", cols, vc, 1)
		}
		valScores = make([]float64, len(valY))
	}

	t.buildBins()
	t.initScore = t.objective.GetInitScore(t.y)
	t.scores = make([]float64, rows)
	for i := range t.scores {
		t.scores[i] = t.initScore
	}
	for i := range valScores {
		valScores[i] = t.initScore
	}
	t.gradients = make([]float64, rows)
	t.hessians = make([]float64, rows)
	t.sampler = NewSamplingStrategy(t.params)
	t.trees = t.trees[:0]
	t.bestIteration = 0

	var es *EarlyStopping
	if valData != nil {
		es = NewEarlyStopping(t.params.EarlyStoppingRounds, metricValidLoss, true)
	}

	for iter := 0; iter < t.params.NumIterations; iter++ {
		if t.callbacks != nil {
			t.callbacks.BeforeIteration(iter, t.GetModel())
		}

		t.calculateGradients()
		if err := perrors.CheckNumericalStability("gradient", t.gradients, iter); err != nil {
			return err
		}
		var sample []int
		if t.params.BoostingType == GOSS {
			sample = t.sampler.GOSS(t.gradients, t.hessians, iter)
		} else {
			sample = t.sampler.SampleInstances(rows, iter)
		}
		features := t.sampler.SampleFeatures(cols)

		tree := t.growTree(sample, features)
		if tree.NumLeaves <= 1 {
			t.logger.Debug("Stopped training because there are no more leaves that meet the split requirements",
				log.IterationKey, iter)
			break
		}
		t.trees = append(t.trees, tree)
		t.updateScores(&tree, t.X, t.scores)

		evalResults := map[string]float64{metricTrainLoss: t.meanLoss(t.scores, t.y)}
		if valData != nil {
			t.updateScores(&tree, valX, valScores)
			evalResults[metricValidLoss] = t.meanLoss(valScores, valY)
		}

		if t.params.Verbosity > 0 && iter%10 == 0 {
			t.logger.Debug("Training progress",
				log.IterationKey, iter,
				log.LossKey, evalResults[metricTrainLoss])
		}

		if es.Update(iter, evalResults[metricValidLoss]) {
			perrors.Warn(perrors.NewConvergenceWarning("LightGBM", iter+1,
				fmt.Sprintf("early stopping, best iteration is %d with %s %.6f",
					es.Best()+1, metricValidLoss, es.BestScore)))
			break
		}

		if t.callbacks != nil {
			if err := t.callbacks.AfterIteration(iter, t.GetModel(), evalResults); err != nil {
				return perrors.Wrapf(err, "callback error at iteration %d", iter)
			}
			if t.callbacks.ShouldStop() {
				if best := t.callbacks.BestIteration(); best >= 0 {
					t.truncate(best)
				}
				t.logger.Debug("Training stopped by callback", log.IterationKey, iter)
				break
			}
		}
	}

	// the ensemble ends at the best validation iteration whether or not
	// the stopping rule fired
	if best := es.Best(); best >= 0 {
		t.truncate(best)
	}

	t.logger.Debug("Boosting finished",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"trees", len(t.trees),
		log.LossKey, t.meanLoss(t.scores, t.y),
	)
	return nil
}

// truncate keeps the trees up to and including iteration best.
func (t *Trainer) truncate(best int) {
	if best+1 < len(t.trees) {
		t.trees = t.trees[:best+1]
	}
	t.bestIteration = best + 1
}

func toDataset(op string, X, y mat.Matrix) (*mat.Dense, []float64, error) {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return nil, nil, perrors.ErrEmptyData
	}
	if rows != yRows {
		return nil, nil, perrors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return nil, nil, perrors.NewDimensionError(op, 1, yCols, 1)
	}

	dense := mat.DenseCopyOf(X)
	labels := make([]float64, rows)
	for i := range labels {
		labels[i] = y.At(i, 0)
		if labels[i] != 0 && labels[i] != 1 {
			return nil, nil, perrors.NewValidationError("y", "binary labels must be 0 or 1", labels[i])
		}
	}
	return dense, labels, nil
}

func (t *Trainer) setData(X, y mat.Matrix) error {
	dense, labels, err := toDataset("Fit", X, y)
	if err != nil {
		return err
	}
	t.X, t.y = dense, labels
	return nil
}

// buildBins maps every feature to histogram bins, one feature per worker.
func (t *Trainer) buildBins() {
	rows, cols := t.X.Dims()
	t.mappers = make([]*BinMapper, cols)
	t.binned = make([][]uint16, cols)
	parallel.ParallelizeWithThreshold(cols, parallelFeatureThreshold, func(start, end int) {
		values := make([]float64, rows)
		for j := start; j < end; j++ {
			mat.Col(values, j, t.X)
			mapper := NewBinMapper(values, t.params.MaxBin)
			bins := make([]uint16, rows)
			for i, v := range values {
				bins[i] = uint16(mapper.Bin(v))
			}
			t.mappers[j] = mapper
			t.binned[j] = bins
		}
	})
}

// calculateGradients computes gradients and hessians for current predictions
func (t *Trainer) calculateGradients() {
	for i, target := range t.y {
		t.gradients[i] = t.objective.CalculateGradient(t.scores[i], target)
		t.hessians[i] = t.objective.CalculateHessian(t.scores[i], target)
	}
}

func (t *Trainer) updateScores(tree *Tree, X *mat.Dense, scores []float64) {
	parallel.ParallelizeWithThreshold(len(scores), parallelRowThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			scores[i] += tree.Predict(X.RawRowView(i))
		}
	})
}

func (t *Trainer) meanLoss(scores, targets []float64) float64 {
	if len(targets) == 0 {
		return math.NaN()
	}
	loss := 0.0
	for i, target := range targets {
		loss += t.objective.CalculateLoss(scores[i], target)
	}
	return loss / float64(len(targets))
}

// leafState is a leaf of the tree being grown.
type leafState struct {
	node  int
	rows  []int
	depth int
	grad  float64
	hess  float64
	split SplitInfo
}

// growTree grows one tree leaf-wise: the leaf with the largest gain is
// split until NumLeaves is reached or no leaf can be split.
func (t *Trainer) growTree(rows, features []int) Tree {
	tree := Tree{Shrinkage: t.params.LearningRate}
	tree.Nodes = append(tree.Nodes, Node{LeftChild: -1, RightChild: -1})

	root := &leafState{node: 0, rows: rows}
	for _, r := range rows {
		root.grad += t.gradients[r]
		root.hess += t.hessians[r]
	}
	root.split = t.findBestSplit(root, features)
	leaves := []*leafState{root}

	for len(leaves) < t.params.NumLeaves {
		bestIdx := -1
		for i, leaf := range leaves {
			if !leaf.split.valid() {
				continue
			}
			if bestIdx < 0 || leaf.split.Gain > leaves[bestIdx].split.Gain {
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}

		leaf := leaves[bestIdx]
		s := leaf.split
		left := &leafState{node: len(tree.Nodes), depth: leaf.depth + 1, grad: s.LeftGrad, hess: s.LeftHess}
		right := &leafState{node: len(tree.Nodes) + 1, depth: leaf.depth + 1, grad: s.RightGrad, hess: s.RightHess}
		missingBin := uint16(t.mappers[s.Feature].NumBins())
		bins := t.binned[s.Feature]
		for _, r := range leaf.rows {
			b := bins[r]
			if (b == missingBin && s.DefaultLeft) || (b != missingBin && int(b) <= s.Bin) {
				left.rows = append(left.rows, r)
			} else {
				right.rows = append(right.rows, r)
			}
		}

		node := &tree.Nodes[leaf.node]
		node.SplitFeature = s.Feature
		node.Threshold = s.Threshold
		node.DefaultLeft = s.DefaultLeft
		node.Gain = s.Gain
		node.LeftChild = left.node
		node.RightChild = right.node
		node.Count = len(leaf.rows)
		node.SumHessian = leaf.hess
		tree.Nodes = append(tree.Nodes,
			Node{LeftChild: -1, RightChild: -1},
			Node{LeftChild: -1, RightChild: -1})

		left.split = t.findBestSplit(left, features)
		right.split = t.findBestSplit(right, features)
		leaves[bestIdx] = left
		leaves = append(leaves, right)
	}

	for _, leaf := range leaves {
		node := &tree.Nodes[leaf.node]
		node.LeafValue = -perrors.SafeDivide(leaf.grad, leaf.hess+t.params.Lambda) * t.params.LearningRate
		node.Count = len(leaf.rows)
		node.SumHessian = leaf.hess
	}
	tree.NumLeaves = len(leaves)
	return tree
}

// findBestSplit searches the sampled features of a leaf, building one
// histogram per feature concurrently. Ties go to the lower feature index.
func (t *Trainer) findBestSplit(leaf *leafState, features []int) SplitInfo {
	none := SplitInfo{Feature: -1}
	if t.params.MaxDepth > 0 && leaf.depth >= t.params.MaxDepth {
		return none
	}
	if len(leaf.rows) < 2*t.params.MinDataInLeaf {
		return none
	}

	results := make([]SplitInfo, len(features))
	parallel.ParallelizeWithThreshold(len(features), parallelFeatureThreshold, func(start, end int) {
		for k := start; k < end; k++ {
			j := features[k]
			h := newHistogram(t.mappers[j].NumBins())
			h.add(t.binned[j], leaf.rows, t.gradients, t.hessians)
			results[k] = h.bestSplit(j, t.mappers[j], &t.params)
		}
	})

	best := none
	for _, s := range results {
		if !s.valid() || !(s.Gain > t.params.MinGainToSplit) {
			continue
		}
		if !best.valid() || s.Gain > best.Gain {
			best = s
		}
	}
	return best
}

// GetModel returns the trained model
func (t *Trainer) GetModel() *Model {
	cols := 0
	if t.X != nil {
		_, cols = t.X.Dims()
	}
	m := NewModel(cols)
	if t.objective != nil {
		m.Objective = t.objective.Name()
	}
	m.BoostingType = t.params.BoostingType
	m.LearningRate = t.params.LearningRate
	m.Trees = slices.Clone(t.trees)
	m.InitScore = t.initScore
	m.FeatureNames = slices.Clone(t.featureNames)
	m.BestIteration = t.bestIteration
	return m
}
