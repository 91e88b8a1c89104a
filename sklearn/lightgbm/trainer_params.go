package lightgbm

import (
	"math"
	"math/rand/v2"
	"slices"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// TrainingParams contains all training hyperparameters
type TrainingParams struct {
	// Basic parameters
	NumIterations int     `json:"num_iterations"`
	LearningRate  float64 `json:"learning_rate"`
	NumLeaves     int     `json:"num_leaves"`
	MaxDepth      int     `json:"max_depth"` // <= 0 means no limit
	MinDataInLeaf int     `json:"min_data_in_leaf"`

	// Regularization
	MinSumHessianInLeaf float64 `json:"min_sum_hessian_in_leaf"`
	Lambda              float64 `json:"lambda_l2"`
	MinGainToSplit      float64 `json:"min_gain_to_split"`

	// Sampling
	BoostingType    BoostingType `json:"boosting"`
	BaggingFraction float64      `json:"bagging_fraction"`
	BaggingFreq     int          `json:"bagging_freq"`
	FeatureFraction float64      `json:"feature_fraction"`
	TopRate         float64      `json:"top_rate"`
	OtherRate       float64      `json:"other_rate"`

	// Histogram parameters
	MaxBin int `json:"max_bin"`

	Objective           string `json:"objective"`
	Seed                uint64 `json:"seed"`
	EarlyStoppingRounds int    `json:"early_stopping_rounds"`
	Verbosity           int    `json:"verbosity"`
}

// DefaultTrainingParams returns LightGBM's defaults for binary training.
func DefaultTrainingParams() TrainingParams {
	return TrainingParams{
		NumIterations:       100,
		LearningRate:        0.1,
		NumLeaves:           31,
		MaxDepth:            -1,
		MinDataInLeaf:       20,
		MinSumHessianInLeaf: 1e-3,
		BoostingType:        GBDT,
		BaggingFraction:     1.0,
		FeatureFraction:     1.0,
		TopRate:             0.2,
		OtherRate:           0.1,
		MaxBin:              255,
		Objective:           "binary",
	}
}

// Validate checks parameter ranges.
func (p TrainingParams) Validate() error {
	switch {
	case p.NumIterations < 1:
		return perrors.NewValidationError("num_iterations", "must be at least 1", p.NumIterations)
	case !(p.LearningRate > 0):
		return perrors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	case p.NumLeaves < 2:
		return perrors.NewValidationError("num_leaves", "must be at least 2", p.NumLeaves)
	case p.MinDataInLeaf < 1:
		return perrors.NewValidationError("min_data_in_leaf", "must be at least 1", p.MinDataInLeaf)
	case p.Lambda < 0:
		return perrors.NewValidationError("lambda_l2", "must not be negative", p.Lambda)
	case p.MaxBin < 2 || p.MaxBin > math.MaxUint16-1:
		return perrors.NewValidationError("max_bin", "must be between 2 and 65534", p.MaxBin)
	case p.BaggingFraction <= 0 || p.BaggingFraction > 1:
		return perrors.NewValidationError("bagging_fraction", "must be in (0, 1]", p.BaggingFraction)
	case p.FeatureFraction <= 0 || p.FeatureFraction > 1:
		return perrors.NewValidationError("feature_fraction", "must be in (0, 1]", p.FeatureFraction)
	}
	if _, err := ParseBoostingType(string(p.BoostingType)); err != nil {
		return err
	}
	if p.BoostingType == GOSS {
		if p.TopRate <= 0 || p.OtherRate <= 0 || p.TopRate+p.OtherRate > 1 {
			return perrors.NewValidationError("top_rate", "goss needs top_rate > 0, other_rate > 0 and top_rate + other_rate <= 1",
				[]float64{p.TopRate, p.OtherRate})
		}
		if p.BaggingFraction < 1 && p.BaggingFreq > 0 {
			return perrors.NewValidationError("bagging_fraction", "cannot use bagging in goss", p.BaggingFraction)
		}
	}
	return nil
}

// SamplingStrategy handles data and feature sampling for training
type SamplingStrategy struct {
	rng    *rand.Rand
	params TrainingParams
	bag    []int
}

// NewSamplingStrategy creates a new sampling strategy
func NewSamplingStrategy(params TrainingParams) *SamplingStrategy {
	return &SamplingStrategy{
		rng:    rand.New(rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15)),
		params: params,
	}
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// sampleSorted draws k distinct values from [0, n) and returns them sorted.
func (s *SamplingStrategy) sampleSorted(n, k int) []int {
	perm := allIndices(n)
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	out := perm[:k]
	slices.Sort(out)
	return out
}

// SampleFeatures returns the feature indices used for one tree.
func (s *SamplingStrategy) SampleFeatures(numFeatures int) []int {
	if s.params.FeatureFraction >= 1 {
		return allIndices(numFeatures)
	}
	k := max(1, int(math.Round(float64(numFeatures)*s.params.FeatureFraction)))
	return s.sampleSorted(numFeatures, min(k, numFeatures))
}

// SampleInstances returns the bagged rows for an iteration. A new bag is
// drawn every BaggingFreq iterations and reused in between.
func (s *SamplingStrategy) SampleInstances(numInstances, iteration int) []int {
	if s.params.BaggingFreq <= 0 || s.params.BaggingFraction >= 1 {
		return allIndices(numInstances)
	}
	if s.bag == nil || iteration%s.params.BaggingFreq == 0 {
		k := max(1, int(float64(numInstances)*s.params.BaggingFraction))
		s.bag = s.sampleSorted(numInstances, k)
	}
	return s.bag
}

// GOSS keeps the TopRate share of rows with the largest |gradient| and a
// random OtherRate share of the rest, scaling the gradients and hessians of
// the latter by (1-TopRate)/OtherRate in place. The first 1/LearningRate
// iterations use every row.
func (s *SamplingStrategy) GOSS(grad, hess []float64, iteration int) []int {
	n := len(grad)
	if iteration < int(1/s.params.LearningRate) {
		return allIndices(n)
	}
	topN := int(float64(n) * s.params.TopRate)
	otherN := int(float64(n) * s.params.OtherRate)
	if topN+otherN >= n || otherN == 0 {
		return allIndices(n)
	}

	order := allIndices(n)
	slices.SortStableFunc(order, func(a, b int) int {
		ga, gb := math.Abs(grad[a]*hess[a]), math.Abs(grad[b]*hess[b])
		switch {
		case ga > gb:
			return -1
		case ga < gb:
			return 1
		}
		return 0
	})

	rest := order[topN:]
	picked := make([]int, 0, topN+otherN)
	picked = append(picked, order[:topN]...)
	amplify := (1 - s.params.TopRate) / s.params.OtherRate
	for _, pos := range s.sampleSorted(len(rest), otherN) {
		row := rest[pos]
		grad[row] *= amplify
		hess[row] *= amplify
		picked = append(picked, row)
	}
	slices.Sort(picked)
	return picked
}
