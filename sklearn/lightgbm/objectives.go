package lightgbm

import (
	"math"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// ObjectiveFunction defines the interface for different objective functions.
// prediction is always the raw score.
type ObjectiveFunction interface {
	// CalculateGradient calculates the gradient for a single sample
	CalculateGradient(prediction, target float64) float64

	// CalculateHessian calculates the hessian for a single sample
	CalculateHessian(prediction, target float64) float64

	// CalculateLoss calculates the loss for a single sample
	CalculateLoss(prediction, target float64) float64

	// GetInitScore returns the initial score for this objective
	GetInitScore(targets []float64) float64

	// Name returns the name of the objective
	Name() string
}

// BinaryLogloss is the logistic loss on raw log-odds.
type BinaryLogloss struct{}

// NewBinaryLogloss creates the binary objective.
func NewBinaryLogloss() *BinaryLogloss {
	return &BinaryLogloss{}
}

// CalculateGradient returns p - y.
func (o *BinaryLogloss) CalculateGradient(prediction, target float64) float64 {
	return perrors.Sigmoid(prediction) - target
}

// CalculateHessian returns p(1-p), floored to keep leaf values finite.
func (o *BinaryLogloss) CalculateHessian(prediction, target float64) float64 {
	p := perrors.Sigmoid(prediction)
	return math.Max(p*(1-p), 1e-16)
}

// CalculateLoss returns -(y log p + (1-y) log(1-p)).
func (o *BinaryLogloss) CalculateLoss(prediction, target float64) float64 {
	p := perrors.Sigmoid(prediction)
	return -(target*perrors.StabilizeLog(p) + (1-target)*perrors.StabilizeLog(1-p))
}

// GetInitScore returns log(p̄/(1-p̄)) of the positive rate.
func (o *BinaryLogloss) GetInitScore(targets []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	pos := 0.0
	for _, t := range targets {
		pos += t
	}
	p := perrors.ClipValue(pos/float64(len(targets)), 1e-15, 1-1e-15)
	return math.Log(p / (1 - p))
}

func (o *BinaryLogloss) Name() string {
	return "binary"
}

// CreateObjectiveFunction returns the objective registered under name.
func CreateObjectiveFunction(name string) (ObjectiveFunction, error) {
	switch name {
	case "", "binary", "binary_logloss", "logistic":
		return NewBinaryLogloss(), nil
	}
	return nil, perrors.NewValidationError("objective", "unsupported objective", name)
}
