package lightgbm

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// EarlyStopping remembers the best score of one validation metric and how
// many iterations have passed without beating it.
type EarlyStopping struct {
	Rounds   int
	Metric   string
	Minimize bool

	BestScore float64
	// BestIteration is -1 until the first Update.
	BestIteration int
	stale         int
}

// NewEarlyStopping returns nil when rounds <= 0. A nil *EarlyStopping never
// stops and has no best iteration.
func NewEarlyStopping(rounds int, metric string, minimize bool) *EarlyStopping {
	if rounds <= 0 {
		return nil
	}
	best := math.Inf(1)
	if !minimize {
		best = math.Inf(-1)
	}
	return &EarlyStopping{
		Rounds:        rounds,
		Metric:        metric,
		Minimize:      minimize,
		BestScore:     best,
		BestIteration: -1,
	}
}

// Update records score for iteration and reports whether Rounds iterations
// have now passed without improvement. NaN never improves.
func (es *EarlyStopping) Update(iteration int, score float64) bool {
	if es == nil {
		return false
	}
	better := score < es.BestScore
	if !es.Minimize {
		better = score > es.BestScore
	}
	if better {
		es.BestScore = score
		es.BestIteration = iteration
		es.stale = 0
		return false
	}
	es.stale++
	return es.stale >= es.Rounds
}

// Best returns the best iteration seen so far, or -1.
func (es *EarlyStopping) Best() int {
	if es == nil {
		return -1
	}
	return es.BestIteration
}

// ValidationData is the held-out set evaluated after every iteration.
type ValidationData struct {
	X mat.Matrix
	Y mat.Matrix
}
