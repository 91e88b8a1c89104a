package lightgbm

import (
	"slices"
	"time"

	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

// CallbackEnv contains the environment for callbacks
type CallbackEnv struct {
	Model        *Model
	Iteration    int
	BeginTime    time.Time
	EndTime      time.Time
	EvalResults  map[string]float64
	StopTraining bool

	// BestIteration is set by EarlyStoppingCallback when it stops training.
	BestIteration int
}

// Callback is a function that can be called during training
type Callback func(env *CallbackEnv) error

// LogEvaluation logs the evaluation results every period iterations.
func LogEvaluation(logger log.Logger, period int) Callback {
	if period <= 0 {
		period = 1
	}
	return func(env *CallbackEnv) error {
		if (env.Iteration+1)%period != 0 {
			return nil
		}
		fields := []any{log.IterationKey, env.Iteration + 1}
		names := make([]string, 0, len(env.EvalResults))
		for name := range env.EvalResults {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fields = append(fields, name, env.EvalResults[name])
		}
		logger.Debug("Boosting round", fields...)
		return nil
	}
}

// RecordEvaluation records evaluation history
func RecordEvaluation(history map[string][]float64) Callback {
	return func(env *CallbackEnv) error {
		for name, value := range env.EvalResults {
			history[name] = append(history[name], value)
		}
		return nil
	}
}

// EarlyStoppingCallback stops training when metric has not improved for
// rounds iterations and reports the best iteration in the environment.
func EarlyStoppingCallback(rounds int, metric string, minimize bool) Callback {
	es := NewEarlyStopping(rounds, metric, minimize)

	return func(env *CallbackEnv) error {
		value, ok := env.EvalResults[metric]
		if !ok {
			return nil
		}
		if es.Update(env.Iteration, value) {
			env.StopTraining = true
			env.BestIteration = es.Best()
		}
		return nil
	}
}

// TimeLimit stops training after a specified duration
func TimeLimit(maxDuration time.Duration) Callback {
	startTime := time.Now()
	return func(env *CallbackEnv) error {
		if time.Since(startTime) > maxDuration {
			env.StopTraining = true
		}
		return nil
	}
}

// CallbackList manages multiple callbacks
type CallbackList struct {
	callbacks []Callback
	env       *CallbackEnv
}

// NewCallbackList creates a new callback list
func NewCallbackList(callbacks ...Callback) *CallbackList {
	return &CallbackList{
		callbacks: callbacks,
		env: &CallbackEnv{
			EvalResults:   make(map[string]float64),
			BestIteration: -1,
		},
	}
}

// BeforeIteration records the start time of an iteration.
func (cl *CallbackList) BeforeIteration(iteration int, model *Model) {
	cl.env.Iteration = iteration
	cl.env.Model = model
	cl.env.BeginTime = time.Now()
}

// AfterIteration calls callbacks after each iteration
func (cl *CallbackList) AfterIteration(iteration int, model *Model, evalResults map[string]float64) error {
	cl.env.Iteration = iteration
	cl.env.Model = model
	cl.env.EndTime = time.Now()
	cl.env.EvalResults = evalResults

	for _, cb := range cl.callbacks {
		if err := cb(cl.env); err != nil {
			return err
		}
	}
	return nil
}

// ShouldStop returns whether training should stop
func (cl *CallbackList) ShouldStop() bool {
	return cl.env.StopTraining
}

// BestIteration returns the iteration chosen by early stopping, or -1.
func (cl *CallbackList) BestIteration() int {
	return cl.env.BestIteration
}
