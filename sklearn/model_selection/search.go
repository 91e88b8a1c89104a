package model_selection

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/titanic-survival/core/model"
	"github.com/YuminosukeSato/titanic-survival/metrics"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

// Distribution is a hyperparameter distribution that can be sampled.
type Distribution interface {
	Sample(r *rand.Rand) any
}

// IntUniform samples integers uniformly from [Low, High).
type IntUniform struct {
	Low, High int
}

// Sample implements Distribution.
func (d IntUniform) Sample(r *rand.Rand) any {
	return d.Low + r.IntN(d.High-d.Low)
}

// FloatUniform samples floats uniformly from [Loc, Loc+Scale).
type FloatUniform struct {
	Loc, Scale float64
}

// Sample implements Distribution.
func (d FloatUniform) Sample(r *rand.Rand) any {
	return d.Loc + d.Scale*r.Float64()
}

// Choice samples one of Values uniformly.
type Choice struct {
	Values []any
}

// Sample implements Distribution.
func (d Choice) Sample(r *rand.Rand) any {
	return d.Values[r.IntN(len(d.Values))]
}

// Scorer scores a fitted classifier on held-out data; higher is better.
type Scorer func(clf model.Classifier, X mat.Matrix, y *mat.VecDense) (float64, error)

// GetScorer returns the scorer registered under name: accuracy, roc_auc or f1.
func GetScorer(name string) (Scorer, error) {
	switch name {
	case "accuracy":
		return func(clf model.Classifier, X mat.Matrix, y *mat.VecDense) (float64, error) {
			return clf.Score(X, y)
		}, nil
	case "f1":
		return func(clf model.Classifier, X mat.Matrix, y *mat.VecDense) (float64, error) {
			pred, err := clf.Predict(X)
			if err != nil {
				return 0, err
			}
			return metrics.F1Score(y, columnVec(pred, 0))
		}, nil
	case "roc_auc":
		return func(clf model.Classifier, X mat.Matrix, y *mat.VecDense) (float64, error) {
			proba, err := clf.PredictProba(X)
			if err != nil {
				return 0, err
			}
			_, c := proba.Dims()
			return metrics.AUC(y, columnVec(proba, c-1))
		}, nil
	}
	return nil, perrors.NewValidationError("scoring", "unknown scorer", name)
}

// CrossValScore fits a fresh estimator on each fold and returns the
// held-out scores.
func CrossValScore(newEstimator func() (model.Classifier, error), X *mat.Dense, y *mat.VecDense, folds []CVFold, scorer Scorer) ([]float64, error) {
	scores := make([]float64, len(folds))
	for i, fold := range folds {
		est, err := newEstimator()
		if err != nil {
			return nil, err
		}
		Xtr, ytr := SubsetRows(X, y, fold.TrainIndices)
		Xte, yte := SubsetRows(X, y, fold.TestIndices)
		err = perrors.SafeExecute(fmt.Sprintf("fit fold %d", i), func() error {
			return est.Fit(Xtr, ytr)
		})
		if err != nil {
			return nil, perrors.Wrapf(err, "fit fold %d", i)
		}
		if scores[i], err = scorer(est, Xte, yte); err != nil {
			return nil, perrors.Wrapf(err, "score fold %d", i)
		}
	}
	return scores, nil
}

// SearchResult holds the cross-validated score of one candidate.
type SearchResult struct {
	Params     map[string]any
	FoldScores []float64
	MeanScore  float64
	StdScore   float64
	Rank       int
	FitTime    time.Duration
}

// RandomizedSearch samples NIter parameter settings from
// ParamDistributions, scores each by stratified k-fold cross-validation and
// refits the best setting on the whole dataset.
type RandomizedSearch struct {
	NewEstimator       func() model.Tunable
	ParamDistributions map[string]Distribution
	NIter              int
	CV                 int
	Scoring            string
	Seed               uint64
	Logger             log.Logger

	BestParams    map[string]any
	BestScore     float64
	BestEstimator model.Tunable
	Results       []SearchResult
}

// NewRandomizedSearch creates a search with accuracy scoring.
func NewRandomizedSearch(newEstimator func() model.Tunable, dists map[string]Distribution, nIter, cv int, seed uint64) *RandomizedSearch {
	return &RandomizedSearch{
		NewEstimator:       newEstimator,
		ParamDistributions: dists,
		NIter:              nIter,
		CV:                 cv,
		Scoring:            "accuracy",
		Seed:               seed,
	}
}

// SampleParams draws NIter parameter settings. Parameters are sampled in
// name order so the result only depends on the seed.
func (s *RandomizedSearch) SampleParams() []map[string]any {
	names := make([]string, 0, len(s.ParamDistributions))
	for name := range s.ParamDistributions {
		names = append(names, name)
	}
	slices.Sort(names)

	r := newRand(s.Seed)
	out := make([]map[string]any, s.NIter)
	for i := range out {
		params := make(map[string]any, len(names))
		for _, name := range names {
			params[name] = s.ParamDistributions[name].Sample(r)
		}
		out[i] = params
	}
	return out
}

func (s *RandomizedSearch) validate() error {
	if s.NewEstimator == nil {
		return perrors.NewValidationError("estimator", "must not be nil", nil)
	}
	if s.NIter < 1 {
		return perrors.NewValidationError("n_iter", "must be at least 1", s.NIter)
	}
	if s.CV < 2 {
		return perrors.NewValidationError("cv", "must be at least 2", s.CV)
	}
	for name, d := range s.ParamDistributions {
		switch dd := d.(type) {
		case IntUniform:
			if dd.High <= dd.Low {
				return perrors.NewValidationError(name, "high must be greater than low", dd)
			}
		case Choice:
			if len(dd.Values) == 0 {
				return perrors.NewValidationError(name, "choice must not be empty", dd)
			}
		}
	}
	return nil
}

// Fit runs the search. ctx is checked between candidates.
func (s *RandomizedSearch) Fit(ctx context.Context, X *mat.Dense, y *mat.VecDense) (err error) {
	defer perrors.Recover(&err, "RandomizedSearch.Fit")

	if err := s.validate(); err != nil {
		return err
	}
	scorer, err := GetScorer(s.Scoring)
	if err != nil {
		return err
	}
	logger := s.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("model_selection")
	}

	labels := make([]float64, y.Len())
	for i := range labels {
		labels[i] = y.AtVec(i)
	}
	folds, err := NewStratifiedKFold(s.CV, false, s.Seed).Split(labels)
	if err != nil {
		return err
	}

	candidates := s.SampleParams()
	s.Results = make([]SearchResult, 0, len(candidates))
	bestIdx := -1
	for i, params := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		scores, err := CrossValScore(func() (model.Classifier, error) {
			est := s.NewEstimator()
			return est, est.SetParams(params)
		}, X, y, folds, scorer)
		if err != nil {
			return perrors.Wrapf(err, "candidate %d %v", i, params)
		}

		res := SearchResult{
			Params:     params,
			FoldScores: scores,
			MeanScore:  stat.Mean(scores, nil),
			StdScore:   math.Sqrt(stat.PopVariance(scores, nil)),
			FitTime:    time.Since(start),
		}
		s.Results = append(s.Results, res)
		logger.Debug("Candidate evaluated",
			log.OperationKey, log.OperationSearch,
			"candidate", i,
			log.HyperParamsKey, fmt.Sprint(params),
			log.ScoreKey, res.MeanScore,
		)
		if bestIdx < 0 || res.MeanScore > s.Results[bestIdx].MeanScore {
			bestIdx = i
		}
	}
	s.rank()

	s.BestParams = s.Results[bestIdx].Params
	s.BestScore = s.Results[bestIdx].MeanScore
	best := s.NewEstimator()
	if err := best.SetParams(s.BestParams); err != nil {
		return err
	}
	if err := best.Fit(X, y); err != nil {
		return perrors.Wrap(err, "refit best estimator")
	}
	s.BestEstimator = best

	logger.Info("Randomized search completed",
		log.OperationKey, log.OperationSearch,
		"candidates", len(candidates),
		"folds", s.CV,
		log.ScoreKey, s.BestScore,
		log.HyperParamsKey, fmt.Sprint(s.BestParams),
	)
	return nil
}

// rank assigns 1-based ranks by descending mean score; ties share the
// lower rank.
func (s *RandomizedSearch) rank() {
	order := make([]int, len(s.Results))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case s.Results[a].MeanScore > s.Results[b].MeanScore:
			return -1
		case s.Results[a].MeanScore < s.Results[b].MeanScore:
			return 1
		}
		return 0
	})
	for pos, idx := range order {
		if pos > 0 && s.Results[idx].MeanScore == s.Results[order[pos-1]].MeanScore {
			s.Results[idx].Rank = s.Results[order[pos-1]].Rank
			continue
		}
		s.Results[idx].Rank = pos + 1
	}
}

// SubsetRows copies the given rows of X and y.
func SubsetRows(X *mat.Dense, y *mat.VecDense, rows []int) (*mat.Dense, *mat.VecDense) {
	_, c := X.Dims()
	Xs := mat.NewDense(len(rows), c, nil)
	ys := mat.NewVecDense(len(rows), nil)
	for i, r := range rows {
		Xs.SetRow(i, X.RawRowView(r))
		ys.SetVec(i, y.AtVec(r))
	}
	return Xs, ys
}

func columnVec(m mat.Matrix, j int) *mat.VecDense {
	r, _ := m.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, j))
	}
	return v
}
