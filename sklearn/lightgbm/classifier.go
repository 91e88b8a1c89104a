package lightgbm

import (
	"fmt"
	"maps"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanic-survival/core/model"
	"github.com/YuminosukeSato/titanic-survival/metrics"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

// LGBMClassifier is a binary gradient-boosted tree classifier with a
// scikit-learn style API. Labels must be 0 or 1.
//
// All fields are exported so the fitted classifier can be stored with gob.
type LGBMClassifier struct {
	model.BaseEstimator

	Model *Model

	// Hyperparameters (matching Python LightGBM)
	BoostingType        string  // gbdt or goss
	NumLeaves           int     // Number of leaves in one tree
	MaxDepth            int     // Maximum tree depth, <= 0 means no limit
	LearningRate        float64 // Boosting learning rate
	NEstimators         int     // Number of boosting iterations
	MinChildSamples     int     // Minimum number of data in one leaf
	MinChildWeight      float64 // Minimum sum of hessians in one leaf
	MinSplitGain        float64 // Minimum gain to make a split
	Subsample           float64 // Subsample ratio of training data
	SubsampleFreq       int     // Frequency of subsample
	ColsampleBytree     float64 // Subsample ratio of columns when constructing tree
	RegLambda           float64 // L2 regularization
	TopRate             float64 // GOSS large-gradient share
	OtherRate           float64 // GOSS small-gradient share
	MaxBin              int     // Maximum histogram bins per feature
	RandomState         uint64  // Random seed
	EarlyStoppingRounds int     // Early stopping rounds for FitWithValidation
	Verbosity           int     // Verbosity level

	FeatureNames []string
}

// NewLGBMClassifier creates a classifier with LightGBM's defaults.
func NewLGBMClassifier() *LGBMClassifier {
	return &LGBMClassifier{
		BoostingType:    string(GBDT),
		NumLeaves:       31,
		MaxDepth:        -1,
		LearningRate:    0.1,
		NEstimators:     100,
		MinChildSamples: 20,
		MinChildWeight:  1e-3,
		Subsample:       1.0,
		ColsampleBytree: 1.0,
		TopRate:         0.2,
		OtherRate:       0.1,
		MaxBin:          255,
		RandomState:     42,
		Verbosity:       -1,
	}
}

// WithNumLeaves sets the number of leaves
func (lgb *LGBMClassifier) WithNumLeaves(n int) *LGBMClassifier {
	lgb.NumLeaves = n
	return lgb
}

// WithMaxDepth sets the maximum depth
func (lgb *LGBMClassifier) WithMaxDepth(d int) *LGBMClassifier {
	lgb.MaxDepth = d
	return lgb
}

// WithLearningRate sets the learning rate
func (lgb *LGBMClassifier) WithLearningRate(lr float64) *LGBMClassifier {
	lgb.LearningRate = lr
	return lgb
}

// WithNEstimators sets the number of boosting iterations
func (lgb *LGBMClassifier) WithNEstimators(n int) *LGBMClassifier {
	lgb.NEstimators = n
	return lgb
}

// WithBoostingType sets gbdt or goss
func (lgb *LGBMClassifier) WithBoostingType(t string) *LGBMClassifier {
	lgb.BoostingType = t
	return lgb
}

// WithMinChildSamples sets the minimum number of rows per leaf
func (lgb *LGBMClassifier) WithMinChildSamples(n int) *LGBMClassifier {
	lgb.MinChildSamples = n
	return lgb
}

// WithSubsample sets bagging; freq 0 disables it
func (lgb *LGBMClassifier) WithSubsample(fraction float64, freq int) *LGBMClassifier {
	lgb.Subsample = fraction
	lgb.SubsampleFreq = freq
	return lgb
}

// WithColsampleBytree sets the feature fraction per tree
func (lgb *LGBMClassifier) WithColsampleBytree(fraction float64) *LGBMClassifier {
	lgb.ColsampleBytree = fraction
	return lgb
}

// WithRegLambda sets L2 regularization
func (lgb *LGBMClassifier) WithRegLambda(lambda float64) *LGBMClassifier {
	lgb.RegLambda = lambda
	return lgb
}

// WithRandomState sets the random seed
func (lgb *LGBMClassifier) WithRandomState(seed uint64) *LGBMClassifier {
	lgb.RandomState = seed
	return lgb
}

// WithEarlyStopping sets early stopping rounds
func (lgb *LGBMClassifier) WithEarlyStopping(rounds int) *LGBMClassifier {
	lgb.EarlyStoppingRounds = rounds
	return lgb
}

// WithFeatureNames sets the names stored in the model
func (lgb *LGBMClassifier) WithFeatureNames(names []string) *LGBMClassifier {
	lgb.FeatureNames = slices.Clone(names)
	return lgb
}

// TrainingParams maps the sklearn-style hyperparameters to LightGBM names.
func (lgb *LGBMClassifier) TrainingParams() TrainingParams {
	return TrainingParams{
		NumIterations:       lgb.NEstimators,
		LearningRate:        lgb.LearningRate,
		NumLeaves:           lgb.NumLeaves,
		MaxDepth:            lgb.MaxDepth,
		MinDataInLeaf:       lgb.MinChildSamples,
		MinSumHessianInLeaf: lgb.MinChildWeight,
		Lambda:              lgb.RegLambda,
		MinGainToSplit:      lgb.MinSplitGain,
		BoostingType:        BoostingType(lgb.BoostingType),
		BaggingFraction:     lgb.Subsample,
		BaggingFreq:         lgb.SubsampleFreq,
		FeatureFraction:     lgb.ColsampleBytree,
		TopRate:             lgb.TopRate,
		OtherRate:           lgb.OtherRate,
		MaxBin:              lgb.MaxBin,
		Objective:           "binary",
		Seed:                lgb.RandomState,
		EarlyStoppingRounds: lgb.EarlyStoppingRounds,
		Verbosity:           lgb.Verbosity,
	}
}

// Fit trains the classifier
func (lgb *LGBMClassifier) Fit(X, y mat.Matrix) (err error) {
	defer perrors.Recover(&err, "LGBMClassifier.Fit")
	return lgb.fit(X, y, nil)
}

// FitWithValidation trains with a held-out set used for early stopping.
func (lgb *LGBMClassifier) FitWithValidation(X, y, XVal, yVal mat.Matrix) (err error) {
	defer perrors.Recover(&err, "LGBMClassifier.FitWithValidation")
	return lgb.fit(X, y, &ValidationData{X: XVal, Y: yVal})
}

func (lgb *LGBMClassifier) fit(X, y mat.Matrix, val *ValidationData) error {
	params := lgb.TrainingParams()
	if err := params.Validate(); err != nil {
		return err
	}
	_, cols := X.Dims()
	if len(lgb.FeatureNames) > 0 && len(lgb.FeatureNames) != cols {
		return perrors.NewDimensionError("LGBMClassifier.Fit", len(lgb.FeatureNames), cols, 1)
	}

	logger := log.GetLoggerWithName("lightgbm.classifier")
	trainer := NewTrainer(params).WithFeatureNames(lgb.FeatureNames)
	if lgb.Verbosity > 0 {
		trainer = trainer.WithCallbacks(LogEvaluation(logger, 10))
	}
	if err := trainer.FitWithValidation(X, y, val); err != nil {
		return perrors.Wrap(err, "training failed")
	}

	lgb.Model = trainer.GetModel()
	lgb.SetFitted(cols)

	logger.Debug("LGBMClassifier fitted",
		log.OperationKey, log.OperationFit,
		log.FeaturesKey, cols,
		log.HyperParamsKey, fmt.Sprint(lgb.GetParams()),
		"trees", len(lgb.Model.Trees),
	)
	return nil
}

func (lgb *LGBMClassifier) checkPredict(method string, X mat.Matrix) error {
	if err := lgb.RequireFitted("LGBMClassifier", method); err != nil {
		return err
	}
	_, cols := X.Dims()
	return lgb.CheckFeatures(method, cols)
}

// Predict returns 0/1 labels as an n×1 vector.
func (lgb *LGBMClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lgb.checkPredict("Predict", X); err != nil {
		return nil, err
	}
	pred, err := lgb.Model.Predict(X)
	if err != nil {
		return nil, err
	}
	return pred, nil
}

// PredictProba returns an n×2 matrix of [P(y=0), P(y=1)].
func (lgb *LGBMClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lgb.checkPredict("PredictProba", X); err != nil {
		return nil, err
	}
	p, err := lgb.Model.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(p.Len(), 2, nil)
	for i := 0; i < p.Len(); i++ {
		out.Set(i, 0, 1-p.AtVec(i))
		out.Set(i, 1, p.AtVec(i))
	}
	return out, nil
}

// Score returns the mean accuracy on the given data.
func (lgb *LGBMClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := lgb.Predict(X)
	if err != nil {
		return 0, err
	}
	rows, _ := y.Dims()
	yVec := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		yVec.SetVec(i, y.At(i, 0))
	}
	return metrics.Accuracy(yVec, pred.(*mat.VecDense))
}

// Classes returns the class labels in PredictProba column order.
func (lgb *LGBMClassifier) Classes() []int {
	return []int{0, 1}
}

// FeatureImportances returns split counts ("split") or summed gains
// ("gain") per feature.
func (lgb *LGBMClassifier) FeatureImportances(importanceType string) ([]float64, error) {
	if err := lgb.RequireFitted("LGBMClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return lgb.Model.FeatureImportance(importanceType)
}

// DumpText returns the fitted model in LightGBM-like text form.
func (lgb *LGBMClassifier) DumpText() (string, error) {
	if err := lgb.RequireFitted("LGBMClassifier", "DumpText"); err != nil {
		return "", err
	}
	return lgb.Model.DumpText(), nil
}

// GetParams returns the parameters of the classifier
func (lgb *LGBMClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"boosting_type":         lgb.BoostingType,
		"num_leaves":            lgb.NumLeaves,
		"max_depth":             lgb.MaxDepth,
		"learning_rate":         lgb.LearningRate,
		"n_estimators":          lgb.NEstimators,
		"min_child_samples":     lgb.MinChildSamples,
		"min_child_weight":      lgb.MinChildWeight,
		"min_split_gain":        lgb.MinSplitGain,
		"subsample":             lgb.Subsample,
		"subsample_freq":        lgb.SubsampleFreq,
		"colsample_bytree":      lgb.ColsampleBytree,
		"reg_lambda":            lgb.RegLambda,
		"top_rate":              lgb.TopRate,
		"other_rate":            lgb.OtherRate,
		"max_bin":               lgb.MaxBin,
		"random_state":          lgb.RandomState,
		"early_stopping_rounds": lgb.EarlyStoppingRounds,
		"verbosity":             lgb.Verbosity,
	}
}

// SetParams sets the parameters of the classifier. Unknown names and
// values of the wrong type are rejected. Keys are applied in sorted order.
func (lgb *LGBMClassifier) SetParams(params map[string]interface{}) error {
	for _, key := range slices.Sorted(maps.Keys(params)) {
		value := params[key]
		var err error
		switch key {
		case "boosting_type", "boosting":
			s, ok := value.(string)
			if !ok {
				err = typeError(key, "string", value)
			}
			lgb.BoostingType = s
		case "num_leaves":
			lgb.NumLeaves, err = toInt(key, value)
		case "max_depth":
			lgb.MaxDepth, err = toInt(key, value)
		case "learning_rate":
			lgb.LearningRate, err = toFloat(key, value)
		case "n_estimators", "num_iterations":
			lgb.NEstimators, err = toInt(key, value)
		case "min_child_samples":
			lgb.MinChildSamples, err = toInt(key, value)
		case "min_child_weight":
			lgb.MinChildWeight, err = toFloat(key, value)
		case "min_split_gain":
			lgb.MinSplitGain, err = toFloat(key, value)
		case "subsample":
			lgb.Subsample, err = toFloat(key, value)
		case "subsample_freq":
			lgb.SubsampleFreq, err = toInt(key, value)
		case "colsample_bytree":
			lgb.ColsampleBytree, err = toFloat(key, value)
		case "reg_lambda":
			lgb.RegLambda, err = toFloat(key, value)
		case "top_rate":
			lgb.TopRate, err = toFloat(key, value)
		case "other_rate":
			lgb.OtherRate, err = toFloat(key, value)
		case "max_bin":
			lgb.MaxBin, err = toInt(key, value)
		case "random_state":
			var seed int
			seed, err = toInt(key, value)
			lgb.RandomState = uint64(seed)
		case "early_stopping_rounds":
			lgb.EarlyStoppingRounds, err = toInt(key, value)
		case "verbosity":
			lgb.Verbosity, err = toInt(key, value)
		default:
			err = perrors.NewValidationError(key, "unknown parameter", value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func typeError(key, want string, value interface{}) error {
	return perrors.NewValidationError(key, fmt.Sprintf("expected %s, got %T", want, value), value)
}

func toInt(key string, value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return 0, typeError(key, "integer", value)
}

func toFloat(key string, value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, typeError(key, "number", value)
}

var _ model.Tunable = (*LGBMClassifier)(nil)
