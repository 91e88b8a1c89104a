// Package training searches LightGBM hyperparameters on the processed
// training split, evaluates the best classifier on the test split and
// writes the model artifact, a YAML report and a feature-importance chart.
package training

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanic-survival/config"
	"github.com/YuminosukeSato/titanic-survival/core/frame"
	"github.com/YuminosukeSato/titanic-survival/core/model"
	"github.com/YuminosukeSato/titanic-survival/metrics"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
	"github.com/YuminosukeSato/titanic-survival/sklearn/lightgbm"
	"github.com/YuminosukeSato/titanic-survival/sklearn/model_selection"
	"github.com/YuminosukeSato/titanic-survival/store"
)

// RunRecorder stores a summary of each training run. *store.Store implements it.
type RunRecorder interface {
	RecordRun(ctx context.Context, r store.Run) error
}

// ModelTraining runs the hyperparameter search and writes the artifacts.
type ModelTraining struct {
	TrainPath       string
	TestPath        string
	ModelOutputPath string

	// ReportPath and ImportancePlotPath are skipped when empty.
	ReportPath         string
	ImportancePlotPath string

	cfg          config.ModelTraining
	recorder     RunRecorder
	logger       log.Logger
	featureNames []string
	search       *model_selection.RandomizedSearch
}

// Option configures a ModelTraining.
type Option func(*ModelTraining)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(m *ModelTraining) { m.logger = logger }
}

// WithReportPath sets where the YAML report is written.
func WithReportPath(path string) Option {
	return func(m *ModelTraining) { m.ReportPath = path }
}

// WithImportancePlotPath sets where the feature-importance PNG is written.
func WithImportancePlotPath(path string) Option {
	return func(m *ModelTraining) { m.ImportancePlotPath = path }
}

// WithRecorder records every successful run.
func WithRecorder(r RunRecorder) Option {
	return func(m *ModelTraining) { m.recorder = r }
}

// New returns a ModelTraining reading the processed CSVs.
func New(trainPath, testPath, modelOutputPath string, cfg config.ModelTraining, opts ...Option) *ModelTraining {
	m := &ModelTraining{
		TrainPath:       trainPath,
		TestPath:        testPath,
		ModelOutputPath: modelOutputPath,
		cfg:             cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.GetLoggerWithName("training")
	}
	m.logger = m.logger.With(log.StageKey, log.StageTraining)
	return m
}

// Result summarizes a completed run.
type Result struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	Model       *lightgbm.LGBMClassifier
	Metrics     metrics.Report
	BestParams  map[string]any
	BestCVScore float64
	Importance  []FeatureImportance
	Candidates  []model_selection.SearchResult
}

// LoadAndSplitData reads the processed splits and separates the features
// from the label. Every feature must be present and numeric.
func (m *ModelTraining) LoadAndSplitData() (XTrain *mat.Dense, yTrain *mat.VecDense, XTest *mat.Dense, yTest *mat.VecDense, err error) {
	train, err := frame.ReadCSVFile(m.TrainPath)
	if err != nil {
		return nil, nil, nil, nil, m.fail("Failed to load data", err)
	}
	test, err := frame.ReadCSVFile(m.TestPath)
	if err != nil {
		return nil, nil, nil, nil, m.fail("Failed to load data", err)
	}

	features := train.Drop(config.LabelColumn).Columns()
	m.featureNames = features
	if XTrain, yTrain, err = toXY(train, features); err != nil {
		return nil, nil, nil, nil, m.fail("Failed to load data", err)
	}
	if XTest, yTest, err = toXY(test, features); err != nil {
		return nil, nil, nil, nil, m.fail("Failed to load data", err)
	}
	m.logger.Info("Data split for model training",
		"data.train_samples", yTrain.Len(),
		"data.test_samples", yTest.Len(),
		log.FeaturesKey, len(features),
	)
	return XTrain, yTrain, XTest, yTest, nil
}

func toXY(f *frame.Frame, features []string) (*mat.Dense, *mat.VecDense, error) {
	X, err := f.ToMatrix(features)
	if err != nil {
		return nil, nil, err
	}
	y, err := f.LabelVector(config.LabelColumn)
	if err != nil {
		return nil, nil, err
	}
	return X, y, nil
}

// FeatureNames returns the feature columns found by LoadAndSplitData.
func (m *ModelTraining) FeatureNames() []string {
	return m.featureNames
}

// ParamDistributions converts the configured search space into sampler
// distributions keyed by LGBMClassifier parameter name.
func ParamDistributions(cfg config.ParamDistributions) map[string]model_selection.Distribution {
	boosting := make([]any, len(cfg.BoostingType))
	for i, b := range cfg.BoostingType {
		boosting[i] = b
	}
	return map[string]model_selection.Distribution{
		"n_estimators":  model_selection.IntUniform{Low: cfg.NEstimators.Low, High: cfg.NEstimators.High},
		"max_depth":     model_selection.IntUniform{Low: cfg.MaxDepth.Low, High: cfg.MaxDepth.High},
		"learning_rate": model_selection.FloatUniform{Loc: cfg.LearningRate.Loc, Scale: cfg.LearningRate.Scale},
		"num_leaves":    model_selection.IntUniform{Low: cfg.NumLeaves.Low, High: cfg.NumLeaves.High},
		"boosting_type": model_selection.Choice{Values: boosting},
	}
}

// TrainLGBM runs the randomized search and returns the best classifier
// refitted on all of X.
func (m *ModelTraining) TrainLGBM(ctx context.Context, X *mat.Dense, y *mat.VecDense) (*lightgbm.LGBMClassifier, error) {
	features := m.featureNames
	factory := func() model.Tunable {
		clf := lightgbm.NewLGBMClassifier().WithRandomState(m.cfg.Seed)
		if len(features) > 0 {
			clf.WithFeatureNames(features)
		}
		return clf
	}

	search := model_selection.NewRandomizedSearch(factory, ParamDistributions(m.cfg.ParamDistributions),
		m.cfg.NIter, m.cfg.CV, m.cfg.Seed)
	if m.cfg.Scoring != "" {
		search.Scoring = m.cfg.Scoring
	}
	search.Logger = m.logger

	m.logger.Info("Starting hyperparameter search",
		log.OperationKey, log.OperationSearch,
		"search.n_iter", m.cfg.NIter,
		"search.cv", m.cfg.CV,
		"search.scoring", search.Scoring,
	)
	if err := search.Fit(ctx, X, y); err != nil {
		return nil, m.fail("Failed to train model", err)
	}
	m.search = search

	best, ok := search.BestEstimator.(*lightgbm.LGBMClassifier)
	if !ok {
		return nil, m.fail("Failed to train model", perrors.NewValueError("TrainLGBM", "best estimator is not an LGBMClassifier"))
	}
	m.logger.Info("Best parameters found",
		log.HyperParamsKey, search.BestParams,
		log.ScoreKey, search.BestScore,
	)
	if m.cfg.EarlyStoppingRounds > 0 {
		refit, err := m.refitWithEarlyStopping(factory, search.BestParams, X, y)
		if err != nil {
			return nil, m.fail("Failed to train model", err)
		}
		best = refit
	}
	return best, nil
}

// refitWithEarlyStopping refits params on 90% of the rows and stops on the
// loss of the remaining 10%.
func (m *ModelTraining) refitWithEarlyStopping(factory func() model.Tunable, params map[string]any, X *mat.Dense, y *mat.VecDense) (*lightgbm.LGBMClassifier, error) {
	clf := factory().(*lightgbm.LGBMClassifier)
	if err := clf.SetParams(params); err != nil {
		return nil, err
	}
	clf.WithEarlyStopping(m.cfg.EarlyStoppingRounds)

	trainRows, validRows, err := model_selection.TrainTestSplit(y.RawVector().Data, 0.9, m.cfg.Seed, true)
	if err != nil {
		return nil, err
	}
	Xtr, ytr := model_selection.SubsetRows(X, y, trainRows)
	Xva, yva := model_selection.SubsetRows(X, y, validRows)
	if err := clf.FitWithValidation(Xtr, ytr, Xva, yva); err != nil {
		return nil, err
	}
	m.logger.Info("Refitted best parameters with early stopping",
		"trees", len(clf.Model.Trees),
		"best_iteration", clf.Model.BestIteration,
	)
	return clf, nil
}

// EvaluateModel scores clf on the test split.
func (m *ModelTraining) EvaluateModel(clf model.Classifier, X *mat.Dense, y *mat.VecDense) (metrics.Report, error) {
	pred, err := clf.Predict(X)
	if err != nil {
		return metrics.Report{}, m.fail("Failed to evaluate model", err)
	}
	proba, err := clf.PredictProba(X)
	if err != nil {
		return metrics.Report{}, m.fail("Failed to evaluate model", err)
	}
	report, err := metrics.Evaluate(y, column(pred, 0), column(proba, 1))
	if err != nil {
		return metrics.Report{}, m.fail("Failed to evaluate model", err)
	}
	m.logger.Info("Model evaluation",
		log.PhaseKey, log.PhaseTesting,
		log.AccuracyKey, report.Accuracy,
		log.PrecisionKey, report.Precision,
		log.RecallKey, report.Recall,
		log.F1Key, report.F1,
		log.ROCAUCKey, report.ROCAUC,
	)
	return report, nil
}

func column(m mat.Matrix, j int) *mat.VecDense {
	rows, _ := m.Dims()
	v := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		v.SetVec(i, m.At(i, j))
	}
	return v
}

// SaveModel writes clf to ModelOutputPath as gob.
func (m *ModelTraining) SaveModel(clf *lightgbm.LGBMClassifier) error {
	if err := model.SaveModel(clf, m.ModelOutputPath); err != nil {
		return m.fail("Failed to save model", err)
	}
	m.logger.Info("Model saved", log.PathKey, m.ModelOutputPath)
	return nil
}

// LoadClassifier reads a classifier written by SaveModel.
func LoadClassifier(path string) (*lightgbm.LGBMClassifier, error) {
	var clf lightgbm.LGBMClassifier
	if err := model.LoadModel(&clf, path); err != nil {
		return nil, err
	}
	if !clf.IsFitted() || clf.Model == nil {
		return nil, perrors.NewNotFittedError("LGBMClassifier", "LoadClassifier")
	}
	return &clf, nil
}

// Run loads the data, searches, evaluates and saves the model, then writes
// the report, the chart and the run record.
func (m *ModelTraining) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := m.logger.With(log.RunIDKey, res.RunID)
	logger.Info("Starting model training pipeline")

	if err := m.run(ctx, res); err != nil {
		logger.Error("Error in model training pipeline", err)
		return nil, perrors.NewPipelineError(log.StageTraining, "Failed during model training pipeline", err)
	}
	logger.Info("Model training completed successfully", log.DurationMsKey, res.Duration.Milliseconds())
	return res, nil
}

func (m *ModelTraining) run(ctx context.Context, res *Result) error {
	XTrain, yTrain, XTest, yTest, err := m.LoadAndSplitData()
	if err != nil {
		return err
	}
	clf, err := m.TrainLGBM(ctx, XTrain, yTrain)
	if err != nil {
		return err
	}
	report, err := m.EvaluateModel(clf, XTest, yTest)
	if err != nil {
		return err
	}
	if err := m.SaveModel(clf); err != nil {
		return err
	}

	res.Model = clf
	res.Metrics = report
	res.BestParams = m.search.BestParams
	res.BestCVScore = m.search.BestScore
	res.Candidates = m.search.Results
	if res.Importance, err = Importances(clf, m.featureNames); err != nil {
		return err
	}
	res.Duration = time.Since(res.StartedAt)

	if m.ReportPath != "" {
		if err := WriteReport(m.ReportPath, NewReport(res, m.ModelOutputPath)); err != nil {
			return m.fail("Failed to write report", err)
		}
		m.logger.Info("Training report written", log.PathKey, m.ReportPath)
	}
	if m.ImportancePlotPath != "" {
		if err := PlotImportance(m.ImportancePlotPath, res.Importance); err != nil {
			return m.fail("Failed to plot feature importance", err)
		}
		m.logger.Info("Feature importance chart written", log.PathKey, m.ImportancePlotPath)
	}
	if m.recorder != nil {
		if err := m.recorder.RecordRun(ctx, store.Run{
			ID:          res.RunID,
			StartedAt:   res.StartedAt,
			Duration:    res.Duration,
			ModelPath:   m.ModelOutputPath,
			BestParams:  res.BestParams,
			BestCVScore: res.BestCVScore,
			Accuracy:    report.Accuracy,
			Precision:   report.Precision,
			Recall:      report.Recall,
			F1:          report.F1,
			ROCAUC:      report.ROCAUC,
		}); err != nil {
			return m.fail("Failed to record run", err)
		}
	}
	return nil
}

func (m *ModelTraining) fail(message string, err error) error {
	m.logger.Error(message, err)
	return perrors.NewPipelineError(log.StageTraining, message, err)
}
