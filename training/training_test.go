package training

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanic-survival/config"
	"github.com/YuminosukeSato/titanic-survival/core/frame"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
	"github.com/YuminosukeSato/titanic-survival/sklearn/lightgbm"
	"github.com/YuminosukeSato/titanic-survival/store"
)

var testFeatures = []string{"Sex", "Age", "Fare"}

// writeProcessed writes n rows where Survived = Sex, with Age and Fare as noise.
func writeProcessed(t *testing.T, path string, n int, seed uint64) {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed))
	f := frame.New()
	sex := make([]float64, n)
	age := make([]float64, n)
	fare := make([]float64, n)
	for i := range sex {
		sex[i] = float64(i % 2)
		age[i] = float64(1 + r.IntN(70))
		fare[i] = 5 + 100*r.Float64()
	}
	require.NoError(t, f.SetFloat("Sex", sex))
	require.NoError(t, f.SetFloat("Age", age))
	require.NoError(t, f.SetFloat("Fare", fare))
	require.NoError(t, f.SetFloat(config.LabelColumn, sex))
	require.NoError(t, f.WriteCSVFile(path))
}

func smallSearch() config.ModelTraining {
	return config.ModelTraining{
		NIter:   2,
		CV:      2,
		Seed:    42,
		Scoring: "accuracy",
		ParamDistributions: config.ParamDistributions{
			NEstimators:  config.IntRange{Low: 5, High: 15},
			MaxDepth:     config.IntRange{Low: 2, High: 5},
			LearningRate: config.FloatRange{Loc: 0.1, Scale: 0.2},
			NumLeaves:    config.IntRange{Low: 4, High: 8},
			BoostingType: []string{"gbdt", "goss"},
		},
	}
}

type fixture struct {
	dir    string
	mt     *ModelTraining
	logger *log.TestLogger
}

func newFixture(t *testing.T, cfg config.ModelTraining, opts ...Option) fixture {
	t.Helper()
	dir := t.TempDir()
	train := filepath.Join(dir, "processed_train.csv")
	test := filepath.Join(dir, "processed_test.csv")
	writeProcessed(t, train, 120, 1)
	writeProcessed(t, test, 40, 2)

	logger, _ := log.NewTestLogger(log.LevelDebug)
	opts = append([]Option{WithLogger(logger)}, opts...)
	mt := New(train, test, filepath.Join(dir, "models", "lgbm_model.gob"), cfg, opts...)
	return fixture{dir: dir, mt: mt, logger: logger}
}

func TestLoadAndSplitData(t *testing.T) {
	fx := newFixture(t, smallSearch())

	XTrain, yTrain, XTest, yTest, err := fx.mt.LoadAndSplitData()
	require.NoError(t, err)

	r, c := XTrain.Dims()
	assert.Equal(t, 120, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 120, yTrain.Len())
	r, _ = XTest.Dims()
	assert.Equal(t, 40, r)
	assert.Equal(t, 40, yTest.Len())
	assert.Equal(t, testFeatures, fx.mt.FeatureNames())
}

func TestLoadAndSplitDataRejectsNonNumeric(t *testing.T) {
	fx := newFixture(t, smallSearch())
	require.NoError(t, os.WriteFile(fx.mt.TrainPath, []byte("Sex,Age,Survived\n1,,1\n0,3,0\n"), 0o644))

	_, _, _, _, err := fx.mt.LoadAndSplitData()
	var pe *perrors.PipelineError
	require.True(t, perrors.As(err, &pe))
	assert.Equal(t, "Failed to load data", pe.Message)
	var ve *perrors.ValidationError
	assert.True(t, perrors.As(err, &ve))
}

func TestParamDistributions(t *testing.T) {
	d := ParamDistributions(config.Default().ModelTraining.ParamDistributions)
	assert.Len(t, d, 5)
	r := rand.New(rand.NewPCG(1, 1))
	for i := 0; i < 50; i++ {
		n := d["n_estimators"].Sample(r).(int)
		assert.GreaterOrEqual(t, n, 100)
		assert.Less(t, n, 500)
		lr := d["learning_rate"].Sample(r).(float64)
		assert.GreaterOrEqual(t, lr, 0.01)
		assert.LessOrEqual(t, lr, 0.21)
		assert.Contains(t, []any{"gbdt", "goss"}, d["boosting_type"].Sample(r))
	}
}

func TestTrainAndEvaluate(t *testing.T) {
	fx := newFixture(t, smallSearch())
	XTrain, yTrain, XTest, yTest, err := fx.mt.LoadAndSplitData()
	require.NoError(t, err)

	clf, err := fx.mt.TrainLGBM(context.Background(), XTrain, yTrain)
	require.NoError(t, err)
	assert.True(t, clf.IsFitted())
	assert.Equal(t, uint64(42), clf.RandomState)
	assert.Equal(t, testFeatures, clf.FeatureNames)

	report, err := fx.mt.EvaluateModel(clf, XTest, yTest)
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.Accuracy)
	assert.Equal(t, 1.0, report.ROCAUC)
	assert.Equal(t, 40, report.Confusion.TN+report.Confusion.FP+report.Confusion.FN+report.Confusion.TP)
	assert.True(t, fx.logger.ContainsMessage("Model evaluation"))
}

func TestTrainLGBMWithEarlyStopping(t *testing.T) {
	cfg := smallSearch()
	cfg.EarlyStoppingRounds = 2
	fx := newFixture(t, cfg)
	XTrain, yTrain, _, _, err := fx.mt.LoadAndSplitData()
	require.NoError(t, err)

	clf, err := fx.mt.TrainLGBM(context.Background(), XTrain, yTrain)
	require.NoError(t, err)
	assert.Equal(t, 2, clf.EarlyStoppingRounds)
	assert.True(t, fx.logger.ContainsMessage("Refitted best parameters with early stopping"))
}

func TestTrainLGBMCancelled(t *testing.T) {
	fx := newFixture(t, smallSearch())
	XTrain, yTrain, _, _, err := fx.mt.LoadAndSplitData()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fx.mt.TrainLGBM(ctx, XTrain, yTrain)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSaveAndLoadClassifier(t *testing.T) {
	fx := newFixture(t, smallSearch())
	XTrain, yTrain, XTest, _, err := fx.mt.LoadAndSplitData()
	require.NoError(t, err)
	clf, err := fx.mt.TrainLGBM(context.Background(), XTrain, yTrain)
	require.NoError(t, err)

	require.NoError(t, fx.mt.SaveModel(clf))
	loaded, err := LoadClassifier(fx.mt.ModelOutputPath)
	require.NoError(t, err)

	want, err := clf.PredictProba(XTest)
	require.NoError(t, err)
	got, err := loaded.PredictProba(XTest)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}

func TestLoadClassifierUnfitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gob")
	fx := newFixture(t, smallSearch())
	fx.mt.ModelOutputPath = path
	require.NoError(t, fx.mt.SaveModel(lightgbm.NewLGBMClassifier()))

	_, err := LoadClassifier(path)
	var nf *perrors.NotFittedError
	assert.True(t, perrors.As(err, &nf))
}

type memRecorder struct{ runs []store.Run }

func (m *memRecorder) RecordRun(_ context.Context, r store.Run) error {
	m.runs = append(m.runs, r)
	return nil
}

func TestRun(t *testing.T) {
	rec := &memRecorder{}
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "out", "report.yaml")
	plotPath := filepath.Join(dir, "out", "feature_importance.png")
	fx := newFixture(t, smallSearch(),
		WithReportPath(reportPath),
		WithImportancePlotPath(plotPath),
		WithRecorder(rec),
	)

	res, err := fx.mt.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Candidates, 2)
	assert.Equal(t, res.Model.GetParams()["n_estimators"], res.BestParams["n_estimators"])
	require.Len(t, res.Importance, 3)
	assert.Equal(t, "Sex", res.Importance[0].Feature)
	assert.FileExists(t, fx.mt.ModelOutputPath)
	assert.FileExists(t, plotPath)

	report, err := ReadReport(reportPath)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, report.RunID)
	assert.Equal(t, res.Metrics.Accuracy, report.Metrics.Accuracy)
	assert.Len(t, report.Candidates, 2)
	assert.Equal(t, 1, report.Candidates[0].Rank)
	assert.Equal(t, len(res.Model.Model.Trees), report.Trees)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, res.RunID, rec.runs[0].ID)
	assert.Equal(t, res.Metrics.F1, rec.runs[0].F1)
	assert.True(t, fx.logger.ContainsField(log.RunIDKey, res.RunID))
}

func TestRunMissingData(t *testing.T) {
	fx := newFixture(t, smallSearch())
	fx.mt.TestPath = filepath.Join(fx.dir, "nope.csv")

	_, err := fx.mt.Run(context.Background())
	var pe *perrors.PipelineError
	require.True(t, perrors.As(err, &pe))
	assert.Equal(t, "Failed during model training pipeline", pe.Message)
	assert.NoFileExists(t, fx.mt.ModelOutputPath)
}

func TestPlotImportanceEmpty(t *testing.T) {
	err := PlotImportance(filepath.Join(t.TempDir(), "x.png"), nil)
	assert.ErrorIs(t, err, perrors.ErrEmptyData)
}
