package lightgbm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanic-survival/core/model"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

func fittedClassifier(t *testing.T) (*LGBMClassifier, *mat.Dense, *mat.VecDense) {
	t.Helper()
	X, y := makeDataset(300, 21)
	clf := NewLGBMClassifier().
		WithNEstimators(25).
		WithFeatureNames([]string{"signal", "noise", "gauss"})
	require.NoError(t, clf.Fit(X, y))
	return clf, X, y
}

func TestLGBMClassifierFitPredict(t *testing.T) {
	clf, _, _ := fittedClassifier(t)
	Xt, yt := makeDataset(150, 22)

	assert.True(t, clf.IsFitted())
	assert.Equal(t, []int{0, 1}, clf.Classes())

	pred, err := clf.Predict(Xt)
	require.NoError(t, err)
	r, c := pred.Dims()
	assert.Equal(t, 150, r)
	assert.Equal(t, 1, c)

	proba, err := clf.PredictProba(Xt)
	require.NoError(t, err)
	r, c = proba.Dims()
	assert.Equal(t, 150, r)
	assert.Equal(t, 2, c)
	for i := 0; i < r; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1), 1e-12)
		want := 0.0
		if proba.At(i, 1) > 0.5 {
			want = 1
		}
		assert.Equal(t, want, pred.At(i, 0))
	}

	score, err := clf.Score(Xt, yt)
	require.NoError(t, err)
	assert.Greater(t, score, 0.9)
}

func TestLGBMClassifierNotFitted(t *testing.T) {
	clf := NewLGBMClassifier()
	X := mat.NewDense(2, 3, nil)

	_, err := clf.Predict(X)
	var nf *perrors.NotFittedError
	assert.True(t, perrors.As(err, &nf))

	_, err = clf.PredictProba(X)
	assert.True(t, perrors.As(err, &nf))

	_, err = clf.FeatureImportances("split")
	assert.True(t, perrors.As(err, &nf))
}

func TestLGBMClassifierDimensionMismatch(t *testing.T) {
	clf, _, _ := fittedClassifier(t)
	_, err := clf.Predict(mat.NewDense(2, 5, nil))
	var dimErr *perrors.DimensionError
	assert.True(t, perrors.As(err, &dimErr))
}

func TestLGBMClassifierRejectsNonBinaryLabels(t *testing.T) {
	X, _ := makeDataset(60, 23)
	y := mat.NewVecDense(60, nil)
	for i := 0; i < 60; i++ {
		y.SetVec(i, float64(i%3))
	}
	err := NewLGBMClassifier().Fit(X, y)
	var valErr *perrors.ValidationError
	assert.True(t, perrors.As(err, &valErr))
}

func TestLGBMClassifierParams(t *testing.T) {
	clf := NewLGBMClassifier()
	require.NoError(t, clf.SetParams(map[string]interface{}{
		"n_estimators":  321,
		"max_depth":     12,
		"learning_rate": 0.05,
		"num_leaves":    40,
		"boosting_type": "goss",
		"random_state":  7,
	}))

	params := clf.GetParams()
	assert.Equal(t, 321, params["n_estimators"])
	assert.Equal(t, 12, params["max_depth"])
	assert.Equal(t, 0.05, params["learning_rate"])
	assert.Equal(t, 40, params["num_leaves"])
	assert.Equal(t, "goss", params["boosting_type"])
	assert.Equal(t, uint64(7), params["random_state"])

	tp := clf.TrainingParams()
	assert.Equal(t, GOSS, tp.BoostingType)
	assert.Equal(t, 321, tp.NumIterations)

	assert.Error(t, clf.SetParams(map[string]interface{}{"colour": "red"}))
	assert.Error(t, clf.SetParams(map[string]interface{}{"num_leaves": "many"}))
	assert.Error(t, clf.SetParams(map[string]interface{}{"boosting_type": 3}))

	clf = NewLGBMClassifier().WithBoostingType("dart")
	X, y := makeDataset(40, 24)
	assert.Error(t, clf.Fit(X, y))
}

func TestLGBMClassifierFeatureImportances(t *testing.T) {
	clf, _, _ := fittedClassifier(t)

	split, err := clf.FeatureImportances("split")
	require.NoError(t, err)
	require.Len(t, split, 3)
	assert.Greater(t, split[0], 0.0)

	text, err := clf.DumpText()
	require.NoError(t, err)
	assert.Contains(t, text, "feature_names=signal noise gauss")
}

func TestLGBMClassifierEarlyStopping(t *testing.T) {
	X, y := makeNoise(300, 25)
	Xv, yv := makeNoise(150, 26)

	clf := NewLGBMClassifier().WithNEstimators(200).WithEarlyStopping(5)
	require.NoError(t, clf.FitWithValidation(X, y, Xv, yv))
	assert.Less(t, len(clf.Model.Trees), 200)
	assert.Equal(t, clf.Model.BestIteration, len(clf.Model.Trees))
}

func TestLGBMClassifierGobRoundTrip(t *testing.T) {
	clf, X, _ := fittedClassifier(t)

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(clf, &buf))

	var loaded LGBMClassifier
	require.NoError(t, model.LoadModelFromReader(&loaded, &buf))

	assert.True(t, loaded.IsFitted())
	assert.Equal(t, clf.GetParams(), loaded.GetParams())

	want, err := clf.PredictProba(X)
	require.NoError(t, err)
	got, err := loaded.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}
