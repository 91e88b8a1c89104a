package model

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

type stubModel struct {
	BaseEstimator
	Weights []float64
	Name    string
}

func TestSaveLoadModelRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "model.gob")

	m := &stubModel{Weights: []float64{0.5, -1.25}, Name: "stub"}
	m.SetFitted(2)
	require.NoError(t, SaveModel(m, path))

	var loaded stubModel
	require.NoError(t, LoadModel(&loaded, path))
	assert.Equal(t, m.Weights, loaded.Weights)
	assert.True(t, loaded.IsFitted(), "fitted state must survive persistence")
	assert.Equal(t, 2, loaded.NFeatures)
}

func TestSaveModelFailureKeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gob")
	require.NoError(t, SaveModel(&stubModel{Name: "current"}, path))

	// gob cannot encode channels
	unencodable := struct{ C chan int }{C: make(chan int)}
	err := SaveModel(unencodable, path)
	var modelErr *perrors.ModelError
	require.ErrorAs(t, err, &modelErr)

	var loaded stubModel
	require.NoError(t, LoadModel(&loaded, path))
	assert.Equal(t, "current", loaded.Name)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must be cleaned up")
	assert.Equal(t, "model.gob", entries[0].Name())
}

func TestLoadModelMissingFile(t *testing.T) {
	var m stubModel
	err := LoadModel(&m, filepath.Join(t.TempDir(), "absent.gob"))

	var modelErr *perrors.ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, "LoadModel", modelErr.Op)
}

func TestLoadModelFromReaderCorrupt(t *testing.T) {
	var m stubModel
	err := LoadModelFromReader(&m, bytes.NewBufferString("not gob"))
	assert.Error(t, err)
}

func TestBaseEstimatorChecks(t *testing.T) {
	var e BaseEstimator

	var nf *perrors.NotFittedError
	require.ErrorAs(t, e.RequireFitted("LGBMClassifier", "Predict"), &nf)

	e.SetFitted(11)
	assert.NoError(t, e.RequireFitted("LGBMClassifier", "Predict"))
	assert.NoError(t, e.CheckFeatures("Predict", 11))

	var dim *perrors.DimensionError
	require.ErrorAs(t, e.CheckFeatures("Predict", 10), &dim)
	assert.Equal(t, 11, dim.Expected)

	e.Reset()
	assert.False(t, e.IsFitted())
}
