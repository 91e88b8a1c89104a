package server

import (
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/sklearn/lightgbm"
	"github.com/YuminosukeSato/titanic-survival/training"
)

// ErrNoModel is returned by ModelHolder.Predict before a model is loaded.
var ErrNoModel = perrors.New("no model loaded")

// Prediction is the classifier output for one passenger.
type Prediction struct {
	Label       int     `json:"prediction"`
	Probability float64 `json:"probability"`
}

// ModelHolder guards the classifier shared by request handlers and the
// reload watcher.
type ModelHolder struct {
	mu  sync.RWMutex
	clf *lightgbm.LGBMClassifier
	// columns[j] is the FeatureFields index feeding model column j
	columns  []int
	path     string
	loadedAt time.Time
}

// NewModelHolder returns an empty holder.
func NewModelHolder() *ModelHolder {
	return &ModelHolder{}
}

// Load reads the classifier at path and swaps it in. On error the current
// model is kept.
func (h *ModelHolder) Load(path string) error {
	clf, err := training.LoadClassifier(path)
	if err != nil {
		return err
	}
	return h.Set(clf, path)
}

// Set installs clf directly. It fails, keeping the current model, when clf
// was trained on a feature the form does not collect.
func (h *ModelHolder) Set(clf *lightgbm.LGBMClassifier, path string) error {
	columns, err := modelColumns(clf)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clf = clf
	h.columns = columns
	h.path = path
	h.loadedAt = time.Now()
	return nil
}

// modelColumns maps the classifier's feature names onto FeatureFields.
// A classifier without names takes the fields positionally.
func modelColumns(clf *lightgbm.LGBMClassifier) ([]int, error) {
	names := clf.FeatureNames
	if len(names) == 0 && clf.Model != nil {
		names = clf.Model.FeatureNames
	}
	if len(names) == 0 {
		columns := make([]int, len(FeatureFields))
		for i := range columns {
			columns[i] = i
		}
		return columns, nil
	}
	columns := make([]int, len(names))
	for j, name := range names {
		i := slices.IndexFunc(FeatureFields, func(f string) bool { return FeatureName(f) == name })
		if i < 0 {
			return nil, perrors.NewValidationError("feature_names", "model feature has no form field", name)
		}
		columns[j] = i
	}
	return columns, nil
}

// Loaded reports whether a model is available.
func (h *ModelHolder) Loaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clf != nil
}

// Info returns the source path and load time of the current model.
func (h *ModelHolder) Info() (path string, loadedAt time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.path, h.loadedAt
}

// Predict classifies one row of features given in FeatureFields order.
func (h *ModelHolder) Predict(features []float64) (Prediction, error) {
	h.mu.RLock()
	clf, columns := h.clf, h.columns
	h.mu.RUnlock()
	if clf == nil {
		return Prediction{}, ErrNoModel
	}
	if len(features) == 0 {
		return Prediction{}, perrors.ErrEmptyData
	}
	if len(features) != len(FeatureFields) {
		return Prediction{}, perrors.NewDimensionError("ModelHolder.Predict", len(FeatureFields), len(features), 1)
	}

	row := make([]float64, len(columns))
	for j, i := range columns {
		row[j] = features[i]
	}
	X := mat.NewDense(1, len(row), row)
	proba, err := clf.PredictProba(X)
	if err != nil {
		return Prediction{}, err
	}
	p := proba.At(0, 1)
	label := 0
	if p > 0.5 {
		label = 1
	}
	return Prediction{Label: label, Probability: p}, nil
}
