package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

// Handler serves the prediction form and the JSON API.
type Handler struct {
	holder  *ModelHolder
	metrics *Metrics
	logger  log.Logger
}

// NewHandler returns a Handler backed by holder.
func NewHandler(holder *ModelHolder, metrics *Metrics, logger log.Logger) *Handler {
	return &Handler{holder: holder, metrics: metrics, logger: logger}
}

// RegisterRoutes adds every route to r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/", h.PredictForm).Methods(http.MethodPost)
	r.HandleFunc("/api/predict", h.PredictJSON).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
}

// Index renders the empty form.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := newFormData(nil)
	data.ModelLoaded = h.holder.Loaded()
	h.render(w, http.StatusOK, data)
}

// PredictForm parses the eleven form fields and renders the prediction.
func (h *Handler) PredictForm(w http.ResponseWriter, r *http.Request) {
	features, err := parseForm(r)
	data := newFormData(r)
	data.ModelLoaded = h.holder.Loaded()
	if err != nil {
		data.Error = err.Error()
		h.render(w, http.StatusBadRequest, data)
		return
	}

	pred, status, err := h.predict(r, features)
	if err != nil {
		data.Error = err.Error()
		h.render(w, status, data)
		return
	}
	data.Prediction = &pred
	h.render(w, http.StatusOK, data)
}

// PredictJSON accepts {"Pclass": 3, "Sex": 0, ...} and answers
// {"prediction": 0|1, "probability": p}.
func (h *Handler) PredictJSON(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.Number
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}
	features, err := parseFeatures(func(field string) (string, bool) {
		v, ok := body[FeatureName(field)]
		return v.String(), ok
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	pred, status, err := h.predict(r, features)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

// Health reports whether a model is loaded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	path, loadedAt := h.holder.Info()
	body := map[string]any{
		"status":       "ok",
		"model_loaded": h.holder.Loaded(),
		"model_path":   path,
	}
	status := http.StatusOK
	if h.holder.Loaded() {
		body["loaded_at"] = loadedAt.UTC().Format(time.RFC3339)
	} else {
		body["status"] = "no model"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

// predict returns the prediction or the HTTP status that describes the failure.
func (h *Handler) predict(r *http.Request, features []float64) (Prediction, int, error) {
	pred, err := h.holder.Predict(features)
	switch {
	case perrors.Is(err, ErrNoModel):
		return Prediction{}, http.StatusServiceUnavailable, err
	case err != nil:
		h.logger.Error("Prediction failed", err, log.RequestIDKey, RequestID(r.Context()))
		return Prediction{}, http.StatusInternalServerError, err
	}
	h.metrics.observePrediction(pred.Label)
	h.logger.Debug("Prediction served",
		log.RequestIDKey, RequestID(r.Context()),
		log.PredictionKey, pred.Label,
		log.ConfidenceKey, pred.Probability,
	)
	return pred, http.StatusOK, nil
}

func (h *Handler) render(w http.ResponseWriter, status int, data formData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, data); err != nil {
		h.logger.Error("Failed to render form", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
