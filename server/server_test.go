package server

import (
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanic-survival/config"
	"github.com/YuminosukeSato/titanic-survival/core/model"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
	"github.com/YuminosukeSato/titanic-survival/sklearn/lightgbm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// trainedClassifier learns Survived = Sex on eleven columns.
func trainedClassifier(t *testing.T) *lightgbm.LGBMClassifier {
	t.Helper()
	const n = 200
	r := rand.New(rand.NewPCG(7, 7))
	X := mat.NewDense(n, len(FeatureFields), nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := range FeatureFields {
			X.Set(i, j, r.Float64()*10)
		}
		sex := float64(i % 2)
		X.Set(i, 1, sex)
		y.SetVec(i, sex)
	}
	clf := lightgbm.NewLGBMClassifier().WithNEstimators(10).WithMinChildSamples(5)
	require.NoError(t, clf.Fit(X, y))
	return clf
}

// namedClassifier learns Survived = Sex on columns named by names, so Sex
// sits wherever names puts it.
func namedClassifier(t *testing.T, names []string) *lightgbm.LGBMClassifier {
	t.Helper()
	const n = 200
	sexCol := slices.Index(names, "Sex")
	require.GreaterOrEqual(t, sexCol, 0)
	r := rand.New(rand.NewPCG(11, 11))
	X := mat.NewDense(n, len(names), nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := range names {
			X.Set(i, j, r.Float64()*10)
		}
		sex := float64(i % 2)
		X.Set(i, sexCol, sex)
		y.SetVec(i, sex)
	}
	clf := lightgbm.NewLGBMClassifier().WithNEstimators(10).WithMinChildSamples(5).WithFeatureNames(names)
	require.NoError(t, clf.Fit(X, y))
	return clf
}

func serverConfig() config.Server {
	return config.Server{
		Addr:               "127.0.0.1:0",
		RateLimitRPS:       1000,
		RateLimitBurst:     1000,
		ReadTimeoutSec:     5,
		WriteTimeoutSec:    5,
		ShutdownTimeoutSec: 2,
	}
}

func newTestServer(t *testing.T, cfg config.Server, withModel bool) (*Server, *log.TestLogger) {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	s := New(cfg, WithLogger(logger))
	if withModel {
		require.NoError(t, s.Holder().Set(trainedClassifier(t), "memory"))
	}
	return s, logger
}

func passengerForm(sex string) url.Values {
	v := url.Values{}
	for _, f := range FeatureFields {
		v.Set(f, "1")
	}
	v.Set("num__Sex", sex)
	return v
}

func postForm(h http.Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t, serverConfig(), true)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, f := range FeatureFields {
		assert.Contains(t, body, `name="`+f+`"`)
	}
	assert.NotContains(t, body, "No model is loaded")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestPredictForm(t *testing.T) {
	s, _ := newTestServer(t, serverConfig(), true)

	rec := postForm(s.Handler(), passengerForm("1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Prediction: Survived (1)")
	// submitted values are echoed back into the form
	assert.Contains(t, rec.Body.String(), `name="num__Sex" value="1"`)

	rec = postForm(s.Handler(), passengerForm("0"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Prediction: Did not survive (0)")
}

func TestPredictFormInvalidInput(t *testing.T) {
	s, _ := newTestServer(t, serverConfig(), true)

	missing := passengerForm("1")
	missing.Del("num__Age")
	rec := postForm(s.Handler(), missing)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "num__Age is required")

	bad := passengerForm("1")
	bad.Set("num__Fare", "cheap")
	rec = postForm(s.Handler(), bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "num__Fare must be a number")
	assert.NotContains(t, rec.Body.String(), "Prediction:")
}

func TestPredictFormWithoutModel(t *testing.T) {
	s, _ := newTestServer(t, serverConfig(), false)

	rec := postForm(s.Handler(), passengerForm("1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "No model is loaded")
}

func TestPredictJSON(t *testing.T) {
	s, _ := newTestServer(t, serverConfig(), true)
	body := map[string]float64{}
	for _, f := range FeatureFields {
		body[FeatureName(f)] = 1
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(string(payload)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var pred Prediction
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pred))
	assert.Equal(t, 1, pred.Label)
	assert.Greater(t, pred.Probability, 0.5)
}

func TestPredictJSONErrors(t *testing.T) {
	s, _ := newTestServer(t, serverConfig(), true)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", "{", "invalid JSON body"},
		{"missing fields", `{"Pclass": 3}`, "num__Sex is required"},
		{"not a number", `{"Pclass": "first"}`, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, serverConfig(), false)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, s.Holder().Set(trainedClassifier(t), "memory"))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["model_loaded"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, serverConfig(), true)
	postForm(s.Handler(), passengerForm("1"))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `titanic_predictions_total{class="1"} 1`)
	assert.Contains(t, body, `titanic_http_requests_total{code="200",method="POST",route="/"} 1`)
}

func TestRateLimit(t *testing.T) {
	cfg := serverConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	s, _ := newTestServer(t, cfg, true)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// another client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	s, logger := newTestServer(t, serverConfig(), true)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.True(t, logger.ContainsField(log.RequestIDKey, "abc-123"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(req))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}

func TestModelHolderPredictWithoutModel(t *testing.T) {
	_, err := NewModelHolder().Predict(make([]float64, len(FeatureFields)))
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestModelHolderFollowsModelFeatureOrder(t *testing.T) {
	// Sex moved to the last column and Pclass dropped
	names := []string{"Age", "Fare", "Embarked", "Familysize", "Isalone",
		"HasCabin", "Title", "Pclass_Fare", "Age_Fare", "Sex"}
	h := NewModelHolder()
	require.NoError(t, h.Set(namedClassifier(t, names), "memory"))

	row := func(sex float64) []float64 {
		features := make([]float64, len(FeatureFields))
		for i := range features {
			features[i] = 1
		}
		features[slices.Index(FeatureFields, "num__Sex")] = sex
		return features
	}
	female, err := h.Predict(row(1))
	require.NoError(t, err)
	male, err := h.Predict(row(0))
	require.NoError(t, err)
	assert.Equal(t, 1, female.Label)
	assert.Equal(t, 0, male.Label)

	_, err = h.Predict(row(1)[:5])
	var dimErr *perrors.DimensionError
	assert.ErrorAs(t, err, &dimErr)
}

func TestModelHolderRejectsUnknownFeature(t *testing.T) {
	h := NewModelHolder()
	require.NoError(t, h.Set(trainedClassifier(t), "first"))

	err := h.Set(namedClassifier(t, []string{"Sex", "Deck"}), "second")
	var valErr *perrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	path, _ := h.Info()
	assert.Equal(t, "first", path)
}

func TestModelHolderLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")
	clf := trainedClassifier(t)
	require.NoError(t, model.SaveModel(clf, path))

	h := NewModelHolder()
	require.NoError(t, h.Load(path))
	assert.True(t, h.Loaded())
	got, _ := h.Info()
	assert.Equal(t, path, got)

	// a broken artifact leaves the current model in place
	assert.Error(t, h.Load(filepath.Join(t.TempDir(), "missing.gob")))
	assert.True(t, h.Loaded())
}

func waitForAddr(t *testing.T, s *Server) string {
	t.Helper()
	require.Eventually(t, func() bool { return s.Addr() != nil }, 5*time.Second, 10*time.Millisecond)
	return "http://" + s.Addr().String()
}

func get(t *testing.T, client *http.Client, rawURL string) int {
	t.Helper()
	resp, err := client.Get(rawURL)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func TestRunServesAndShutsDown(t *testing.T) {
	cfg := serverConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, model.SaveModel(trainedClassifier(t), cfg.ModelPath))
	s, _ := newTestServer(t, cfg, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	base := waitForAddr(t, s)
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	assert.Equal(t, http.StatusOK, get(t, client, base+"/healthz"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	client.CloseIdleConnections()
}

func TestRunReloadsModelOnChange(t *testing.T) {
	cfg := serverConfig()
	cfg.WatchModel = true
	cfg.ModelPath = filepath.Join(t.TempDir(), "models", "model.gob")
	s, logger := newTestServer(t, cfg, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	waitForAddr(t, s)
	require.Eventually(t, func() bool {
		return logger.ContainsMessage("Watching model artifact")
	}, 5*time.Second, 10*time.Millisecond)
	assert.False(t, s.Holder().Loaded())

	require.NoError(t, model.SaveModel(trainedClassifier(t), cfg.ModelPath))
	require.Eventually(t, s.Holder().Loaded, 5*time.Second, 20*time.Millisecond)
	assert.True(t, logger.ContainsMessage("Model reloaded"))

	cancel()
	require.NoError(t, <-done)
}
