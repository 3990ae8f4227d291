package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/posture.report/internal/config"
	"github.com/banshee-data/posture.report/internal/posture"
	"github.com/banshee-data/posture.report/internal/store"
)

type fakeEvents struct {
	events []store.StoredEvent
	err    error

	gotMetric config.MetricID
	gotLimit  int
}

func (f *fakeEvents) RecentEvents(metric config.MetricID, limit int) ([]store.StoredEvent, error) {
	f.gotMetric = metric
	f.gotLimit = limit
	return f.events, f.err
}

func newTestServer(t *testing.T, events EventReader) (*Server, *posture.Pipeline) {
	t.Helper()
	cfg, err := config.Resolve(config.MetricPresetDefault, config.PerformancePresetMedium, config.Overrides{})
	require.NoError(t, err)

	p := posture.NewPipeline(cfg, posture.PipelineOptions{
		Calibrator: posture.NewCalibrator(posture.CalibratorOptions{MinSamples: 1, MinElapsed: time.Millisecond}),
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go p.Run(ctx)

	return NewServer(p, events), p
}

func TestShowStatus(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status posture.StatusSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.False(t, status.Calibrated)
	assert.Equal(t, config.MetricPresetDefault, status.MetricPreset)
	assert.Equal(t, posture.StateNormal, status.AlertStates[config.MetricSlouching])

	// Wrong method.
	rec = httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestConfigRoundTrip(t *testing.T) {
	s, _ := newTestServer(t, nil)
	mux := s.ServeMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg config.EffectiveConfig
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Equal(t, config.PerformancePresetMedium, cfg.PerformancePreset)

	// Switch preset with an override via POST.
	body := `{
		"metric_preset": "Relaxed",
		"performance_preset": "Low",
		"overrides": {"metrics": {"head_tilt": {"enabled": false}}}
	}`
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Equal(t, config.MetricPresetRelaxed, cfg.MetricPreset)
	assert.False(t, cfg.Metric(config.MetricHeadTilt).Enabled)
	assert.Equal(t, float64(5), cfg.Performance.TargetFPS)
}

func TestConfigRejectsBadPayloads(t *testing.T) {
	s, _ := newTestServer(t, nil)
	mux := s.ServeMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config",
		bytes.NewBufferString(`{"metric_preset": "Turbo"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Turbo")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config",
		bytes.NewBufferString(`{not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalibrationEndpoints(t *testing.T) {
	s, _ := newTestServer(t, nil)
	mux := s.ServeMux()

	// Finishing without an open window is an error, not a conflict.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/calibration/finish", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/calibration/start", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// No frames ingested yet: the window is open but not ready.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/calibration/finish", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/calibration/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var status posture.StatusSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, posture.CalibratorIdle, status.CalibratorState)
}

func TestListEvents(t *testing.T) {
	fake := &fakeEvents{
		events: []store.StoredEvent{
			{EventID: 1, Metric: config.MetricSlouching, Kind: posture.EventBadPosture, Severity: 0.4},
		},
	}
	s, _ := newTestServer(t, fake)
	mux := s.ServeMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?metric=slouching&limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.MetricSlouching, fake.gotMetric)
	assert.Equal(t, 5, fake.gotLimit)

	var events []store.StoredEvent
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, posture.EventBadPosture, events[0].Kind)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEventsWithoutJournal(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
