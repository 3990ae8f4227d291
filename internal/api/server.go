// Package api exposes the HTTP control surface: status, configuration,
// calibration lifecycle and the persisted event journal.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/posture.report/internal/config"
	"github.com/banshee-data/posture.report/internal/posture"
	"github.com/banshee-data/posture.report/internal/store"
	"github.com/banshee-data/posture.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// EventReader is the slice of the journal the API needs. A nil reader means
// the process runs without persistence and /api/events is unavailable.
type EventReader interface {
	RecentEvents(metric config.MetricID, limit int) ([]store.StoredEvent, error)
}

type Server struct {
	pipeline *posture.Pipeline
	events   EventReader
}

func NewServer(pipeline *posture.Pipeline, events EventReader) *Server {
	return &Server{
		pipeline: pipeline,
		events:   events,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/calibration/start", s.startCalibration)
	mux.HandleFunc("/api/calibration/finish", s.finishCalibration)
	mux.HandleFunc("/api/calibration/cancel", s.cancelCalibration)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status, err := s.pipeline.Status(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve status: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		cfg, err := s.pipeline.Config(r.Context())
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to retrieve config: %v", err))
			return
		}
		if err := json.NewEncoder(w).Encode(cfg); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		}

	case http.MethodPost:
		var req config.OverridesFile
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid config payload: %v", err))
			return
		}
		if req.MetricPreset == "" {
			req.MetricPreset = config.MetricPresetDefault
		}
		if req.PerformancePreset == "" {
			req.PerformancePreset = config.PerformancePresetMedium
		}

		cfg, err := config.ResolveFile(&req)
		if err != nil {
			var presetErr *config.InvalidPresetError
			if errors.As(err, &presetErr) {
				s.writeJSONError(w, http.StatusBadRequest, presetErr.Error())
				return
			}
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to resolve config: %v", err))
			return
		}

		if err := s.pipeline.ApplyConfig(r.Context(), cfg); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to apply config: %v", err))
			return
		}
		if err := json.NewEncoder(w).Encode(cfg); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		}

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) startCalibration(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.pipeline.StartCalibration(r.Context()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to start calibration: %v", err))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "collecting"})
}

func (s *Server) finishCalibration(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	res, err := s.pipeline.FinishCalibration(r.Context())
	if err != nil {
		var notReady *posture.CalibrationNotReadyError
		if errors.As(err, &notReady) {
			// The window stays open; the client should retry shortly.
			s.writeJSONError(w, http.StatusConflict, notReady.Error())
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to finish calibration: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write calibration result")
	}
}

func (s *Server) cancelCalibration(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.pipeline.CancelCalibration(r.Context()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to cancel calibration: %v", err))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.events == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Event journal is not enabled")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	metric := config.MetricID(r.URL.Query().Get("metric"))

	events, err := s.events.RecentEvents(metric, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	if events == nil {
		events = []store.StoredEvent{}
	}

	if err := json.NewEncoder(w).Encode(events); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write events")
		return
	}
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	info := map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	}
	if err := json.NewEncoder(w).Encode(info); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write version")
	}
}
