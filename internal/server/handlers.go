package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/cache"
	"github.com/raaihank/pii-sentinel/internal/etl"
	"github.com/raaihank/pii-sentinel/internal/payload"
	"github.com/raaihank/pii-sentinel/internal/privacy"
	"github.com/raaihank/pii-sentinel/internal/record"
	"github.com/raaihank/pii-sentinel/internal/store"
	"github.com/raaihank/pii-sentinel/internal/websocket"
)

type recordsRequest struct {
	Records []record.Input `json:"records"`
}

type recordsResponse struct {
	Results []record.Output `json:"results"`
}

type infoResponse struct {
	Name             string             `json:"name"`
	Version          string             `json:"version"`
	Detectors        []privacy.Category `json:"detectors"`
	StoreEnabled     bool               `json:"store_enabled"`
	CacheEnabled     bool               `json:"cache_enabled"`
	WebSocketEnabled bool               `json:"websocket_enabled"`
	MetricsEnabled   bool               `json:"metrics_enabled"`
}

type statsResponse struct {
	Pipeline  *etl.ProcessingStats `json:"pipeline"`
	Store     *store.Stats         `json:"store,omitempty"`
	Cache     *cache.CacheStats    `json:"cache,omitempty"`
	WebSocket *websocket.HubStats  `json:"websocket,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleInfo reports the enabled detectors and optional components
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Name:             "pii-sentinel",
		Version:          Version,
		Detectors:        s.pipeline.Classifier().Registry().Categories(),
		StoreEnabled:     s.store != nil,
		CacheEnabled:     s.cache != nil,
		WebSocketEnabled: s.config.WebSocket.Enabled,
		MetricsEnabled:   s.metrics != nil,
	})
}

// handleClassify redacts a single payload object
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes))
	if err != nil {
		writeBodyError(w, err)
		return
	}

	data, err := payload.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	start := time.Now()
	result := s.pipeline.Classifier().Classify(data)

	s.metrics.ObserveRecord(result.IsPII, true, time.Since(start))
	for _, f := range result.Findings {
		s.metrics.ObserveFinding(string(f.Category), string(f.Kind))
	}

	s.publishDetection(r.Context(), websocket.PIIDetectionEvent{
		Source:   "api",
		IsPII:    result.IsPII,
		Findings: result.Findings,
	})

	writeJSON(w, http.StatusOK, result)
}

// handleRecords redacts a batch of records and feeds the sinks
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	var req recordsRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeBodyError(w, err)
		return
	}

	if s.config.Server.MaxRecords > 0 && len(req.Records) > s.config.Server.MaxRecords {
		writeError(w, http.StatusRequestEntityTooLarge, "too many records in one request")
		return
	}

	outputs, err := s.pipeline.ProcessRecords(r.Context(), req.Records)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Record processing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "record processing failed")
		return
	}

	writeJSON(w, http.StatusOK, recordsResponse{Results: outputs})
}

// handleGetRecord looks a result up in the cache, then the store
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	recordID := mux.Vars(r)["id"]
	log := s.logger.WithRequestID(getRequestID(r.Context()))

	if s.cache != nil {
		cached, err := s.cache.Get(r.Context(), recordID)
		switch {
		case err == nil:
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, cached.Output)
			return
		case !errors.Is(err, cache.ErrMiss):
			log.Warn("Cache lookup failed", zap.String("record_id", recordID), zap.Error(err))
		}
	}

	if s.store != nil {
		out, err := s.store.Get(r.Context(), recordID)
		switch {
		case err == nil:
			w.Header().Set("X-Cache", "MISS")
			writeJSON(w, http.StatusOK, out)
			return
		case !errors.Is(err, store.ErrNotFound):
			log.Error("Store lookup failed", zap.String("record_id", recordID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
	}

	writeError(w, http.StatusNotFound, "record not found")
}

// handleStats reports pipeline counters plus whatever sinks are enabled
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Pipeline: s.pipeline.GetStats()}
	log := s.logger.WithRequestID(getRequestID(r.Context()))

	if s.store != nil {
		stats, err := s.store.GetStats(r.Context())
		if err != nil {
			log.Warn("Failed to get store stats", zap.Error(err))
		}
		resp.Store = stats
	}

	if s.cache != nil {
		stats, err := s.cache.GetStats(r.Context())
		if err != nil {
			log.Warn("Failed to get cache stats", zap.Error(err))
		}
		resp.Cache = stats
	}

	if s.config.WebSocket.Enabled {
		stats := s.wsHub.GetStats()
		resp.WebSocket = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body")
}
