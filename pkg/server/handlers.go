package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/pario-ai/adcache/pkg/cache"
	"github.com/pario-ai/adcache/pkg/codec"
	"github.com/pario-ai/adcache/pkg/metrics"
	"github.com/pario-ai/adcache/pkg/models"
)

const maxBodyBytes = 8 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.app.Cache.Sizes(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "store unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statsResponse adds display-only figures to PerformanceStats.
type statsResponse struct {
	models.PerformanceStats
	PercentSaved float64 `json:"percent_saved"`
	UnitCost     float64 `json:"unit_cost"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := metrics.DefaultWindowHours
	if v := r.URL.Query().Get("window_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > metrics.MaxWindowHours {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("window_hours must be between 1 and %d", metrics.MaxWindowHours))
			return
		}
		hours = n
	}

	stats, err := s.app.Aggregator.PerformanceStats(r.Context(), hours)
	if err != nil {
		s.log.Error().Err(err).Msg("compute stats")
		writeJSONError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		PerformanceStats: stats,
		PercentSaved:     stats.ImageOptimization.PercentSaved(),
		UnitCost:         s.app.Aggregator.UnitCost(),
	})
}

type keyRequest struct {
	Inputs []string `json:"inputs"`
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": codec.RequestKey(req.Inputs...)})
}

func (s *Server) handleCacheSizes(w http.ResponseWriter, r *http.Request) {
	sizes, err := s.app.Cache.Sizes(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sizes)
}

func (s *Server) rawPartition(w http.ResponseWriter, r *http.Request) (*cache.Typed[json.RawMessage], string, bool) {
	name := models.Partition(chi.URLParam(r, "partition"))
	view, err := s.app.Cache.Raw(name)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return nil, "", false
	}
	return view, chi.URLParam(r, "key"), true
}

func (s *Server) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	view, key, ok := s.rawPartition(w, r)
	if !ok {
		return
	}
	var opts []cache.Option
	if force, _ := strconv.ParseBool(r.URL.Query().Get("force_refresh")); force {
		opts = append(opts, cache.ForceRefresh())
	}

	payload, hit := view.Get(r.Context(), key, opts...)
	if !hit {
		writeJSONError(w, http.StatusNotFound, "cache miss")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handleCachePut(w http.ResponseWriter, r *http.Request) {
	view, key, ok := s.rawPartition(w, r)
	if !ok {
		return
	}

	var opts []cache.Option
	if v := r.URL.Query().Get("ttl"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid ttl: "+err.Error())
			return
		}
		opts = append(opts, cache.WithTTL(ttl))
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if !json.Valid(body) {
		writeJSONError(w, http.StatusBadRequest, "body must be JSON")
		return
	}

	if err := view.Put(r.Context(), key, json.RawMessage(body), opts...); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "cache write failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	view, key, ok := s.rawPartition(w, r)
	if !ok {
		return
	}
	if err := view.Remove(r.Context(), key); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecordMetric accepts any metric in its stored wire form.
func (s *Server) handleRecordMetric(w http.ResponseWriter, r *http.Request) {
	var m models.Metric
	if err := decodeBody(r, &m); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := m.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec := s.app.Recorder.Record(r.Context(), m.Kind, m.Payload, m.Duration, m.Success)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": rec.ID})
}

// apiCallRequest also accepts the camelCase names used by browser call
// sites. Duration is in milliseconds under either name.
type apiCallRequest struct {
	models.APICall
	DurationMs float64 `json:"duration_ms"`

	CacheHitAlias     *bool    `json:"cacheHit"`
	DurationAlias     *float64 `json:"duration"`
	ErrorMessageAlias string   `json:"errorMessage"`
}

func (req *apiCallRequest) normalize() {
	if req.CacheHitAlias != nil {
		req.CacheHit = *req.CacheHitAlias
	}
	if req.DurationAlias != nil {
		req.DurationMs = *req.DurationAlias
	}
	if req.ErrorMessage == "" {
		req.ErrorMessage = req.ErrorMessageAlias
	}
}

func (s *Server) handleTrackAPICall(w http.ResponseWriter, r *http.Request) {
	var req apiCallRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.normalize()
	if req.Endpoint == "" {
		writeJSONError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	switch req.Status {
	case "", models.StatusSuccess, models.StatusError:
	default:
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}
	m := s.app.Recorder.TrackAPICall(r.Context(), req.APICall, msDuration(req.DurationMs))
	writeJSON(w, http.StatusAccepted, map[string]string{"id": m.ID, "type": string(m.Kind)})
}

func (s *Server) handleTrackImageOptimization(w http.ResponseWriter, r *http.Request) {
	var req models.ImageOptimization
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OriginalSize <= 0 || req.OptimizedSize < 0 {
		writeJSONError(w, http.StatusBadRequest, "original_size must be positive")
		return
	}
	m := s.app.Recorder.TrackImageOptimization(r.Context(), req)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": m.ID})
}

type videoGenerationRequest struct {
	models.VideoGeneration
	DurationMs float64 `json:"duration_ms"`
	Success    *bool   `json:"success"`
}

func (s *Server) handleTrackVideoGeneration(w http.ResponseWriter, r *http.Request) {
	var req videoGenerationRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	success := req.ErrorMessage == ""
	if req.Success != nil {
		success = *req.Success
	}
	m := s.app.Recorder.TrackVideoGeneration(r.Context(), req.VideoGeneration, msDuration(req.DurationMs), success)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": m.ID})
}

func (s *Server) handleTrackUserAction(w http.ResponseWriter, r *http.Request) {
	var req models.UserAction
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Action == "" {
		writeJSONError(w, http.StatusBadRequest, "action is required")
		return
	}
	m := s.app.Recorder.TrackUserAction(r.Context(), req.Action, req.Details)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": m.ID})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Sweeper.Sweep(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"removed": res,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": res})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
