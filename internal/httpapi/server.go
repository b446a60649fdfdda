// Package httpapi is the thin front-end (Component E, spec.md §4.E):
// it owns only the externally visible HTTP surface of §6 and
// translates each request into a Scheduler / Engine call. No business
// logic lives here.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bdrail/matrixsched/internal/matrix"
	"github.com/bdrail/matrixsched/internal/scheduler"
	"github.com/bdrail/matrixsched/internal/upstream"
	"github.com/bdrail/matrixsched/pkg/config"
	"github.com/gorilla/mux"
)

// Server wires the scheduler and matrix engine to the HTTP surface.
type Server struct {
	sched    *scheduler.Scheduler
	engine   *matrix.Engine
	upstream *upstream.Client
	logger   *slog.Logger
}

// NewServer builds a Server over an already-running Scheduler. A nil
// logger defaults to a stderr-writing slog.Logger (spec.md §5 logging:
// structured, leveled, request-scoped request_id/status fields — the
// teacher's plain fmt/log is enough for a one-shot CLI, but a server
// fielding concurrent requests needs each log line tied to the request
// that produced it).
func NewServer(sched *scheduler.Scheduler, engine *matrix.Engine, upstreamClient *upstream.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Server{sched: sched, engine: engine, upstream: upstreamClient, logger: logger}
}

// Router builds the mux.Router for the front-end surface of spec.md §6.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)
	r.HandleFunc("/submit", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/status/{id}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/cancel/{id}", s.handleCancel).Methods(http.MethodPost)
	r.HandleFunc("/cancel_beacon/{id}", s.handleCancelBeacon).Methods(http.MethodPost)
	r.HandleFunc("/heartbeat/{id}", s.handleHeartbeat).Methods(http.MethodPost)
	r.HandleFunc("/result/{id}", s.handleResult).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/cleanup", s.handleCleanup).Methods(http.MethodPost)
	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	return r
}

// statusRecorder captures the status code a handler writes, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs one structured line per request with the
// fields spec.md §5 calls for: request_id (when the route carries one)
// and the final status code.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id := mux.Vars(r)["id"]; id != "" {
			attrs = append(attrs, "request_id", id)
		}
		s.logger.Info("handled request", attrs...)
	})
}

type submitRequest struct {
	Train     string `json:"train"`
	Date      string `json:"date"`
	AuthToken string `json:"auth_token"`
	DeviceKey string `json:"device_key"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	params, result := config.ValidateSubmitForm(config.SubmitForm{
		TrainLabel:  req.Train,
		JourneyDate: req.Date,
		AuthToken:   req.AuthToken,
		DeviceKey:   req.DeviceKey,
	})
	if result.HasErrors() {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": result.Errors})
		return
	}

	id := s.sched.Submit(s.engine.Compute, params)
	s.logger.Info("submitted matrix request", "request_id", id, "train_model", params.TrainModel)
	writeJSON(w, http.StatusOK, map[string]string{"request_id": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, ok := s.sched.GetStatus(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown request id"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cancelled := s.sched.Cancel(id)
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// handleCancelBeacon is the fire-and-forget variant used by
// navigator.sendBeacon on page unload: best-effort, always 204
// regardless of whether the id was known (spec.md §5 cancellation
// semantics).
func (s *Server) handleCancelBeacon(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.sched.Cancel(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	active := s.sched.Heartbeat(id)
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	result, ok := s.sched.GetResult(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no result ready"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStats returns the stats record exactly as spec.md §4.D defines
// it. The optional health-monitor side channel (SPEC_FULL.md §4.D) is
// deliberately not folded in here, to keep this response shape stable
// for the spec's own get_status/stats contract; operator tooling reads
// it via Scheduler.Health directly when embedding the scheduler in a
// different front-end.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Stats())
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	s.sched.ForceCleanup()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleSearch is the supplemented CommonTrains endpoint (SPEC_FULL.md
// §7): browse which trains run on both of two dates ahead of submitting
// a full matrix request.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	date1, date2 := q.Get("date1"), q.Get("date2")
	token, deviceKey := q.Get("auth_token"), q.Get("device_key")

	if from == "" || to == "" || date1 == "" || date2 == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from, to, date1, and date2 are required"})
		return
	}
	if token == "" || deviceKey == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": upstream.SentinelAuthCredentialsRequired})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	trains, err := s.upstream.CommonTrains(ctx, from, to, date1, date2, upstream.Auth{Token: token, DeviceKey: deviceKey})
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trains": trains})
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if e, ok := upstream.AsError(err); ok {
		switch e.Kind {
		case upstream.KindAuthTokenExpired, upstream.KindAuthDeviceKeyExpired, upstream.KindAuthCredentialsRequired:
			status = http.StatusUnauthorized
		case upstream.KindRateLimited:
			status = http.StatusTooManyRequests
		case upstream.KindForbidden:
			status = http.StatusForbidden
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response", "error", err)
	}
}
