// Package server exposes the scheduler controls and the telemetry
// snapshot over HTTP.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/errors"
	"codeberg.org/mutker/telemetrylab/internal/history"
	"codeberg.org/mutker/telemetrylab/internal/logger"
	"codeberg.org/mutker/telemetrylab/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
	maxBodyBytes      = 1 << 16
)

const (
	ErrServe       = errors.ErrorCode("server_serve_failed")
	ErrStartFailed = errors.ErrorCode("server_start_scheduler_failed")
)

// Controller is the scheduler surface the control endpoints drive.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	SetIntensity(v float64) int
	IsRunning() bool
	RunID() string
}

// StatusSource provides the presentation state.
type StatusSource interface {
	Snapshot() telemetry.Snapshot
	History() []history.Entry
}

// PowerUpdater accepts pushed power-save notifications.
type PowerUpdater interface {
	Update(powerSave bool)
}

// Deps are the components the server fronts. Power and Metrics are
// optional; their routes are only mounted when set.
type Deps struct {
	Scheduler Controller
	Telemetry StatusSource
	Power     PowerUpdater
	Metrics   http.Handler
}

// Server is the control and status HTTP API.
type Server struct {
	ctx  context.Context
	deps Deps
	log  logger.Logger
}

// New creates a server. ctx bounds the scheduler runs started over HTTP.
func New(ctx context.Context, deps Deps, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{ctx: ctx, deps: deps, log: log}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/status", s.handleStatus)
	r.Get("/history", s.handleHistory)
	r.Post("/control", s.handleControl)
	r.Put("/intensity", s.handleIntensity)

	if s.deps.Power != nil {
		r.Put("/power", s.handlePower)
	}

	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics)
	}

	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.New().Wrap(ErrServe, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	errFactory := errors.New()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")

	select {
	case err := <-errCh:
		return errFactory.Wrap(ErrServe, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errFactory.Wrap(ErrServe, err)
	}

	s.log.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Telemetry.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Telemetry.History())
}

type controlRequest struct {
	Action string `json:"action"`
}

type controlResponse struct {
	Running bool   `json:"running"`
	RunID   string `json:"run_id,omitempty"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch req.Action {
	case "", "start":
		if err := s.deps.Scheduler.Start(s.ctx); err != nil {
			s.log.Error().Err(err).Msg("Failed to start scheduler")
			writeError(w, http.StatusInternalServerError, errors.New().Wrap(ErrStartFailed, err).Error())
			return
		}
	case "stop":
		s.deps.Scheduler.Stop()
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
		return
	}

	writeJSON(w, http.StatusOK, controlResponse{
		Running: s.deps.Scheduler.IsRunning(),
		RunID:   s.deps.Scheduler.RunID(),
	})
}

type intensityRequest struct {
	Value *float64 `json:"value"`
}

func (s *Server) handleIntensity(w http.ResponseWriter, r *http.Request) {
	var req intensityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "missing value")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"intensity": s.deps.Scheduler.SetIntensity(*req.Value),
	})
}

type powerRequest struct {
	PowerSave *bool `json:"power_save"`
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var req powerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PowerSave == nil {
		writeError(w, http.StatusBadRequest, "missing power_save")
		return
	}

	s.deps.Power.Update(*req.PowerSave)
	writeJSON(w, http.StatusOK, map[string]bool{
		"power_save": *req.PowerSave,
	})
}

// requestLogger logs each request through the component logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}
