/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the transform job API over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/friendsincode/skald/internal/config"
	"github.com/friendsincode/skald/internal/events"
	"github.com/friendsincode/skald/internal/logbuffer"
	"github.com/friendsincode/skald/internal/manifest"
	"github.com/friendsincode/skald/internal/store"
	"github.com/friendsincode/skald/internal/telemetry"
	"github.com/friendsincode/skald/internal/worker"
)

// maxManifestBytes bounds a submitted job manifest.
const maxManifestBytes = 1 << 20

// Server bundles the HTTP API and its dependencies.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server

	jobs   *store.Store
	bus    events.Publisher
	pool   *worker.Pool
	logBuf *logbuffer.Buffer
}

// New constructs the server and wires routes. logBuf may be nil, which
// disables the log query endpoints.
func New(cfg *config.Config, jobs *store.Store, bus events.Publisher, pool *worker.Pool, logBuf *logbuffer.Buffer, logger zerolog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
		router: router,
		jobs:   jobs,
		bus:    bus,
		pool:   pool,
		logBuf: logBuf,
	}
	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           otelhttp.NewHandler(router, "skald-api"),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Router exposes the handler, for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Method(http.MethodGet, "/metrics", telemetry.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Delete("/jobs/{id}", s.handleCancelJob)
		if s.logBuf != nil {
			r.Get("/logs", s.handleQueryLogs)
			r.Get("/logs/stats", s.handleLogStats)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "instance": s.cfg.InstanceID})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.jobs.ListJobs(r.Context(), "", 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleCreateJob accepts a YAML manifest, persists a queued job and wakes
// the worker pool.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxManifestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}
	if len(body) > maxManifestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "manifest too large")
		return
	}
	m, err := manifest.ParseBytes(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.jobs.CreateJob(r.Context(), string(body), m.Input, m.Output)
	if err != nil {
		s.logger.Error().Err(err).Msg("create job failed")
		writeError(w, http.StatusInternalServerError, "create job")
		return
	}
	s.bus.Publish(events.EventJobCreated, events.Payload{"job_id": job.ID, "input": job.InputPath})
	if s.pool != nil {
		s.pool.Notify()
	}
	s.logger.Info().Str("job_id", job.ID).Str("input", job.InputPath).Msg("job enqueued")
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	state := store.JobState(r.URL.Query().Get("state"))
	jobs, err := s.jobs.ListJobs(r.Context(), state, 100)
	if err != nil {
		s.logger.Error().Err(err).Msg("list jobs failed")
		writeError(w, http.StatusInternalServerError, "list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob cancels a queued job directly, or signals the worker pool
// when the job is already running on this instance.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load job")
		return
	}

	switch job.State {
	case store.JobQueued:
		ok, err := s.jobs.CancelQueued(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "cancel job")
			return
		}
		if !ok {
			// Lost the race with a worker claiming it.
			writeError(w, http.StatusConflict, "job already started")
			return
		}
		s.bus.Publish(events.EventJobCancelled, events.Payload{"job_id": id})
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	case store.JobRunning:
		if s.pool == nil || s.pool.Cancel(id) != nil {
			writeError(w, http.StatusConflict, "job running on another instance")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
	default:
		writeError(w, http.StatusConflict, fmt.Sprintf("job already %s", job.State))
	}
}

// handleQueryLogs serves recent log entries from the in-memory ring buffer.
func (s *Server) handleQueryLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 200
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	var since time.Time
	if raw := q.Get("since"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			since = parsed
		}
	}
	entries := s.logBuf.Query(logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		JobID:      q.Get("job_id"),
		Search:     q.Get("search"),
		Since:      since,
		Limit:      limit,
		Descending: true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.logBuf.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
