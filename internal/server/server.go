// Package server exposes optimization jobs over HTTP: job submission,
// status, mark snapshots, SSE progress and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"image/png"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/markedpoint/internal/config"
	"github.com/cwbudde/markedpoint/internal/feedback"
	"github.com/cwbudde/markedpoint/internal/store"
)

// maxConfigBytes bounds the size of a submitted run configuration.
const maxConfigBytes = 1 << 20

// Options configures the job environment of a Server.
type Options struct {
	Store    store.Store
	TraceDir string
	// Registry receives the optimizer metrics. A private registry is
	// created when nil.
	Registry *prometheus.Registry
}

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	addr       string
	server     *http.Server
	env        runEnv
	registry   *prometheus.Registry

	// baseCtx is cancelled on shutdown; workers tracks running jobs.
	baseCtx    context.Context
	cancelJobs context.CancelFunc
	workers    sync.WaitGroup
}

// NewServer creates a new HTTP server
func NewServer(addr string, opts Options) *Server {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		addr:       addr,
		env: runEnv{
			store:    opts.Store,
			traceDir: opts.TraceDir,
			metrics:  feedback.NewMetrics(reg),
		},
		registry:   reg,
		baseCtx:    ctx,
		cancelJobs: cancel,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, cancels running jobs and waits for
// their workers to save their final state.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.cancelJobs()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r, "")
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "job ID required")
		return
	}
	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodDelete:
		s.handleCancelJob(w, jobID)
	case (sub == "" || sub == "status") && r.Method == http.MethodGet:
		s.handleGetJobStatus(w, jobID)
	case sub == "marks" && r.Method == http.MethodGet:
		s.handleGetMarks(w, jobID)
	case sub == "overlay.png" && r.Method == http.MethodGet:
		s.handleGetOverlay(w, jobID)
	case sub == "stream" && r.Method == http.MethodGet:
		s.handleJobStream(w, r, jobID)
	case sub == "resume" && r.Method == http.MethodPost:
		s.handleCreateJob(w, r, jobID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleCreateJob handles POST /api/v1/jobs and POST /api/v1/jobs/:id/resume.
// The body is a run configuration in YAML or JSON; an empty body runs
// the defaults.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request, resumeID string) {
	cfg, err := config.Parse(http.MaxBytesReader(w, r.Body, maxConfigBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid configuration: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if s.env.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no checkpoint store configured")
		return
	}

	job, err := s.jobManager.CreateJob(cfg, resumeID)
	if err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer s.jobManager.broadcaster.CleanupJob(job.ID)
		if err := runJob(s.baseCtx, s.jobManager, s.env, job.ID); err != nil {
			slog.Debug("Job worker returned", "job_id", job.ID, "error", err)
		}
	}()

	writeJSON(w, http.StatusCreated, job)
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	elapsed := job.Elapsed()
	var rate, acceptance float64
	if elapsed.Seconds() > 0 {
		rate = float64(job.Iterations) / elapsed.Seconds()
	}
	if job.Iterations > 0 {
		acceptance = float64(job.Accepted) / float64(job.Iterations)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":                  job.ID,
		"state":               job.State,
		"config":              job.Config,
		"resume":              job.Resume,
		"iterations":          job.Iterations,
		"accepted":            job.Accepted,
		"acceptanceRate":      acceptance,
		"energy":              job.Energy,
		"bestEnergy":          job.BestEnergy,
		"initialEnergy":       job.InitialEnergy,
		"temperature":         job.Temperature,
		"marks":               job.Size,
		"stopReason":          job.StopReason,
		"elapsed":             elapsed.Seconds(),
		"iterationsPerSecond": rate,
		"startTime":           job.StartTime,
		"endTime":             job.EndTime,
		"error":               job.Error,
	})
}

// handleGetMarks handles GET /api/v1/jobs/:id/marks
func (s *Server) handleGetMarks(w http.ResponseWriter, jobID string) {
	records, exists := s.jobManager.Marks(jobID)
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if records == nil {
		writeError(w, http.StatusNotFound, "no marks yet")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetOverlay handles GET /api/v1/jobs/:id/overlay.png: the first
// input image with the latest marks outlined.
func (s *Server) handleGetOverlay(w http.ResponseWriter, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if len(job.Config.Image.Paths) == 0 {
		writeError(w, http.StatusNotFound, "job has no input image")
		return
	}
	records, _ := s.jobManager.Marks(jobID)

	img, err := loadReferenceImage(job.Config.Image.Paths[0])
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load reference: %v", err)
		return
	}
	drawOutlines(img, records)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}

// handleCancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleCancelJob(w http.ResponseWriter, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !s.jobManager.CancelJob(jobID) {
		writeError(w, http.StatusConflict, "job already finished")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
