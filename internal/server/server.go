package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/evostrat/internal/fit"
	"github.com/cwbudde/evostrat/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager      *JobManager
	checkpointStore store.Store
	addr            string
	dataDir         string
	server          *http.Server

	// defaultCheckpointInterval, in seconds, applies to jobs whose config
	// does not set one. Zero disables periodic checkpoints.
	defaultCheckpointInterval int
}

// NewServer creates a new HTTP server. When dataDir is non-empty,
// checkpoints and traces are persisted under it.
func NewServer(addr, dataDir string) *Server {
	s := &Server{
		jobManager: NewJobManager(),
		addr:       addr,
		dataDir:    dataDir,
	}
	if dataDir != "" {
		cs, err := store.NewFSStore(dataDir)
		if err != nil {
			slog.Warn("Checkpoint store disabled", "data_dir", dataDir, "error", err)
		} else {
			s.checkpointStore = cs
		}
	}
	return s
}

// SetDefaultCheckpointInterval sets the checkpoint interval, in seconds,
// applied to jobs that do not request one. Must be called before Start.
func (s *Server) SetDefaultCheckpointInterval(seconds int) {
	s.defaultCheckpointInterval = seconds
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Register UI routes
	mux.HandleFunc("/", s.handleIndex)

	// Register API routes
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	// Wrap with middleware
	handler := s.loggingMiddleware(s.corsMiddleware(mux))

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: handler,
	}

	slog.Info("Starting HTTP server", "addr", s.addr, "data_dir", s.dataDir)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	// Parse job ID from path
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	// Route based on subpath
	if len(parts) == 1 || parts[1] == "status" {
		s.handleGetJobStatus(w, r, jobID)
	} else if parts[1] == "stop" {
		s.handleStopJob(w, r, jobID)
	} else if parts[1] == "resume" {
		s.handleResumeJob(w, r, jobID)
	} else if parts[1] == "trace" {
		s.handleGetJobTrace(w, r, jobID)
	} else if parts[1] == "stream" {
		s.handleJobStream(w, r, jobID)
	} else {
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	// Apply defaults and reject invalid combinations before the worker
	// starts, so a bad request never produces a failed job.
	runCfg := runConfigFromJob(config)
	if err := runCfg.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid config: %v", err), http.StatusBadRequest)
		return
	}
	if _, err := fit.NewRunner(runCfg); err != nil {
		http.Error(w, fmt.Sprintf("Invalid config: %v", err), http.StatusBadRequest)
		return
	}
	config.Function = runCfg.Function
	config.Dim = runCfg.Dim
	config.Start = runCfg.Start
	config.InitialRadius = runCfg.InitialRadius
	config.GrowthFactor = runCfg.GrowthFactor
	config.ShrinkFactor = runCfg.ShrinkFactor
	config.Epsilon = runCfg.Epsilon
	config.MaxIterations = runCfg.MaxIterations
	config.StallPatience = runCfg.StallPatience
	config.StallThreshold = runCfg.StallThreshold
	if config.CheckpointInterval == 0 {
		config.CheckpointInterval = s.defaultCheckpointInterval
	}

	// Create job
	job := s.jobManager.CreateJob(config)

	// Start worker in background
	go runJob(context.Background(), s.jobManager, s.checkpointStore, s.dataDir, job.ID, nil)

	// Return job
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobManager.ListJobs()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	// Compute elapsed time and iterations per second
	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	ips := float64(0)
	if elapsed.Seconds() > 0 {
		ips = float64(job.Iterations) / elapsed.Seconds()
	}

	// Create response
	response := map[string]interface{}{
		"id":             job.ID,
		"state":          job.State,
		"config":         job.Config,
		"bestCost":       job.BestCost,
		"bestParams":     job.BestParams,
		"initialCost":    job.InitialCost,
		"iterations":     job.Iterations,
		"covarianceNorm": job.CovarianceNorm,
		"converged":      job.Converged,
		"elapsed":        elapsed.Seconds(),
		"iterPerSec":     ips,
		"startTime":      job.StartTime,
		"endTime":        job.EndTime,
		"error":          job.Error,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleStopJob handles POST /api/v1/jobs/:id/stop
func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.jobManager.StopJob(jobID); err != nil {
		if _, exists := s.jobManager.GetJob(jobID); !exists {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("Stop requested", "job_id", jobID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": jobID, "state": "stopping"})
}

// handleResumeJob handles POST /api/v1/jobs/:id/resume. It restarts a
// finished job from its last checkpoint under the same ID, so the job's
// checkpoint directory and trace carry on.
func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.checkpointStore == nil {
		http.Error(w, "Checkpointing not enabled", http.StatusNotFound)
		return
	}

	checkpoint, err := s.checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "No checkpoint for job", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to load checkpoint: %v", err), http.StatusInternalServerError)
		return
	}

	config := checkpoint.Config
	if config.CheckpointInterval == 0 {
		config.CheckpointInterval = s.defaultCheckpointInterval
	}

	job, err := s.jobManager.CreateJobWithID(jobID, config)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	go runJob(context.Background(), s.jobManager, s.checkpointStore, s.dataDir, job.ID, checkpoint)

	slog.Info("Resume requested", "job_id", jobID, "from_iteration", checkpoint.Iteration)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

// handleGetJobTrace handles GET /api/v1/jobs/:id/trace
func (s *Server) handleGetJobTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if s.dataDir == "" {
		http.Error(w, "Tracing not enabled", http.StatusNotFound)
		return
	}

	reader, err := store.NewTraceReader(s.dataDir, jobID)
	if err != nil {
		http.Error(w, "No trace recorded", http.StatusNotFound)
		return
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read trace: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
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
