package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/teijson/core/errors"
	"github.com/FocuswithJustin/teijson/internal/batch"
	"github.com/FocuswithJustin/teijson/internal/logging"
)

// maxJobRequest caps the JSON body of POST /jobs.
const maxJobRequest = 1 << 20

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job can no longer change status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobRequest is the body of POST /jobs. Directories are relative to the
// server's data directory.
type JobRequest struct {
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir,omitempty"`
	Compress  bool   `json:"compress,omitempty"`
	Workers   int    `json:"workers,omitempty"`
}

// Job represents an asynchronous batch conversion.
type Job struct {
	ID          string        `json:"id"`
	Status      JobStatus     `json:"status"`
	Progress    int           `json:"progress"` // 0-100
	Request     JobRequest    `json:"request"`
	Report      *batch.Report `json:"report,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
	CompletedAt string        `json:"completed_at,omitempty"`

	seq       int
	inputDir  string
	outputDir string
	ctx       context.Context
	cancel    context.CancelFunc
}

// JobStore manages jobs in memory. Accessors return copies, so callers never
// share a Job with the goroutine running it.
type JobStore struct {
	jobs map[string]*Job
	seq  int
	mu   sync.RWMutex
}

// NewJobStore creates a new job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Create registers a pending job for the resolved input and output
// directories.
func (s *JobStore) Create(req JobRequest, inputDir, outputDir string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	ts := now()
	s.seq++

	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Request:   req,
		CreatedAt: ts,
		UpdatedAt: ts,
		seq:       s.seq,
		inputDir:  inputDir,
		outputDir: outputDir,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.jobs[job.ID] = job
	return *job
}

// Get retrieves a job by ID.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

// List returns all jobs in creation order.
func (s *JobStore) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].seq < jobs[j].seq })
	return jobs
}

// Counts returns the number of jobs and how many are not yet terminal.
func (s *JobStore) Counts() (total, active int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if !job.Status.Terminal() {
			active++
		}
	}
	return len(s.jobs), active
}

// SetProgress records progress on a live job and marks it running.
func (s *JobStore) SetProgress(id string, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists || job.Status.Terminal() {
		return
	}
	job.Status = JobStatusRunning
	job.Progress = progress
	job.UpdatedAt = now()
}

// Finish moves a job to a terminal status. A job that is already terminal
// keeps its status, so a cancellation is never overwritten; the report is
// still attached. Finish reports whether the status changed.
func (s *JobStore) Finish(id string, status JobStatus, report *batch.Report, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return false
	}
	if report != nil && job.Report == nil {
		job.Report = report
	}
	if job.Status.Terminal() {
		return false
	}

	ts := now()
	job.Status = status
	if status == JobStatusCompleted {
		job.Progress = 100
	}
	job.Error = errMsg
	job.UpdatedAt = ts
	job.CompletedAt = ts
	job.cancel()
	return true
}

// Cancel cancels a pending or running job.
func (s *JobStore) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return errors.NewNotFound("job", id)
	}
	if job.Status.Terminal() {
		return &errors.ValidationError{
			Field:   "status",
			Value:   string(job.Status),
			Message: "job cannot be cancelled (status: " + string(job.Status) + ")",
		}
	}

	job.cancel()
	ts := now()
	job.Status = JobStatusCancelled
	job.Error = "job cancelled by user"
	job.UpdatedAt = ts
	job.CompletedAt = ts
	return nil
}

// CancelAll cancels the context of every job.
func (s *JobStore) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		job.cancel()
	}
}

// percent returns done as a share of total, 100 for an empty run.
func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}

// runJob executes a batch job in a goroutine and broadcasts its progress.
func (s *Server) runJob(job Job) {
	go func() {
		s.jobs.SetProgress(job.ID, 0)
		s.hub.Broadcast(ProgressMessage{
			Type:    "progress",
			JobID:   job.ID,
			Stage:   "queued",
			Message: "Batch started",
		})

		report, err := batch.Run(job.ctx, job.inputDir, batch.Options{
			OutputDir: job.outputDir,
			Compress:  job.Request.Compress,
			Workers:   job.Request.Workers,
			Ledger:    s.ledger,
			Progress: func(ev batch.Event) {
				pct := percent(ev.Done, ev.Total)
				s.jobs.SetProgress(job.ID, pct)
				s.hub.Broadcast(ProgressMessage{
					Type:     "progress",
					JobID:    job.ID,
					Stage:    string(ev.Kind),
					Input:    ev.Input,
					Progress: pct,
					Message:  ev.Error,
				})
			},
		})

		switch {
		case errors.Is(err, context.Canceled):
			s.jobs.Finish(job.ID, JobStatusCancelled, report, "job cancelled")
			s.hub.Broadcast(ProgressMessage{Type: "error", JobID: job.ID, Stage: "cancelled", Message: "Job cancelled"})
		case err != nil:
			logging.Error("job failed", "job_id", job.ID, "error", err)
			s.jobs.Finish(job.ID, JobStatusFailed, report, err.Error())
			s.hub.Broadcast(ProgressMessage{Type: "error", JobID: job.ID, Message: err.Error()})
		default:
			s.jobs.Finish(job.ID, JobStatusCompleted, report, "")
			s.hub.Broadcast(ProgressMessage{
				Type:     "complete",
				JobID:    job.ID,
				Progress: 100,
				Message:  "Batch finished",
				Data: map[string]any{
					"run_id":    report.RunID,
					"converted": report.Converted,
					"skipped":   report.Skipped,
					"failed":    report.Failed,
				},
			})
		}
	}()
}

// handleJobs handles GET /jobs (list) and POST /jobs (create).
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs := s.jobs.List()
		respondList(w, jobs, len(jobs))
	case http.MethodPost:
		s.createJobHandler(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and POST are allowed")
	}
}

func (s *Server) createJobHandler(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJobRequest)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}
	if req.InputDir == "" {
		respondError(w, http.StatusBadRequest, "MISSING_PARAMS", "input_dir is required")
		return
	}
	if req.Workers < 0 {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "workers must not be negative")
		return
	}

	inputDir, err := ResolveDir(s.cfg.DataDir, req.InputDir, "input_dir")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PATH", err.Error())
		return
	}
	info, err := os.Stat(inputDir)
	if err != nil || !info.IsDir() {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "input_dir is not a directory: "+req.InputDir)
		return
	}

	var outputDir string
	if req.OutputDir != "" {
		if outputDir, err = ResolveDir(s.cfg.DataDir, req.OutputDir, "output_dir"); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PATH", err.Error())
			return
		}
	}
	if req.Workers == 0 {
		req.Workers = s.cfg.Workers
	}

	job := s.jobs.Create(req, inputDir, outputDir)
	logging.InfoContext(r.Context(), "job created", "job_id", job.ID, "input_dir", req.InputDir)
	s.runJob(job)

	respond(w, http.StatusCreated, job)
}

// handleJobByID handles GET /jobs/{id} (status) and DELETE /jobs/{id} (cancel).
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "MISSING_ID", "Job ID is required")
		return
	}
	if err := ValidateJobID(id); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, exists := s.jobs.Get(id)
		if !exists {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}
		respond(w, http.StatusOK, job)
	case http.MethodDelete:
		if err := s.jobs.Cancel(id); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
				return
			}
			respondError(w, http.StatusBadRequest, "CANCEL_FAILED", err.Error())
			return
		}
		job, _ := s.jobs.Get(id)
		respond(w, http.StatusOK, job)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and DELETE are allowed")
	}
}
