package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/teijson/core/errors"
	"github.com/FocuswithJustin/teijson/internal/batch"
)

func postJob(t *testing.T, s *Server, req any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleJobs(w, r)
	return w
}

func waitForJob(t *testing.T, s *Server, id string) Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := s.jobs.Get(id)
		if !ok {
			t.Fatalf("job %s disappeared", id)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

func writePapers(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(samplePaper), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestJobStoreLifecycle(t *testing.T) {
	store := NewJobStore()

	job := store.Create(JobRequest{InputDir: "papers"}, "/data/papers", "")
	if job.Status != JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if err := ValidateJobID(job.ID); err != nil {
		t.Errorf("job id %q is not canonical: %v", job.ID, err)
	}

	store.SetProgress(job.ID, 40)
	got, _ := store.Get(job.ID)
	if got.Status != JobStatusRunning || got.Progress != 40 {
		t.Errorf("after SetProgress: %s %d", got.Status, got.Progress)
	}

	report := &batch.Report{RunID: "run"}
	if !store.Finish(job.ID, JobStatusCompleted, report, "") {
		t.Fatal("Finish() = false for a running job")
	}
	got, _ = store.Get(job.ID)
	if got.Status != JobStatusCompleted || got.Progress != 100 || got.Report != report || got.CompletedAt == "" {
		t.Errorf("after Finish: %+v", got)
	}

	store.SetProgress(job.ID, 10)
	if got, _ := store.Get(job.ID); got.Progress != 100 {
		t.Errorf("progress changed after completion: %d", got.Progress)
	}
	if store.Finish(job.ID, JobStatusFailed, nil, "late") {
		t.Error("Finish() overwrote a terminal status")
	}
}

func TestJobStoreCancel(t *testing.T) {
	store := NewJobStore()
	job := store.Create(JobRequest{InputDir: "papers"}, "", "")

	if err := store.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if job.ctx.Err() == nil {
		t.Error("job context not cancelled")
	}
	got, _ := store.Get(job.ID)
	if got.Status != JobStatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}

	report := &batch.Report{RunID: "run"}
	if store.Finish(job.ID, JobStatusCancelled, report, "job cancelled") {
		t.Error("Finish() changed the status of a cancelled job")
	}
	if got, _ := store.Get(job.ID); got.Report != report {
		t.Error("partial report not attached to cancelled job")
	}

	if err := store.Cancel(job.ID); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("second Cancel() error = %v, want invalid input", err)
	}
	if err := store.Cancel("missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Cancel(missing) error = %v, want not found", err)
	}
}

func TestJobStoreListOrderAndCounts(t *testing.T) {
	store := NewJobStore()
	var ids []string
	for _, dir := range []string{"a", "b", "c"} {
		ids = append(ids, store.Create(JobRequest{InputDir: dir}, "", "").ID)
	}
	store.Finish(ids[1], JobStatusFailed, nil, "boom")

	jobs := store.List()
	if len(jobs) != 3 {
		t.Fatalf("List() returned %d jobs", len(jobs))
	}
	for i, job := range jobs {
		if job.ID != ids[i] {
			t.Errorf("List()[%d] = %s, want %s", i, job.ID, ids[i])
		}
	}

	total, active := store.Counts()
	if total != 3 || active != 2 {
		t.Errorf("Counts() = %d, %d; want 3, 2", total, active)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct{ done, total, want int }{
		{0, 0, 100},
		{0, 4, 0},
		{1, 4, 25},
		{4, 4, 100},
	}
	for _, tt := range tests {
		if got := percent(tt.done, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestCreateJobConvertsDirectory(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.LedgerPath = filepath.Join(t.TempDir(), "ledger.db")
	})
	writePapers(t, filepath.Join(s.cfg.DataDir, "papers"), "a.xml", "b.tei.xml")

	w := postJob(t, s, JobRequest{InputDir: "papers", OutputDir: "out", Workers: 2})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var created Job
	decodeData(t, decodeResponse(t, w.Body), &created)

	job := waitForJob(t, s, created.ID)
	if job.Status != JobStatusCompleted {
		t.Fatalf("status = %s (%s), want completed", job.Status, job.Error)
	}
	if job.Report == nil || job.Report.Converted != 2 || job.Report.Failed != 0 {
		t.Fatalf("report = %+v", job.Report)
	}
	for _, name := range []string{"a.json", "b.json"} {
		if _, err := os.Stat(filepath.Join(s.cfg.DataDir, "out", name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}

	// The ledger makes a second run over the same inputs a no-op.
	w = postJob(t, s, JobRequest{InputDir: "papers", OutputDir: "out"})
	decodeData(t, decodeResponse(t, w.Body), &created)
	job = waitForJob(t, s, created.ID)
	if job.Report == nil || job.Report.Skipped != 2 {
		t.Errorf("second run report = %+v, want 2 skipped", job.Report)
	}
}

func TestCreateJobValidation(t *testing.T) {
	s := newTestServer(t)
	writePapers(t, filepath.Join(s.cfg.DataDir, "papers"), "a.xml")
	if err := os.WriteFile(filepath.Join(s.cfg.DataDir, "file.xml"), []byte(samplePaper), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"invalid json", "not an object", http.StatusBadRequest, "INVALID_JSON"},
		{"missing input", JobRequest{}, http.StatusBadRequest, "MISSING_PARAMS"},
		{"negative workers", JobRequest{InputDir: "papers", Workers: -1}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"input traversal", JobRequest{InputDir: "../etc"}, http.StatusBadRequest, "INVALID_PATH"},
		{"absolute input", JobRequest{InputDir: "/etc"}, http.StatusBadRequest, "INVALID_PATH"},
		{"output traversal", JobRequest{InputDir: "papers", OutputDir: "../../tmp"}, http.StatusBadRequest, "INVALID_PATH"},
		{"missing dir", JobRequest{InputDir: "nope"}, http.StatusNotFound, "NOT_FOUND"},
		{"file not dir", JobRequest{InputDir: "file.xml"}, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJob(t, s, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			resp := decodeResponse(t, w.Body)
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want %s", resp.Error, tt.code)
			}
		})
	}

	if total, _ := s.jobs.Counts(); total != 0 {
		t.Errorf("%d jobs created by invalid requests", total)
	}
}

func TestListJobs(t *testing.T) {
	s := newTestServer(t)
	s.jobs.Create(JobRequest{InputDir: "a"}, "", "")
	s.jobs.Create(JobRequest{InputDir: "b"}, "", "")

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	w := httptest.NewRecorder()
	s.handleJobs(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeResponse(t, w.Body)
	if resp.Meta == nil || resp.Meta.Total != 2 {
		t.Errorf("meta = %+v, want total 2", resp.Meta)
	}
	var jobs []Job
	decodeData(t, resp, &jobs)
	if len(jobs) != 2 || jobs[0].Request.InputDir != "a" {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestHandleJobsMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/jobs", nil)
	w := httptest.NewRecorder()
	s.handleJobs(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHandleJobByID(t *testing.T) {
	s := newTestServer(t)
	pending := s.jobs.Create(JobRequest{InputDir: "papers"}, "", "")
	done := s.jobs.Create(JobRequest{InputDir: "papers"}, "", "")
	s.jobs.Finish(done.ID, JobStatusCompleted, nil, "")

	tests := []struct {
		name   string
		method string
		id     string
		status int
		want   JobStatus
	}{
		{"get", http.MethodGet, pending.ID, http.StatusOK, JobStatusPending},
		{"missing id", http.MethodGet, "", http.StatusBadRequest, ""},
		{"invalid id", http.MethodGet, "../../etc", http.StatusBadRequest, ""},
		{"non canonical id", http.MethodGet, strings.ToUpper(pending.ID), http.StatusBadRequest, ""},
		{"unknown id", http.MethodGet, "00000000-0000-4000-8000-000000000000", http.StatusNotFound, ""},
		{"cancel", http.MethodDelete, pending.ID, http.StatusOK, JobStatusCancelled},
		{"cancel completed", http.MethodDelete, done.ID, http.StatusBadRequest, ""},
		{"cancel unknown", http.MethodDelete, "00000000-0000-4000-8000-000000000000", http.StatusNotFound, ""},
		{"wrong method", http.MethodPost, pending.ID, http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/jobs/"+tt.id, nil)
			w := httptest.NewRecorder()
			s.handleJobByID(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.want == "" {
				return
			}
			var job Job
			decodeData(t, decodeResponse(t, w.Body), &job)
			if job.Status != tt.want {
				t.Errorf("status = %s, want %s", job.Status, tt.want)
			}
		})
	}
}
