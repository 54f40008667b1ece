// Package batch converts every TEI file in a directory, in parallel, into
// JSON files alongside the inputs or in a separate output directory.
package batch

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/teijson/core/cas"
	"github.com/FocuswithJustin/teijson/core/corpus"
	"github.com/FocuswithJustin/teijson/core/errors"
	"github.com/FocuswithJustin/teijson/internal/ledger"
	"github.com/FocuswithJustin/teijson/internal/logging"
)

// EventKind names a progress event.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventConverted EventKind = "converted"
	EventSkipped   EventKind = "skipped"
	EventFailed    EventKind = "failed"
	EventFinished  EventKind = "finished"
)

// Event reports batch progress. Done counts inputs already handled,
// including the one the event is about.
type Event struct {
	RunID  string    `json:"run_id"`
	Kind   EventKind `json:"kind"`
	Input  string    `json:"input,omitempty"`
	Output string    `json:"output,omitempty"`
	Done   int       `json:"done"`
	Total  int       `json:"total"`
	Error  string    `json:"error,omitempty"`
}

// Options controls a batch run.
type Options struct {
	// OutputDir receives the JSON files. Empty writes next to each input.
	OutputDir string
	// Compress writes .json.xz instead of .json.
	Compress bool
	// Workers bounds parallel conversions. Zero uses GOMAXPROCS.
	Workers int
	// Ledger, when set, skips unchanged inputs and records conversions.
	Ledger *ledger.Ledger
	// Progress receives events one at a time.
	Progress func(Event)
}

// Result is the outcome for one input.
type Result struct {
	Input        string         `json:"input"`
	Output       string         `json:"output"`
	InputHash    cas.HashResult `json:"input_hash"`
	OutputSHA256 string         `json:"output_sha256,omitempty"`
	Stats        corpus.Stats   `json:"stats"`
	Skipped      bool           `json:"skipped,omitempty"`
	Error        string         `json:"error,omitempty"`
	Duration     time.Duration  `json:"duration"`

	err error
}

// Err returns the conversion error, if any.
func (r Result) Err() error {
	return r.err
}

func (r Result) fail(err error, start time.Time) Result {
	r.err = err
	r.Error = err.Error()
	r.Duration = time.Since(start)
	logging.ConversionFailed(r.Input, err)
	return r
}

// Report summarizes a batch run. Results follow input order.
type Report struct {
	RunID      string       `json:"run_id"`
	Dir        string       `json:"dir"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []Result     `json:"results"`
	Converted  int          `json:"converted"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Stats      corpus.Stats `json:"stats"`
}

// Discover lists the files directly inside dir whose names end in ".xml",
// sorted by name.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("directory", dir)
		}
		return nil, errors.NewIO("read", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".xml") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

type runner struct {
	opts   Options
	report *Report

	mu   sync.Mutex
	done int
}

func (r *runner) emit(ev Event) {
	if r.opts.Progress == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.RunID = r.report.RunID
	ev.Total = len(r.report.Results)
	if ev.Kind != EventStarted && ev.Kind != EventFinished {
		r.done++
	}
	ev.Done = r.done
	r.opts.Progress(ev)
}

// Run converts every input Discover finds in dir. A failing input is
// recorded in its Result and does not stop the run. Run returns an error
// only when dir cannot be listed or ctx is cancelled; the partial report is
// returned in the latter case.
func Run(ctx context.Context, dir string, opts Options) (*Report, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("directory", dir)
		}
		return nil, errors.NewIO("stat", dir, err)
	}
	if !info.IsDir() {
		return nil, &errors.ValidationError{Field: "dir", Value: dir, Message: "not a directory"}
	}

	inputs, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	return RunFiles(ctx, dir, inputs, opts)
}

// RunFiles converts the given inputs. dir is only recorded in the report.
func RunFiles(ctx context.Context, dir string, inputs []string, opts Options) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Dir:       dir,
		StartedAt: time.Now().UTC(),
		Results:   make([]Result, len(inputs)),
	}
	r := &runner{opts: opts, report: report}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	r.emit(Event{Kind: EventStarted})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, input := range inputs {
		report.Results[i] = Result{Input: input, Output: OutputPath(input, opts.OutputDir, opts.Compress)}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			res := r.convertOne(gctx, input)
			report.Results[i] = res

			ev := Event{Kind: EventConverted, Input: res.Input, Output: res.Output}
			switch {
			case res.err != nil:
				ev.Kind = EventFailed
				ev.Error = res.Error
			case res.Skipped:
				ev.Kind = EventSkipped
			}
			r.emit(ev)
			return nil
		})
	}
	waitErr := g.Wait()

	for _, res := range report.Results {
		switch {
		case res.err != nil:
			report.Failed++
		case res.Skipped:
			report.Skipped++
		case res.OutputSHA256 != "":
			report.Converted++
			report.Stats.Add(res.Stats)
		}
	}
	report.FinishedAt = time.Now().UTC()

	r.emit(Event{Kind: EventFinished})
	logging.BatchFinished(report.RunID, report.Converted, report.Skipped, report.Failed,
		report.FinishedAt.Sub(report.StartedAt), "dir", dir)

	if waitErr != nil {
		return report, waitErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func ledgerEntry(res Result, runID string) ledger.Entry {
	return ledger.Entry{
		InputPath:    ledgerKey(res.Input),
		InputBLAKE3:  res.InputHash.BLAKE3,
		InputSHA256:  res.InputHash.SHA256,
		OutputPath:   ledgerKey(res.Output),
		OutputSHA256: res.OutputSHA256,
		RunID:        runID,
		Documents:    res.Stats.Documents,
		Paragraphs:   res.Stats.Paragraphs(),
	}
}
