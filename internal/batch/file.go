package batch

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/teijson/core/cas"
	"github.com/FocuswithJustin/teijson/core/corpus"
	"github.com/FocuswithJustin/teijson/core/errors"
	"github.com/FocuswithJustin/teijson/core/tei"
	"github.com/FocuswithJustin/teijson/internal/logging"
	"github.com/FocuswithJustin/teijson/internal/validation"
)

// Injectable functions for testing.
var (
	xzNewWriter   = xz.NewWriter
	xzNewReader   = xz.NewReader
	gzipNewReader = gzip.NewReader
	osRename      = os.Rename
)

// Output indentation and compressed extension.
const (
	Indent    = "    "
	xzSuffix  = ".xz"
	jsonExt   = ".json"
	teiSuffix = ".tei.xml"
)

// OutputName maps an input file name to its JSON output name. A trailing
// ".xz", ".gz" or ".tgz" is dropped first, then ".tei.xml", ".xml" or ".tar".
func OutputName(input string, compress bool) string {
	base := filepath.Base(input)
	lower := strings.ToLower(base)
	for _, suffix := range []string{".xz", ".gz", ".tgz"} {
		if strings.HasSuffix(lower, suffix) {
			base = base[:len(base)-len(suffix)]
			lower = lower[:len(lower)-len(suffix)]
			break
		}
	}
	for _, suffix := range []string{teiSuffix, ".xml", ".tar"} {
		if strings.HasSuffix(lower, suffix) {
			base = base[:len(base)-len(suffix)]
			break
		}
	}

	name := base + jsonExt
	if compress {
		name += xzSuffix
	}
	return name
}

// OutputPath places OutputName(input) in outputDir, or next to input when
// outputDir is empty.
func OutputPath(input, outputDir string, compress bool) string {
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, OutputName(input, compress))
}

// readCloser pairs a decompressing reader with the file underneath it.
type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens a TEI input. Content compressed with xz or gzip is decompressed
// transparently; anything that does not look like XML is rejected.
func Open(path string) (io.ReadCloser, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, &errors.ValidationError{Field: "input", Value: path, Message: err.Error()}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}

	ft, r, err := validation.ValidateInput(f, path)
	if err != nil {
		f.Close()
		return nil, errors.NewUnsupported(string(ft)+" input", err.Error())
	}

	switch ft {
	case validation.FileTypeXZ:
		xr, err := xzNewReader(r)
		if err != nil {
			f.Close()
			return nil, errors.NewIO("decompress", path, err)
		}
		return &readCloser{Reader: xr, closers: []io.Closer{f}}, nil
	case validation.FileTypeGzip:
		gr, err := gzipNewReader(r)
		if err != nil {
			f.Close()
			return nil, errors.NewIO("decompress", path, err)
		}
		return &readCloser{Reader: gr, closers: []io.Closer{gr, f}}, nil
	}
	return &readCloser{Reader: r, closers: []io.Closer{f}}, nil
}

// ConvertFile converts the TEI file at input into a corpus.
func ConvertFile(input string, opts ...tei.Option) (*corpus.Corpus, error) {
	r, err := Open(input)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	opts = append([]tei.Option{tei.WithLogger(logging.GetLogger().With("input", input))}, opts...)
	c, err := tei.Convert(r, opts...)
	if err != nil {
		return nil, errors.WithPath(err, input)
	}
	return c, nil
}

// WriteOutput writes c to path, xz compressed when compress is set. The file
// appears atomically.
func WriteOutput(path string, c *corpus.Corpus, compress bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIO("create", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".teijson-*")
	if err != nil {
		return errors.NewIO("create", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeCorpus(tmp, c, compress); err != nil {
		tmp.Close()
		return errors.NewIO("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIO("write", path, err)
	}
	if err := osRename(tmpPath, path); err != nil {
		return errors.NewIO("rename", path, err)
	}
	return nil
}

func writeCorpus(w io.Writer, c *corpus.Corpus, compress bool) error {
	if !compress {
		return corpus.Write(w, c, Indent)
	}
	zw, err := xzNewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	if err := corpus.Write(zw, c, Indent); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// ReadOutput decodes a converted output file, compressed or not. It is the
// inverse of WriteOutput.
func ReadOutput(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, xzSuffix) {
		xr, err := xzNewReader(f)
		if err != nil {
			return nil, errors.NewIO("decompress", path, err)
		}
		r = xr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	return data, nil
}

// convertOne runs a single input through hashing, the ledger check,
// conversion and output.
func (r *runner) convertOne(ctx context.Context, input string) Result {
	start := time.Now()
	output := OutputPath(input, r.opts.OutputDir, r.opts.Compress)
	res := Result{Input: input, Output: output}

	hash, err := cas.SumFile(input)
	if err != nil {
		return res.fail(err, start)
	}
	res.InputHash = hash

	if r.opts.Ledger != nil {
		unchanged, err := r.opts.Ledger.Unchanged(ctx, ledgerKey(input), hash.BLAKE3, ledgerKey(output))
		if err != nil {
			return res.fail(err, start)
		}
		if unchanged && fileExists(output) {
			res.Skipped = true
			res.Duration = time.Since(start)
			logging.ConversionSkipped(input, "unchanged", "run_id", r.report.RunID)
			return res
		}
	}

	logging.ConversionStarted(input, "run_id", r.report.RunID)
	c, err := ConvertFile(input)
	if err != nil {
		return res.fail(err, start)
	}
	res.Stats = c.Stats()

	if err := WriteOutput(output, c, r.opts.Compress); err != nil {
		return res.fail(err, start)
	}
	outHash, err := cas.SumFile(output)
	if err != nil {
		return res.fail(err, start)
	}
	res.OutputSHA256 = outHash.SHA256

	if r.opts.Ledger != nil {
		err := r.opts.Ledger.Record(ctx, ledgerEntry(res, r.report.RunID))
		if err != nil {
			return res.fail(err, start)
		}
	}

	res.Duration = time.Since(start)
	logging.ConversionFinished(input, output, res.Stats, res.Duration, "run_id", r.report.RunID)
	return res
}

// ledgerKey makes ledger entries independent of the working directory.
func ledgerKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
