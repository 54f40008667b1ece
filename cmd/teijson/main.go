// Command teijson converts TEI XML documents into CORD-19 style JSON.
// It converts single files or whole directories, inspects TEI input, keeps a
// conversion ledger, and serves the converter over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/FocuswithJustin/teijson/core/corpus"
	"github.com/FocuswithJustin/teijson/core/errors"
	"github.com/FocuswithJustin/teijson/core/sqlite"
	"github.com/FocuswithJustin/teijson/core/tei"
	"github.com/FocuswithJustin/teijson/core/xml"
	"github.com/FocuswithJustin/teijson/internal/api"
	"github.com/FocuswithJustin/teijson/internal/archive"
	"github.com/FocuswithJustin/teijson/internal/batch"
	"github.com/FocuswithJustin/teijson/internal/ledger"
	"github.com/FocuswithJustin/teijson/internal/logging"
)

const version = "0.1.0"

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Globals are flags shared by every command.
type Globals struct {
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"info" env:"TEIJSON_LOG_LEVEL"`
	LogFormat string `name:"log-format" help:"Log format (json, text)" default:"text" env:"TEIJSON_LOG_FORMAT"`
}

// initLogging installs the logger selected by the global flags.
func (g Globals) initLogging() error {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

// CLI defines the command-line interface for teijson.
var CLI struct {
	Globals

	Convert ConvertCmd  `cmd:"" help:"Convert one TEI file to JSON"`
	Batch   BatchCmd    `cmd:"" help:"Convert every .xml file in a directory"`
	Inspect InspectCmd  `cmd:"" help:"Check a file and report what conversion would produce"`
	Serve   ServeCmd    `cmd:"" help:"Start the REST API server"`
	Ledger  LedgerGroup `cmd:"" help:"Conversion ledger operations"`
	Version VersionCmd  `cmd:"" help:"Print version information"`
}

// ConvertCmd converts a single file.
type ConvertCmd struct {
	Path   string `arg:"" help:"TEI file (.xml, optionally .xz or .gz compressed) or tar archive of TEI files" type:"existingfile"`
	Output string `short:"o" help:"Output directory (default: next to the input)" type:"path"`
	XZ     bool   `name:"xz" help:"Write xz-compressed .json.xz output"`
	Select string `help:"XPath expression selecting the TEI elements to convert"`
	Stdout bool   `help:"Write JSON to stdout instead of a file"`
}

func (c *ConvertCmd) Run() error {
	start := time.Now()
	logging.ConversionStarted(c.Path)

	var (
		result *corpus.Corpus
		err    error
	)
	switch {
	case archive.IsArchive(c.Path):
		if c.Select != "" {
			return errors.NewValidation("select", "not supported for archives")
		}
		result, err = archive.Convert(c.Path)
	case c.Select != "":
		result, err = convertSelection(c.Path, c.Select)
	default:
		result, err = batch.ConvertFile(c.Path)
	}
	if err != nil {
		logging.ConversionFailed(c.Path, err)
		return err
	}

	if c.Stdout {
		return corpus.Write(stdout, result, batch.Indent)
	}

	out := batch.OutputPath(c.Path, c.Output, c.XZ)
	if err := batch.WriteOutput(out, result, c.XZ); err != nil {
		logging.ConversionFailed(c.Path, err)
		return err
	}

	stats := result.Stats()
	logging.ConversionFinished(c.Path, out, stats, time.Since(start))
	fmt.Fprintf(stdout, "%s -> %s (%d documents, %d paragraphs)\n",
		c.Path, out, stats.Documents, stats.Paragraphs())
	return nil
}

// convertSelection parses path into a DOM and converts the elements expr
// selects.
func convertSelection(path, expr string) (*corpus.Corpus, error) {
	f, err := batch.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := xml.ParseReader(f)
	if err != nil {
		return nil, errors.WithPath(err, path)
	}
	c, err := xml.ConvertSelection(doc, expr, tei.WithLogger(logging.GetLogger().With("input", path)))
	if err != nil {
		return nil, errors.WithPath(err, path)
	}
	return c, nil
}

// BatchCmd converts a directory.
type BatchCmd struct {
	Dir    string `arg:"" help:"Directory of TEI files" type:"existingdir"`
	Output string `short:"o" help:"Output directory (default: next to each input)" type:"path"`
	XZ     bool   `name:"xz" help:"Write xz-compressed .json.xz output"`
	Jobs   int    `short:"j" help:"Parallel conversions (0 = number of CPUs)" default:"0"`
	Ledger string `help:"Conversion ledger; unchanged inputs are skipped" type:"path" env:"TEIJSON_LEDGER"`
	JSON   bool   `name:"json" help:"Print the batch report as JSON"`
}

func (c *BatchCmd) Run() error {
	if c.Jobs < 0 {
		return errors.NewValidation("jobs", "must not be negative")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := batch.Options{
		OutputDir: c.Output,
		Compress:  c.XZ,
		Workers:   c.Jobs,
		Progress: func(ev batch.Event) {
			if ev.Kind == batch.EventFailed {
				fmt.Fprintf(stderr, "[%d/%d] %s: %s\n", ev.Done, ev.Total, ev.Input, ev.Error)
			}
		},
	}
	if c.Ledger != "" {
		l, err := ledger.Open(c.Ledger)
		if err != nil {
			return err
		}
		defer l.Close()
		opts.Ledger = l
	}

	report, err := batch.Run(ctx, c.Dir, opts)
	if report != nil {
		if c.JSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
		} else {
			fmt.Fprintf(stdout, "%d converted, %d skipped, %d failed (%d documents, %d paragraphs)\n",
				report.Converted, report.Skipped, report.Failed,
				report.Stats.Documents, report.Stats.Paragraphs())
		}
	}
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", report.Failed, len(report.Results))
	}
	return nil
}

// InspectCmd reports on a file without writing output.
type InspectCmd struct {
	Path string `arg:"" help:"TEI file to inspect" type:"existingfile"`
	JSON bool   `name:"json" help:"Print the inspection as JSON"`
}

// Inspection is the result of InspectCmd.
type Inspection struct {
	Path        string            `json:"path"`
	Root        string            `json:"root"`
	Elements    map[string]int    `json:"elements"`
	Stats       corpus.Stats      `json:"stats"`
	Documents   []DocumentSummary `json:"documents"`
	Diagnostics []tei.Diagnostic  `json:"diagnostics,omitempty"`
}

// DocumentSummary describes one converted document.
type DocumentSummary struct {
	ID    string       `json:"id,omitempty"`
	Title string       `json:"title,omitempty"`
	Lang  string       `json:"lang"`
	Stats corpus.Stats `json:"stats"`
}

// inspectedElements are counted by local name.
var inspectedElements = []string{"TEI", "p", "head", "ref", "list", "formula", "note", "figure", "table"}

func (c *InspectCmd) Run() error {
	ins, err := inspect(c.Path)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ins)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "file\t%s\n", ins.Path)
	fmt.Fprintf(tw, "root\t<%s>\n", ins.Root)
	for _, name := range inspectedElements {
		fmt.Fprintf(tw, "<%s>\t%d\n", name, ins.Elements[name])
	}
	tw.Flush()

	fmt.Fprintln(stdout)
	tw = tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLANG\tABSTRACT\tBODY\tREFS\tTITLE")
	for _, d := range ins.Documents {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			d.ID, d.Lang, d.Stats.Abstract, d.Stats.Body, d.Stats.RefSpans, truncate(d.Title, 48))
	}
	tw.Flush()

	if len(ins.Diagnostics) == 0 {
		fmt.Fprintln(stdout, "\nall span offsets match")
		return nil
	}
	fmt.Fprintf(stdout, "\n%d span offset mismatches:\n", len(ins.Diagnostics))
	for _, d := range ins.Diagnostics {
		fmt.Fprintf(stdout, "  %s [%d:%d] recorded %q, text has %q\n", d.Kind, d.Start, d.End, d.Expected, d.Actual)
	}
	return nil
}

// inspect validates path, checks that it is TEI, converts it and verifies
// every span.
func inspect(path string) (*Inspection, error) {
	f, err := batch.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}

	if res := xml.Validate(data); !res.Valid {
		first := res.Errors[0]
		return nil, &errors.ParseError{Format: "XML", Path: path, Line: first.Line, Message: first.Message}
	}
	doc, err := xml.Parse(data)
	if err != nil {
		return nil, errors.WithPath(err, path)
	}
	if !doc.IsTEI() {
		return nil, errors.NewUnsupported("document", fmt.Sprintf("%s: root element <%s> is not TEI", path, doc.Root().Name()))
	}

	ins := &Inspection{
		Path:     path,
		Root:     doc.Root().Name(),
		Elements: make(map[string]int, len(inspectedElements)),
	}
	for _, name := range inspectedElements {
		n, err := doc.Count(fmt.Sprintf("//*[local-name()='%s']", name))
		if err != nil {
			return nil, err
		}
		ins.Elements[name] = n
	}

	c, err := tei.ConvertBytes(data, tei.WithLogger(logging.GetLogger().With("input", path)))
	if err != nil {
		return nil, errors.WithPath(err, path)
	}
	ins.Stats = c.Stats()
	for _, d := range c.Documents {
		ins.Documents = append(ins.Documents, DocumentSummary{
			ID:    d.ID,
			Title: d.Title,
			Lang:  d.Lang,
			Stats: d.Stats(),
		})
	}
	ins.Diagnostics = tei.Verify(c)
	return ins, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// ServeCmd starts the REST API server.
type ServeCmd struct {
	Port           int      `help:"HTTP server port" default:"8081" env:"TEIJSON_PORT"`
	MaxBody        int64    `name:"max-body" help:"Largest accepted /convert body in bytes" default:"67108864" env:"TEIJSON_MAX_BODY"`
	Store          string   `help:"Result store directory" default:"./results" type:"path" env:"TEIJSON_STORE"`
	Data           string   `help:"Root directory for job inputs and outputs" default:"." type:"path" env:"TEIJSON_DATA"`
	Ledger         string   `help:"Conversion ledger used by jobs" type:"path" env:"TEIJSON_LEDGER"`
	Workers        int      `help:"Parallel conversions per job (0 = number of CPUs)" default:"0" env:"TEIJSON_WORKERS"`
	CacheEntries   int      `name:"cache-entries" help:"Cached /convert responses (0 = disabled)" default:"256" env:"TEIJSON_CACHE_ENTRIES"`
	CacheBytes     int64    `name:"cache-bytes" help:"Corpus bytes the response cache may hold" default:"67108864" env:"TEIJSON_CACHE_BYTES"`
	RateLimit      int      `name:"rate-limit" help:"Requests per minute per client (0 = disabled)" default:"0" env:"TEIJSON_RATE_LIMIT"`
	RateBurst      int      `name:"rate-burst" help:"Rate limiter burst size" default:"10" env:"TEIJSON_RATE_BURST"`
	APIKey         string   `name:"api-key" help:"Require this key in X-API-Key (min 16 chars)" env:"TEIJSON_API_KEY"`
	TLSCert        string   `name:"tls-cert" help:"TLS certificate file" type:"path" env:"TEIJSON_TLS_CERT"`
	TLSKey         string   `name:"tls-key" help:"TLS private key file" type:"path" env:"TEIJSON_TLS_KEY"`
	AllowedOrigins []string `name:"allowed-origins" help:"CORS and WebSocket origins (default: all)" sep:"," env:"TEIJSON_ALLOWED_ORIGINS"`
}

// config maps the flags onto an api.Config.
func (c *ServeCmd) config() api.Config {
	return api.Config{
		Port:              c.Port,
		MaxBody:           c.MaxBody,
		StoreDir:          c.Store,
		DataDir:           c.Data,
		LedgerPath:        c.Ledger,
		Workers:           c.Workers,
		CacheEntries:      c.CacheEntries,
		CacheBytes:        c.CacheBytes,
		RateLimitRequests: c.RateLimit,
		RateLimitBurst:    c.RateBurst,
		Auth: api.AuthConfig{
			Enabled: c.APIKey != "",
			APIKey:  c.APIKey,
		},
		TLS: api.TLSConfig{
			Enabled:  c.TLSCert != "" || c.TLSKey != "",
			CertFile: c.TLSCert,
			KeyFile:  c.TLSKey,
		},
		AllowedOrigins: c.AllowedOrigins,
	}
}

func (c *ServeCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api.Version = version
	return api.Start(ctx, c.config())
}

// LedgerGroup contains ledger operations.
type LedgerGroup struct {
	List LedgerListCmd `cmd:"" help:"List recorded conversions"`
}

// LedgerListCmd lists ledger entries.
type LedgerListCmd struct {
	Path string `arg:"" help:"Ledger file" type:"existingfile"`
	JSON bool   `name:"json" help:"Print entries as JSON"`
}

func (c *LedgerListCmd) Run() error {
	l, err := ledger.Open(c.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.List(context.Background())
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONVERTED\tINPUT\tOUTPUT\tDOCS\tPARAS\tBLAKE3")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			e.ConvertedAt.Local().Format(time.DateTime), e.InputPath, e.OutputPath,
			e.Documents, e.Paragraphs, e.InputBLAKE3[:min(12, len(e.InputBLAKE3))])
	}
	return tw.Flush()
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "teijson version %s\n", version)
	fmt.Fprintf(stdout, "ledger driver: %s (%s, %s)\n", info.DriverName, info.DriverType, info.Package)
	return nil
}

// loadEnv reads a .env file if one exists. Real environment variables win.
func loadEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func main() {
	if err := loadEnv(".env"); err != nil {
		fmt.Fprintf(stderr, "teijson: reading .env: %v\n", err)
		os.Exit(1)
	}

	ctx := kong.Parse(&CLI,
		kong.Name("teijson"),
		kong.Description("Convert TEI XML into CORD-19 style JSON"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	ctx.FatalIfErrorf(CLI.Globals.initLogging())

	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
