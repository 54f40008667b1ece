package tei

import (
	"io"
	"log/slog"
)

// Option configures a Converter.
type Option func(*config)

type config struct {
	logger       *slog.Logger
	onDiagnostic func(Diagnostic)
}

func newConfig(opts []Option) config {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = discardLogger()
	}
	return cfg
}

// WithLogger sets the logger used for offset diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithDiagnostics registers a callback invoked for every offset mismatch.
func WithDiagnostics(fn func(Diagnostic)) Option {
	return func(c *config) { c.onDiagnostic = fn }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
