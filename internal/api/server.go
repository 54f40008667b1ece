// Package api provides the teijson REST API: synchronous conversion, batch
// jobs, stored results, and a WebSocket progress stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/teijson/core/cache"
	"github.com/FocuswithJustin/teijson/core/cas"
	"github.com/FocuswithJustin/teijson/internal/ledger"
	"github.com/FocuswithJustin/teijson/internal/logging"
)

// Server serves the API. Create it with NewServer and release it with Close.
type Server struct {
	cfg      Config
	store    *cas.Store
	ledger   *ledger.Ledger
	jobs     *JobStore
	hub      *Hub
	limiter  *RateLimiter
	results  *cache.LRU[string, ConvertResponse]
	upgrader *websocket.Upgrader
	started  time.Time

	stopHub context.CancelFunc
}

// NewServer validates cfg, opens the result store and optional ledger, and
// starts the WebSocket hub.
func NewServer(cfg Config) (*Server, error) {
	if err := ValidateAuthConfig(cfg.Auth); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return nil, fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(cfg.TLS.CertFile); err != nil {
			return nil, fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(cfg.TLS.KeyFile); err != nil {
			return nil, fmt.Errorf("TLS key file not found: %w", err)
		}
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}

	store, err := cas.NewStore(cfg.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		jobs:     NewJobStore(),
		hub:      NewHub(),
		upgrader: upgrader(cfg.AllowedOrigins),
		started:  time.Now(),
	}

	if cfg.LedgerPath != "" {
		s.ledger, err = ledger.Open(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
	}
	if cfg.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		})
	}

	if cfg.CacheEntries > 0 {
		s.results = cache.New[string, ConvertResponse](cache.Config{
			MaxSize:  cfg.CacheEntries,
			MaxBytes: cfg.CacheBytes,
		}, func(r ConvertResponse) int64 { return int64(len(r.Corpus)) })
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopHub = cancel
	go s.hub.Run(ctx)

	return s, nil
}

// Close cancels running jobs and stops the hub, the rate limiter and the
// ledger.
func (s *Server) Close() error {
	s.jobs.CancelAll()
	s.stopHub()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.ledger != nil {
		return s.ledger.Close()
	}
	return nil
}

// routes configures all HTTP routes.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/convert", s.handleConvert)
	mux.HandleFunc("/results/", s.handleResult)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobByID)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}

// Handler returns the routes wrapped in the middleware chain. From the
// outside in: request id and logging, CORS, rate limiting, authentication,
// security headers.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = SecurityHeaders(s.routes())

	if s.cfg.Auth.Enabled {
		handler = AuthMiddleware(s.cfg.Auth, handler)
	}
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = CORSMiddleware(s.cfg.AllowedOrigins, handler)
	return logging.CombinedMiddleware(handler)
}

// logStartup records the effective security posture.
func (s *Server) logStartup() {
	cfg := s.cfg
	protocol, wsProtocol := "http", "ws"
	if cfg.TLS.Enabled {
		protocol, wsProtocol = "https", "wss"
		logging.Info("TLS enabled", "cert_file", cfg.TLS.CertFile)
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy for production")
	}

	logging.SecurityEvent("authentication_configured", "api", "enabled", cfg.Auth.Enabled)
	if len(cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*) - consider restricting for production")
	}
	if s.limiter != nil {
		logging.Info("rate limiting enabled",
			"requests_per_minute", cfg.RateLimitRequests,
			"burst_size", s.limiter.config.BurstSize)
	}

	logging.ServerStartup("rest_api", protocol, cfg.Port,
		"websocket_protocol", wsProtocol,
		"store_dir", s.store.Root(),
		"data_dir", cfg.DataDir,
		"ledger", cfg.LedgerPath)
}

// Start runs the API server until ctx is cancelled, then shuts it down
// gracefully.
func Start(ctx context.Context, cfg Config) error {
	s, err := NewServer(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logStartup()

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			errCh <- srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
