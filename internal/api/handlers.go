package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/FocuswithJustin/teijson/core/cache"
	"github.com/FocuswithJustin/teijson/core/cas"
	"github.com/FocuswithJustin/teijson/core/corpus"
	"github.com/FocuswithJustin/teijson/core/errors"
	"github.com/FocuswithJustin/teijson/core/tei"
	"github.com/FocuswithJustin/teijson/core/xml"
	"github.com/FocuswithJustin/teijson/internal/logging"
	"github.com/FocuswithJustin/teijson/internal/validation"
)

// Version is reported by / and /health. The CLI overrides it at startup.
var Version = "dev"

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ConvertResponse is returned by POST /convert. Corpus holds exactly the
// bytes stored under Result.
type ConvertResponse struct {
	Corpus      json.RawMessage  `json:"corpus"`
	Stats       corpus.Stats     `json:"stats"`
	Input       cas.HashResult   `json:"input"`
	Result      cas.HashResult   `json:"result"`
	Diagnostics []tei.Diagnostic `json:"diagnostics,omitempty"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Uptime  string       `json:"uptime"`
	Clients int          `json:"ws_clients"`
	Jobs    int          `json:"jobs"`
	Active  int          `json:"active_jobs"`
	Cache   *cache.Stats `json:"cache,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"name":    "teijson API",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"POST /convert",
			"GET /results/:hash",
			"GET /jobs",
			"POST /jobs",
			"GET /jobs/:id",
			"DELETE /jobs/:id",
			"WS /ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	total, active := s.jobs.Counts()
	var cacheStats *cache.Stats
	if s.results != nil {
		st := s.results.Stats()
		cacheStats = &st
	}
	respond(w, http.StatusOK, HealthInfo{
		Status:  "healthy",
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Clients: s.hub.ClientCount(),
		Jobs:    total,
		Active:  active,
		Cache:   cacheStats,
	})
}

// handleConvert converts the TEI document in the request body. The optional
// select query parameter is an XPath expression choosing which TEI elements
// of the body to convert.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}
	start := time.Now()

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "EMPTY_BODY", "Request body is empty")
		return
	}
	if ft := validation.DetectFileType(data); ft != validation.FileTypeXML {
		respondError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
			"Request body looks like "+string(ft)+", want TEI XML")
		return
	}

	input := cas.Sum(data)
	sel := r.URL.Query().Get("select")
	key := input.SHA256 + "\x00" + sel
	if s.results != nil {
		if resp, ok := s.results.Get(key); ok {
			w.Header().Set("X-Cache", "HIT")
			respond(w, http.StatusOK, resp)
			return
		}
	}

	logger := logging.LoggerFromContext(r.Context()).With("input", input.SHA256)
	logging.ConversionStarted(input.SHA256, "request_id", logging.GetRequestID(r.Context()))

	var diags []tei.Diagnostic
	opts := []tei.Option{
		tei.WithLogger(logger),
		tei.WithDiagnostics(func(d tei.Diagnostic) { diags = append(diags, d) }),
	}

	var c *corpus.Corpus
	if sel != "" {
		var doc *xml.Document
		doc, err = xml.Parse(data)
		if err == nil {
			c, err = xml.ConvertSelection(doc, sel, opts...)
		}
	} else {
		c, err = tei.ConvertBytes(data, opts...)
	}
	if err != nil {
		logging.ConversionFailed(input.SHA256, err)
		respondErr(w, err)
		return
	}

	out, err := corpus.Marshal(c)
	if err != nil {
		logging.ConversionFailed(input.SHA256, err)
		respondErr(w, err)
		return
	}
	result, err := s.store.Put(out)
	if err != nil {
		logging.ConversionFailed(input.SHA256, err)
		respondErr(w, err)
		return
	}

	stats := c.Stats()
	logging.ConversionFinished(input.SHA256, result.SHA256, stats, time.Since(start))

	resp := ConvertResponse{
		Corpus:      out,
		Stats:       stats,
		Input:       input,
		Result:      result,
		Diagnostics: diags,
	}
	if s.results != nil {
		s.results.Put(key, resp)
		w.Header().Set("X-Cache", "MISS")
	}
	respond(w, http.StatusOK, resp)
}

// handleResult serves a stored corpus by its SHA-256 or BLAKE3 digest. The
// body is the stored JSON, not wrapped in an APIResponse.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	hash := strings.TrimPrefix(r.URL.Path, "/results/")
	if err := ValidateResultHash(hash); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_HASH", err.Error())
		return
	}

	data, err := s.store.Get(hash)
	if err != nil {
		respondErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// errorStatus maps a typed error onto an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var (
		parseErr       *errors.ParseError
		validationErr  *errors.ValidationError
		notFoundErr    *errors.NotFoundError
		unsupportedErr *errors.UnsupportedError
	)
	switch {
	case errors.As(err, &parseErr):
		if parseErr.Format == "XPath" {
			return http.StatusBadRequest, "INVALID_XPATH"
		}
		return http.StatusBadRequest, "INVALID_XML"
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &unsupportedErr):
		return http.StatusUnprocessableEntity, "UNSUPPORTED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// respondErr writes err using errorStatus. Internal errors are logged and
// their details withheld from the client.
func respondErr(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.Error("request failed", "error", err)
		msg = "Internal server error"
	}
	respondError(w, status, code, msg)
}

func respond(w http.ResponseWriter, status int, data any) {
	response := APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func respondList(w http.ResponseWriter, data any, total int) {
	response := APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Total:     total,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
