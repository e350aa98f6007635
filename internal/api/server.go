// Package api is the thin REST surface in front of the chat orchestrator,
// the ingestion pipeline, and the read endpoints for labs and symptoms,
// with promhttp.Handler() on /metrics and a status endpoint at /ai/status.
// No auth middleware: the service runs inside a trusted local network and
// user_id travels explicitly in request bodies and query strings.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourorg/healthassistant/internal/artifacts"
	"github.com/yourorg/healthassistant/internal/chat"
	"github.com/yourorg/healthassistant/internal/ingest"
	"github.com/yourorg/healthassistant/internal/llm"
	"github.com/yourorg/healthassistant/internal/observability"
	"github.com/yourorg/healthassistant/internal/store"
)

// maxJSONBodySize bounds JSON request bodies read into memory.
const maxJSONBodySize = 1 << 20

// Server wires the health assistant's store, orchestrator, and ingestion
// pipeline to an HTTP surface.
type Server struct {
	documents store.DocumentStore
	labs      store.LabResultStore
	symptoms  store.SymptomStore

	orchestrator *chat.Orchestrator
	pipeline     *ingest.Pipeline
	gateway      *llm.Gateway
	uploads      artifacts.Store

	logger  *observability.Logger
	metrics *observability.Metrics

	mux *http.ServeMux
}

// Config groups everything New needs to build a Server.
type Config struct {
	Documents store.DocumentStore
	Labs      store.LabResultStore
	Symptoms  store.SymptomStore

	Orchestrator *chat.Orchestrator
	Pipeline     *ingest.Pipeline
	Gateway      *llm.Gateway
	Uploads      artifacts.Store

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// New builds a Server and registers every route.
func New(cfg Config) *Server {
	s := &Server{
		documents:    cfg.Documents,
		labs:         cfg.Labs,
		symptoms:     cfg.Symptoms,
		orchestrator: cfg.Orchestrator,
		pipeline:     cfg.Pipeline,
		gateway:      cfg.Gateway,
		uploads:      cfg.Uploads,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler, wrapped with metrics recording.
func (s *Server) Handler() http.Handler {
	return s.withMetrics(s.mux)
}

func (s *Server) routes() {
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /ai/status", s.handleAIStatus)

	s.mux.HandleFunc("POST /chat/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /chat/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /chat/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /chat/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /chat/sessions/{id}/messages", s.handleSendMessage)

	s.mux.HandleFunc("POST /documents/upload", s.handleUploadDocument)
	s.mux.HandleFunc("GET /documents", s.handleListDocuments)
	s.mux.HandleFunc("GET /documents/{id}", s.handleGetDocument)
	s.mux.HandleFunc("DELETE /documents/{id}", s.handleDeleteDocument)

	s.mux.HandleFunc("GET /labs", s.handleListLabs)
	s.mux.HandleFunc("GET /labs/trends/{test_name}", s.handleLabTrend)
	s.mux.HandleFunc("GET /labs/test-names", s.handleLabTestNames)

	s.mux.HandleFunc("POST /symptoms", s.handleCreateSymptom)
	s.mux.HandleFunc("GET /symptoms", s.handleListSymptoms)
	s.mux.HandleFunc("GET /symptoms/types", s.handleSymptomTypes)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush passes through to the wrapped writer so SSE streaming keeps
// working behind the metrics wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, statusCodeLabel(rec.status), time.Since(start).Seconds())
		}
	})
}

func statusCodeLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the machine-readable error shape returned on 4xx/5xx.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}
