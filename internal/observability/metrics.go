package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Chat turns through the tool-enabled LLM loop
//   - Gateway request performance against the local inference server
//   - Tool execution patterns and latencies
//   - Document ingestion pipeline stage outcomes and duration
//   - Error rates categorized by type and component
//   - Active chat streams and HTTP/database performance
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.GatewayRequestDuration("local-chat").Observe(time.Since(start).Seconds())
type Metrics struct {
	// ChatTurnCounter counts completed chat turns by outcome.
	// Labels: outcome (done|error)
	ChatTurnCounter *prometheus.CounterVec

	// ChatTurnDuration measures the wall-clock time of a chat turn,
	// from Send until the stream closes.
	// Labels: outcome (done|error)
	// Buckets: 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s
	ChatTurnDuration *prometheus.HistogramVec

	// ActiveStreams is a gauge tracking currently-streaming chat sessions.
	ActiveStreams prometheus.Gauge

	// GatewayRequestDuration measures inference server request latency.
	// Labels: model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	GatewayRequestDuration *prometheus.HistogramVec

	// GatewayRequestCounter counts inference server requests.
	// Labels: model, status (success|error)
	GatewayRequestCounter *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.001s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	ToolExecutionDuration *prometheus.HistogramVec

	// IngestionStageCounter counts ingestion pipeline stage completions.
	// Labels: stage (parsing|extracting|persisting), outcome (success|failed)
	IngestionStageCounter *prometheus.CounterVec

	// IngestionStageDuration measures ingestion pipeline stage duration.
	// Labels: stage (parsing|extracting|persisting)
	// Buckets: 0.5s, 1s, 5s, 10s, 30s, 60s, 120s, 300s, 600s
	IngestionStageDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and type.
	// Labels: component (gateway|tools|ingest|chat|store), error_type
	ErrorCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// DatabaseQueryDuration measures database query latency.
	// Labels: operation (select|insert|update|delete), table
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts database queries.
	// Labels: operation, table, status (success|error)
	DatabaseQueryCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default
// registry and will be available at the /metrics endpoint when using
// promhttp.Handler().
func NewMetrics() *Metrics {
	return &Metrics{
		ChatTurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthassistant_chat_turns_total",
				Help: "Total number of chat turns by outcome",
			},
			[]string{"outcome"},
		),

		ChatTurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "healthassistant_chat_turn_duration_seconds",
				Help:    "Duration of a chat turn from Send to stream close",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "healthassistant_active_streams",
				Help: "Current number of streaming chat sessions",
			},
		),

		GatewayRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "healthassistant_gateway_request_duration_seconds",
				Help:    "Duration of inference server requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		GatewayRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthassistant_gateway_requests_total",
				Help: "Total number of inference server requests by model and status",
			},
			[]string{"model", "status"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthassistant_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "healthassistant_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"tool_name"},
		),

		IngestionStageCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthassistant_ingestion_stage_total",
				Help: "Total number of ingestion pipeline stage completions by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),

		IngestionStageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "healthassistant_ingestion_stage_duration_seconds",
				Help:    "Duration of ingestion pipeline stages in seconds",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthassistant_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "healthassistant_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthassistant_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		DatabaseQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "healthassistant_database_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthassistant_database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
	}
}

// RecordChatTurn records the outcome and duration of a completed chat turn.
//
// Example:
//
//	start := time.Now()
//	// ... drive the tool loop ...
//	metrics.RecordChatTurn("done", time.Since(start).Seconds())
func (m *Metrics) RecordChatTurn(outcome string, durationSeconds float64) {
	m.ChatTurnCounter.WithLabelValues(outcome).Inc()
	m.ChatTurnDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// StreamStarted increments the active streams gauge.
func (m *Metrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *Metrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// RecordGatewayRequest records metrics for an inference server request.
//
// Example:
//
//	start := time.Now()
//	// ... call the gateway ...
//	metrics.RecordGatewayRequest("local-chat", "success", time.Since(start).Seconds())
func (m *Metrics) RecordGatewayRequest(model, status string, durationSeconds float64) {
	m.GatewayRequestCounter.WithLabelValues(model, status).Inc()
	m.GatewayRequestDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("get_recent_labs", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordIngestionStage records the outcome and duration of a pipeline stage.
//
// Example:
//
//	start := time.Now()
//	// ... run OCR ...
//	metrics.RecordIngestionStage("parsing", "success", time.Since(start).Seconds())
func (m *Metrics) RecordIngestionStage(stage, outcome string, durationSeconds float64) {
	m.IngestionStageCounter.WithLabelValues(stage, outcome).Inc()
	m.IngestionStageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("gateway", "timeout")
//	metrics.RecordError("ingest", "ocr_unreachable")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// RecordHTTPRequest records metrics for an HTTP request.
//
// Example:
//
//	start := time.Now()
//	// ... handle HTTP request ...
//	metrics.RecordHTTPRequest("GET", "/chat/sessions", "200", time.Since(start).Seconds())
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordDatabaseQuery records metrics for a database query.
//
// Example:
//
//	start := time.Now()
//	// ... execute database query ...
//	metrics.RecordDatabaseQuery("select", "lab_results", "success", time.Since(start).Seconds())
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}
