// Package observability provides structured logging and metrics for the
// health assistant.
//
// # Overview
//
// The package covers two pillars:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Chat turns through the tool-enabled LLM loop
//   - Gateway request latency against the local inference server
//   - Tool execution performance, per tool name
//   - Document ingestion pipeline stage duration and outcome
//   - Error rates by component and type
//   - HTTP request/response and database query performance
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//	// ... mount promhttp.Handler() on /metrics in cmd/healthassistant ...
//
//	// Track a chat turn
//	start := time.Now()
//	// ... drive the tool loop ...
//	metrics.RecordChatTurn("done", time.Since(start).Seconds())
//
//	// Track a tool execution
//	start = time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("get_recent_labs", "success", time.Since(start).Seconds())
//
//	// Track an ingestion pipeline stage
//	start = time.Now()
//	// ... run OCR ...
//	metrics.RecordIngestionStage("parsing", "success", time.Since(start).Seconds())
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request/session/user ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens), a baseline
//     that also catches lab values or symptom notes accidentally logged
//     through %v formatting of request/response bodies
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	// Add correlation IDs
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//
//	// Structured logging with automatic context correlation
//	logger.Info(ctx, "chat turn started",
//	    "user_id", ownerID,
//	    "content_length", len(content),
//	)
//
//	// Error logging with automatic redaction
//	logger.Error(ctx, "gateway request failed",
//	    "error", err,
//	    "model", model,
//	)
//
// # Context Propagation
//
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddSessionID(ctx, "sess-456")
//	ctx = observability.AddUserID(ctx, "user-789")
//
//	// IDs automatically appear in logs
//	logger.Info(ctx, "Processing") // Includes request_id, session_id, user_id
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Testing
//
//   - Metrics can be verified using prometheus/testutil
//   - Logging can write to bytes.Buffer for assertions
package observability
