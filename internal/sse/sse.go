// Package sse encodes an event stream as Server-Sent Events over
// net/http's http.Flusher: one `data: <json>` line per event, a blank
// line terminator.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Writer streams JSON-encoded events as SSE frames.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE response headers and returns a Writer, or an
// error if the ResponseWriter doesn't support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one `data: <json>\n\n` frame and flushes immediately, so
// the client sees each event as it is produced. Events go out in the
// order Send is called; nothing is buffered or reordered.
func (w *Writer) Send(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}
