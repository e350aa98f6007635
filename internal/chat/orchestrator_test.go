package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yourorg/healthassistant/internal/llm"
	"github.com/yourorg/healthassistant/internal/store"
	"github.com/yourorg/healthassistant/internal/tools"
)

func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload string) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func sseContentChunk(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "m",
		"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": content}, "finish_reason": nil}},
	})
	return string(b)
}

func sseToolCallChunk(id, name, arguments string) string {
	b, _ := json.Marshal(map[string]any{
		"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "m",
		"choices": []map[string]any{{
			"index": 0,
			"delta": map[string]any{"tool_calls": []map[string]any{{
				"index": 0, "id": id, "type": "function",
				"function": map[string]any{"name": name, "arguments": arguments},
			}}},
			"finish_reason": nil,
		}},
	})
	return string(b)
}

// newTestOrchestrator wires a real Orchestrator against in-memory stores
// and a fake inference server whose streaming responses are produced by
// respond for each call (0-indexed).
func newTestOrchestrator(t *testing.T, respond func(w http.ResponseWriter, flusher http.Flusher, call int)) (*Orchestrator, store.Set) {
	t.Helper()
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		respond(w, flusher, callCount)
		callCount++
	}))
	t.Cleanup(srv.Close)

	s := store.NewMemoryStores()
	gateway := llm.New(llm.Config{BaseURL: srv.URL + "/v1", ChatModel: "m"})
	catalog, err := tools.New(store.NewReader(s), OwnerResolver)
	if err != nil {
		t.Fatalf("tools.New: %v", err)
	}
	return New(s.Sessions, s.Messages, gateway, catalog, "m"), s
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("timed out draining event channel")
		}
	}
}

func TestSendPersistsUserAndAssistantMessages(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(w http.ResponseWriter, flusher http.Flusher, call int) {
		writeSSE(w, flusher, sseContentChunk("hi there"))
		writeSSE(w, flusher, "[DONE]")
	})

	session, err := o.CreateSession(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	events, err := o.Send(context.Background(), session.ID, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := drain(t, events)

	var sawDone bool
	for _, ev := range got {
		if ev.Type == EventDone {
			sawDone = true
		}
		if ev.Type == EventError {
			t.Fatalf("unexpected error event: %+v", ev)
		}
	}
	if !sawDone {
		t.Fatal("expected a done event")
	}

	_, msgs, err := o.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (user + assistant)", len(msgs))
	}
	if msgs[0].Content != "hello" {
		t.Errorf("msgs[0].Content = %q, want %q", msgs[0].Content, "hello")
	}
	if msgs[1].Content != "hi there" {
		t.Errorf("msgs[1].Content = %q, want %q", msgs[1].Content, "hi there")
	}

	refreshed, _, err := o.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if refreshed.Title == nil || *refreshed.Title != "hello" {
		t.Errorf("title = %v, want auto-derived %q", refreshed.Title, "hello")
	}
}

func TestSendRejectsConcurrentStreamOnSameSession(t *testing.T) {
	release := make(chan struct{})
	o, s := newTestOrchestrator(t, func(w http.ResponseWriter, flusher http.Flusher, call int) {
		<-release
		writeSSE(w, flusher, sseContentChunk("done"))
		writeSSE(w, flusher, "[DONE]")
	})
	_ = s

	session, err := o.CreateSession(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	first, err := o.Send(context.Background(), session.ID, "first")
	if err != nil {
		t.Fatalf("first Send: %v", err)
	}

	_, err = o.Send(context.Background(), session.ID, "second")
	if err != store.ErrStreamActive {
		t.Fatalf("second Send error = %v, want ErrStreamActive", err)
	}

	close(release)
	drain(t, first)
}

func TestSendDoesNotPersistAssistantMessageOnError(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(w http.ResponseWriter, flusher http.Flusher, call int) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	session, err := o.CreateSession(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	events, err := o.Send(context.Background(), session.ID, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := drain(t, events)

	var sawError bool
	for _, ev := range got {
		if ev.Type == EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected an error event")
	}

	_, msgs, err := o.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (user message only, no assistant row)", len(msgs))
	}
}

func TestSendCancellationBeforeDonePersistsNoAssistantMessage(t *testing.T) {
	blocked := make(chan struct{})
	o, _ := newTestOrchestrator(t, func(w http.ResponseWriter, flusher http.Flusher, call int) {
		writeSSE(w, flusher, sseContentChunk("partial"))
		<-blocked
	})
	defer close(blocked)

	session, err := o.CreateSession(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := o.Send(ctx, session.ID, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Wait for at least one content event, then drop the client.
	select {
	case ev := <-events:
		if ev.Type != EventContent {
			t.Fatalf("first event = %+v, want content", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first content event")
	}
	cancel()
	drain(t, events)

	_, msgs, err := o.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want only the user message after cancellation", len(msgs))
	}
	if msgs[0].Role != "user" {
		t.Errorf("remaining message role = %q, want user", msgs[0].Role)
	}
}

func TestSendRecordsToolCallMetadataForReconstruction(t *testing.T) {
	o, s := newTestOrchestrator(t, func(w http.ResponseWriter, flusher http.Flusher, call int) {
		if call == 0 {
			writeSSE(w, flusher, sseToolCallChunk("call_1", "get_recent_labs", `{}`))
			writeSSE(w, flusher, "[DONE]")
			return
		}
		writeSSE(w, flusher, sseContentChunk("here are your labs"))
		writeSSE(w, flusher, "[DONE]")
	})
	_ = s

	session, err := o.CreateSession(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	events, err := o.Send(context.Background(), session.ID, "show my labs")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	drain(t, events)

	_, msgs, err := o.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	assistant := msgs[1]
	if assistant.Metadata == nil || len(assistant.Metadata.ToolCalls) != 1 {
		t.Fatalf("assistant.Metadata = %+v, want one recorded tool call", assistant.Metadata)
	}
	if assistant.Metadata.ToolCalls[0].Name != "get_recent_labs" {
		t.Errorf("tool call name = %q, want get_recent_labs", assistant.Metadata.ToolCalls[0].Name)
	}
	if assistant.Metadata.ToolCalls[0].Result == nil {
		t.Error("expected the tool call's result to be recorded")
	}
}
