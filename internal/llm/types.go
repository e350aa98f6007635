// Package llm is the single adapter that speaks to the locally-hosted
// inference server. The server exposes an OpenAI-compatible
// chat-completions API, so the gateway is built directly on
// github.com/sashabaranov/go-openai's client pointed at a configurable
// BaseURL instead of api.openai.com.
package llm

import (
	"context"
	"encoding/json"
)

// Role mirrors the chat-completions role enum.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function-call the model asked for.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one turn of the conversation sent to the inference server.
type Message struct {
	Role Role `json:"role"`

	// Content is plain text. Empty for an assistant turn that only carries
	// tool calls, or a tool turn whose Content is the tool's JSON result.
	Content string `json:"content,omitempty"`

	// ToolCalls is set on an assistant message that invoked tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID identifies which call a Role: RoleTool message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Tool is the wire shape of one catalog entry handed to the inference
// server: a name, a human-readable description, and a JSON Schema for its
// arguments. internal/tools.Catalog produces these.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ToolExecutor dispatches one tool call and returns its JSON-serializable
// result. Implemented by internal/tools.Catalog.Dispatch.
type ToolExecutor func(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error)

// Options tunes a single request; zero value uses the gateway's defaults.
type Options struct {
	MaxTokens   int
	Temperature *float32
}

// EventKind enumerates the frame shapes ChatWithTools emits.
type EventKind string

const (
	EventContent    EventKind = "content"
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	EventDone       EventKind = "done"
	EventError      EventKind = "error"
)

// Event is one item of the lazy sequence chat_with_tools produces.
type Event struct {
	Kind EventKind

	// Content carries a text delta when Kind == EventContent.
	Content string

	// Name/Arguments/Result carry tool-call and tool-result frames.
	Name      string
	Arguments json.RawMessage
	Result    json.RawMessage

	// Reason carries the failure classification when Kind == EventError,
	// e.g. "tool_loop_exhausted", "timeout", "connection_error".
	Reason string
	Err    error
}

// HealthStatus is the structured, non-raising result of HealthCheck.
type HealthStatus struct {
	Reachable                 bool     `json:"reachable"`
	InstalledModels           []string `json:"installed_models"`
	ConfiguredChatModel       string   `json:"configured_chat_model"`
	ConfiguredExtractionModel string   `json:"configured_extraction_model"`
	Error                     string   `json:"error,omitempty"`
}
