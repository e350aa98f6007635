package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// MaxToolIterations is the hard cap on ChatWithTools loop turns; it
// prevents a model that keeps emitting tool calls from looping forever.
const MaxToolIterations = 8

// Config configures the Gateway.
type Config struct {
	// BaseURL points at the local inference server's OpenAI-compatible
	// endpoint, e.g. "http://localhost:8000/v1". Read from INFERENCE_HOST.
	BaseURL string

	ChatModel       string
	ExtractionModel string

	// Timeout bounds every request made through the gateway.
	Timeout time.Duration
}

// Gateway is the single stateless adapter to the inference server.
type Gateway struct {
	client          *openai.Client
	baseURL         string
	chatModel       string
	extractionModel string
	timeout         time.Duration
}

// New builds a Gateway from Config.
func New(cfg Config) *Gateway {
	clientCfg := openai.DefaultConfig("unused")
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Gateway{
		client:          openai.NewClientWithConfig(clientCfg),
		baseURL:         clientCfg.BaseURL,
		chatModel:       cfg.ChatModel,
		extractionModel: cfg.ExtractionModel,
		timeout:         timeout,
	}
}

// ChatModel returns the configured default chat model name.
func (g *Gateway) ChatModel() string { return g.chatModel }

// ExtractionModel returns the configured default extraction model name.
func (g *Gateway) ExtractionModel() string { return g.extractionModel }

// HealthCheck probes the inference server's model-listing endpoint with a
// short timeout. Never returns an error: failures are reported in the
// returned status.
func (g *Gateway) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		ConfiguredChatModel:       g.chatModel,
		ConfiguredExtractionModel: g.extractionModel,
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	list, err := g.client.ListModels(ctx)
	if err != nil {
		status.Reachable = false
		status.Error = err.Error()
		return status
	}

	status.Reachable = true
	for _, m := range list.Models {
		status.InstalledModels = append(status.InstalledModels, m.ID)
	}
	return status
}

// Chat sends a non-streaming completion and returns the full assistant
// text. Used by the extraction stage of internal/ingest.
func (g *Gateway) Chat(ctx context.Context, messages []Message, model string, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := g.buildRequest(messages, nil, model, opts)
	req.Stream = false

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream streams a completion without tools. The returned channel
// yields text fragments; it is closed when the stream ends (including on
// error, which is sent as the final Event with Kind == EventError).
func (g *Gateway) ChatStream(ctx context.Context, messages []Message, model string, opts Options) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		req := g.buildRequest(messages, nil, model, opts)
		req.Stream = true

		stream, err := g.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			emit(ctx, out, errorEvent("connection_error", err))
			return
		}
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if err != nil {
				if isStreamEOF(err) {
					emit(ctx, out, Event{Kind: EventDone})
					return
				}
				emit(ctx, out, errorEvent(classifyErr(err), err))
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !emit(ctx, out, Event{Kind: EventContent, Content: delta}) {
					return
				}
			}
		}
	}()
	return out
}

// ChatWithTools is the core primitive for grounded chat: it drives the
// iterate-stream-dispatch-repeat loop against the inference server.
// messages is copied, not mutated; the caller (internal/chat)
// persists its own record of the turns by consuming the returned events
// (EventContent accumulates assistant text, EventToolCall/EventToolResult
// pairs record each invocation).
func (g *Gateway) ChatWithTools(ctx context.Context, messages []Message, tools []Tool, model string, exec ToolExecutor, opts Options) <-chan Event {
	out := make(chan Event)
	go g.runToolLoop(ctx, append([]Message{}, messages...), tools, model, exec, opts, out)
	return out
}

func (g *Gateway) runToolLoop(ctx context.Context, messages []Message, tools []Tool, model string, exec ToolExecutor, opts Options, out chan<- Event) {
	defer close(out)

	for iteration := 0; iteration < MaxToolIterations; iteration++ {
		req := g.buildRequest(messages, tools, model, opts)
		req.Stream = true

		reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
		stream, err := g.client.CreateChatCompletionStream(reqCtx, req)
		if err != nil {
			cancel()
			emit(ctx, out, errorEvent("connection_error", err))
			return
		}

		var content strings.Builder
		calls := map[int]*accumulatingCall{}
		var order []int

		streamErr := drainStream(ctx, stream, func(delta openai.ChatCompletionStreamChoiceDelta) bool {
			if delta.Content != "" {
				content.WriteString(delta.Content)
				if !emit(ctx, out, Event{Kind: EventContent, Content: delta.Content}) {
					return false
				}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := calls[idx]
				if !ok {
					acc = &accumulatingCall{}
					calls[idx] = acc
					order = append(order, idx)
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args.WriteString(tc.Function.Arguments)
			}
			return true
		})
		stream.Close()
		cancel()

		if streamErr != nil {
			emit(ctx, out, errorEvent(classifyErr(streamErr), streamErr))
			return
		}

		if len(order) == 0 {
			emit(ctx, out, Event{Kind: EventDone})
			return
		}

		assistantMsg := Message{Role: RoleAssistant, Content: content.String()}
		for _, idx := range order {
			acc := calls[idx]
			argBytes := []byte(acc.args.String())
			if len(argBytes) == 0 {
				argBytes = []byte("{}")
			}
			if !emit(ctx, out, Event{Kind: EventToolCall, Name: acc.name, Arguments: argBytes}) {
				return
			}
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, ToolCall{
				ID:        acc.id,
				Name:      acc.name,
				Arguments: argBytes,
			})
		}
		messages = append(messages, assistantMsg)

		for _, idx := range order {
			acc := calls[idx]
			argBytes := []byte(acc.args.String())
			if len(argBytes) == 0 {
				argBytes = []byte("{}")
			}

			var result json.RawMessage
			if !json.Valid(argBytes) {
				result, _ = json.Marshal(map[string]string{
					"error":  "invalid_arguments",
					"detail": "tool call arguments were not valid JSON",
				})
			} else {
				r, execErr := exec(ctx, acc.name, argBytes)
				if execErr != nil {
					result, _ = json.Marshal(map[string]string{"error": execErr.Error()})
				} else {
					result = r
				}
			}

			if !emit(ctx, out, Event{Kind: EventToolResult, Name: acc.name, Result: result}) {
				return
			}
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    string(result),
				ToolCallID: acc.id,
			})
		}
	}

	emit(ctx, out, Event{Kind: EventError, Reason: "tool_loop_exhausted"})
}

// emit sends one event unless the consumer is gone: on a cancelled context
// it reports false instead of blocking forever on a channel nobody reads.
func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

type accumulatingCall struct {
	id   string
	name string
	args strings.Builder
}

// drainStream reads an OpenAI chat completion stream, invoking onDelta for
// each choice delta, until EOF, a callback-requested stop, or an error.
func drainStream(ctx context.Context, stream *openai.ChatCompletionStream, onDelta func(openai.ChatCompletionStreamChoiceDelta) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk, err := stream.Recv()
		if err != nil {
			if isStreamEOF(err) {
				return nil
			}
			return err
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if !onDelta(chunk.Choices[0].Delta) {
			return ctx.Err()
		}
	}
}

func (g *Gateway) buildRequest(messages []Message, tools []Tool, model string, opts Options) openai.ChatCompletionRequest {
	if model == "" {
		model = g.chatModel
	}
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}
	return req
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, oaiMsg)
	}
	return out
}

func toOpenAITools(tools []Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return out
}

func errorEvent(reason string, err error) Event {
	return Event{Kind: EventError, Reason: reason, Err: err}
}

func classifyErr(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "context canceled"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection_error"
	default:
		return "inference_error"
	}
}

func isStreamEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
