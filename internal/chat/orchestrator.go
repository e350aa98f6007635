// Package chat is the heart of the system: session CRUD, persisting user
// and assistant turns, driving the tool-enabled LLM loop, and emitting an
// ordered event stream for the transport.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/healthassistant/internal/llm"
	"github.com/yourorg/healthassistant/internal/models"
	"github.com/yourorg/healthassistant/internal/store"
	"github.com/yourorg/healthassistant/internal/tools"
)

type ownerKey struct{}

// ownerFromContext resolves the calling user's ID, set by Orchestrator
// before invoking the gateway so internal/tools.Catalog.Dispatch can read
// it without threading an extra parameter through the LLM package.
func ownerFromContext(ctx context.Context) (string, error) {
	v, ok := ctx.Value(ownerKey{}).(string)
	if !ok || v == "" {
		return "", fmt.Errorf("chat: no owner in context")
	}
	return v, nil
}

func withOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// Orchestrator drives chat sessions.
type Orchestrator struct {
	sessions store.ChatSessionStore
	messages store.ChatMessageStore
	gateway  *llm.Gateway
	catalog  *tools.Catalog
	model    string
	streams  *streamTracker
}

// New builds an Orchestrator. catalog's Dispatch is expected to resolve
// the owner via ownerFromContext; callers should build the catalog with
// tools.New(reader, chat.OwnerResolver) so dispatch and the orchestrator
// agree on where the owner ID lives.
func New(sessions store.ChatSessionStore, messages store.ChatMessageStore, gateway *llm.Gateway, catalog *tools.Catalog, model string) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		messages: messages,
		gateway:  gateway,
		catalog:  catalog,
		model:    model,
		streams:  newStreamTracker(),
	}
}

// OwnerResolver is the ownerFunc internal/tools.New expects; exported so
// cmd/healthassistant can wire the catalog to agree with the
// orchestrator on where the owner ID travels in ctx.
func OwnerResolver(ctx context.Context) (string, error) {
	return ownerFromContext(ctx)
}

// CreateSession creates a new chat session for ownerID.
func (o *Orchestrator) CreateSession(ctx context.Context, ownerID string, title *string) (*models.ChatSession, error) {
	session := &models.ChatSession{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("chat: create session: %w", err)
	}
	return session, nil
}

// GetSession returns a session and its ordered messages.
func (o *Orchestrator) GetSession(ctx context.Context, id string) (*models.ChatSession, []*models.ChatMessage, error) {
	session, err := o.sessions.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := o.messages.ListForSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return session, msgs, nil
}

// ListSessions lists ownerID's sessions.
func (o *Orchestrator) ListSessions(ctx context.Context, ownerID string) ([]*models.ChatSession, error) {
	return o.sessions.ListForUser(ctx, ownerID)
}

// DeleteSession deletes a session; cascades to its messages.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	return o.sessions.Delete(ctx, id)
}

// Send persists the user's message and drives the tool-enabled LLM loop,
// returning a channel of Events for the transport. The channel is closed
// after a done or error event.
func (o *Orchestrator) Send(ctx context.Context, sessionID, content string) (<-chan Event, error) {
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	release, ok := o.streams.Acquire(sessionID)
	if !ok {
		return nil, store.ErrStreamActive
	}

	history, err := o.messages.ListForSession(ctx, sessionID)
	if err != nil {
		release()
		return nil, err
	}

	userMsg := &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.messages.AppendMessage(ctx, userMsg); err != nil {
		release()
		return nil, fmt.Errorf("chat: persist user message: %w", err)
	}
	if session.Title == nil || *session.Title == "" {
		_ = o.sessions.SetTitleIfEmpty(ctx, sessionID, deriveTitle(content))
	}

	conversation := buildConversation(history, userMsg)

	out := make(chan Event)
	go o.run(ctx, session.OwnerID, sessionID, conversation, release, out)
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, ownerID, sessionID string, conversation []llm.Message, release func(), out chan<- Event) {
	defer close(out)
	defer release()

	toolCtx := withOwner(ctx, ownerID)

	var contentBuf strings.Builder
	var toolCalls []models.ToolCallRecord

	events := o.gateway.ChatWithTools(toolCtx, conversation, o.catalog.AsLLMTools(), o.model, o.catalog.Dispatch, llm.Options{})

	for ev := range events {
		switch ev.Kind {
		case llm.EventContent:
			contentBuf.WriteString(ev.Content)
			select {
			case out <- Event{Type: EventContent, Content: ev.Content}:
			case <-ctx.Done():
				return
			}

		case llm.EventToolCall:
			callID := uuid.NewString()
			toolCalls = append(toolCalls, models.ToolCallRecord{
				ID:        callID,
				Name:      ev.Name,
				Arguments: ev.Arguments,
			})
			select {
			case out <- Event{Type: EventToolCall, Name: ev.Name, Arguments: ev.Arguments}:
			case <-ctx.Done():
				return
			}

		case llm.EventToolResult:
			for i := len(toolCalls) - 1; i >= 0; i-- {
				if toolCalls[i].Name == ev.Name && toolCalls[i].Result == nil {
					toolCalls[i].Result = ev.Result
					break
				}
			}
			select {
			case out <- Event{Type: EventToolResult, Name: ev.Name, Result: string(ev.Result)}:
			case <-ctx.Done():
				return
			}

		case llm.EventDone:
			assistantMsg := &models.ChatMessage{
				ID:        uuid.NewString(),
				SessionID: sessionID,
				Role:      models.RoleAssistant,
				Content:   contentBuf.String(),
				CreatedAt: time.Now().UTC(),
			}
			if len(toolCalls) > 0 {
				assistantMsg.Metadata = &models.MessageMetadata{ToolCalls: toolCalls}
			}
			if err := o.messages.AppendMessage(ctx, assistantMsg); err != nil {
				out <- Event{Type: EventError, Error: err.Error()}
				return
			}
			out <- Event{Type: EventDone}
			return

		case llm.EventError:
			// Persist nothing: the user turn stays, no assistant row is
			// written.
			reason := ev.Reason
			if ev.Err != nil {
				reason = ev.Err.Error()
			}
			out <- Event{Type: EventError, Error: reason}
			return
		}
	}
}

// buildConversation assembles the LLM-visible message list: one system
// message, then the session history in order, reconstructing
// assistant-with-tool-calls / tool-role turns from stored metadata rather
// than from persisted tool messages.
func buildConversation(history []*models.ChatMessage, newUserMsg *models.ChatMessage) []llm.Message {
	out := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	for _, m := range history {
		out = append(out, reconstructTurns(m)...)
	}
	out = append(out, llm.Message{Role: llm.RoleUser, Content: newUserMsg.Content})
	return out
}

func reconstructTurns(m *models.ChatMessage) []llm.Message {
	role := llm.Role(m.Role)
	if m.Metadata == nil || len(m.Metadata.ToolCalls) == 0 {
		return []llm.Message{{Role: role, Content: m.Content}}
	}

	assistantMsg := llm.Message{Role: llm.RoleAssistant, Content: m.Content}
	turns := make([]llm.Message, 0, len(m.Metadata.ToolCalls)+1)
	for _, tc := range m.Metadata.ToolCalls {
		assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}
	turns = append(turns, assistantMsg)
	for _, tc := range m.Metadata.ToolCalls {
		turns = append(turns, llm.Message{
			Role:       llm.RoleTool,
			Content:    string(tc.Result),
			ToolCallID: tc.ID,
		})
	}
	return turns
}

func deriveTitle(content string) string {
	const maxLen = 60
	title := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	if len(title) > maxLen {
		title = title[:maxLen]
	}
	if title == "" {
		title = "New conversation"
	}
	return title
}
