package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/yourorg/healthassistant/internal/chat"
	"github.com/yourorg/healthassistant/internal/sse"
	"github.com/yourorg/healthassistant/internal/store"
)

type createSessionRequest struct {
	UserID string  `json:"user_id"`
	Title  *string `json:"title,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}

	session, err := s.orchestrator.CreateSession(r.Context(), req.UserID, req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_session_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}
	sessions, err := s.orchestrator.ListSessions(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_sessions_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

type sessionDetail struct {
	Session  any `json:"session"`
	Messages any `json:"messages"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, messages, err := s.orchestrator.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get_session_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionDetail{Session: session, Messages: messages})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orchestrator.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete_session_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// handleSendMessage streams the orchestrator's event channel out as
// Server-Sent Events. No chunk ordering manipulation: each Event is
// written in the order it is received.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if s.logger != nil {
		// The content field is stripped by redaction; only the shape of the
		// request reaches the log.
		s.logger.Debug(r.Context(), "chat message received", "session_id", id, "body", string(body))
	}

	var req sendMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "missing_content", "content is required")
		return
	}

	events, err := s.orchestrator.Send(r.Context(), id, req.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if errors.Is(err, store.ErrStreamActive) {
			writeError(w, http.StatusConflict, "stream_active", "a message is already streaming on this session")
			return
		}
		writeError(w, http.StatusInternalServerError, "send_failed", err.Error())
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}

	start := time.Now()
	outcome := "error"
	if s.metrics != nil {
		s.metrics.StreamStarted()
		defer func() {
			s.metrics.StreamEnded()
			s.metrics.RecordChatTurn(outcome, time.Since(start).Seconds())
		}()
	}

	for ev := range events {
		if ev.Type == chat.EventDone {
			outcome = "done"
		}
		if err := writer.Send(ev); err != nil {
			if s.logger != nil {
				s.logger.Warn(r.Context(), "sse write failed", "error", err)
			}
			return
		}
	}
}
