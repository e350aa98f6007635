package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/healthassistant/internal/models"
	"github.com/yourorg/healthassistant/internal/store"
)

const defaultSymptomListDays = 30

type createSymptomRequest struct {
	UserID          string    `json:"user_id"`
	SymptomType     string    `json:"symptom_type"`
	Severity        int       `json:"severity"`
	Notes           *string   `json:"notes,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	Triggers        []string  `json:"triggers,omitempty"`
}

func (s *Server) handleCreateSymptom(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if s.logger != nil {
		// Redaction strips notes, triggers, and severity before the body
		// reaches the log.
		s.logger.Debug(r.Context(), "symptom entry received", "body", string(body))
	}

	var req createSymptomRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.UserID == "" || req.SymptomType == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "user_id and symptom_type are required")
		return
	}
	if req.Severity < 0 || req.Severity > 10 {
		writeError(w, http.StatusBadRequest, "invalid_severity", "severity must be between 0 and 10")
		return
	}
	if req.RecordedAt.IsZero() {
		req.RecordedAt = time.Now().UTC()
	}

	entry := &models.SymptomEntry{
		ID:              uuid.NewString(),
		OwnerID:         req.UserID,
		SymptomType:     req.SymptomType,
		Severity:        req.Severity,
		Notes:           req.Notes,
		RecordedAt:      req.RecordedAt,
		DurationMinutes: req.DurationMinutes,
		Triggers:        req.Triggers,
	}
	if err := s.symptoms.Create(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, "create_symptom_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListSymptoms(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}
	days := queryInt(r, "days", defaultSymptomListDays)
	since := time.Now().UTC().AddDate(0, 0, -days)

	entries, err := s.symptoms.ListForUser(r.Context(), userID, store.ListFilter{
		Since:       &since,
		SymptomType: r.URL.Query().Get("symptom_type"),
		Descending:  true,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_symptoms_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSymptomTypes(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}
	types, err := s.symptoms.DistinctTypes(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "symptom_types_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, types)
}
