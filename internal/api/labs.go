package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/yourorg/healthassistant/internal/models"
	"github.com/yourorg/healthassistant/internal/store"
)

const (
	defaultLabListDays = 90
	defaultTrendMonths = 12
)

func (s *Server) handleListLabs(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}
	days := queryInt(r, "days", defaultLabListDays)
	since := time.Now().UTC().AddDate(0, 0, -days)

	results, err := s.labs.ListForUser(r.Context(), userID, store.ListFilter{
		Since:      &since,
		TestName:   r.URL.Query().Get("test_name"),
		Descending: true,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_labs_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// labTrendPoint/labTrendResult mirror the get_lab_trend tool's wire shape
// (internal/tools/labs.go) so a client sees the same contract whether it
// reaches the trend through the LLM or directly through this endpoint.
type labTrendPoint struct {
	RecordedAt   time.Time         `json:"recorded_at"`
	Value        float64           `json:"value"`
	Unit         string            `json:"unit"`
	Status       *models.LabStatus `json:"status,omitempty"`
	ReferenceMin *float64          `json:"reference_min,omitempty"`
	ReferenceMax *float64          `json:"reference_max,omitempty"`
}

type labTrendSummary struct {
	LatestValue  float64           `json:"latest_value"`
	LatestStatus *models.LabStatus `json:"latest_status,omitempty"`
	Unit         string            `json:"unit"`
}

type labTrendResponse struct {
	Points  []labTrendPoint  `json:"points"`
	Summary *labTrendSummary `json:"summary,omitempty"`
}

func (s *Server) handleLabTrend(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}
	testName := r.PathValue("test_name")
	months := queryInt(r, "months", defaultTrendMonths)
	since := time.Now().UTC().AddDate(0, -months, 0)

	rows, err := s.labs.ListForUser(r.Context(), userID, store.ListFilter{
		Since:    &since,
		TestName: testName,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lab_trend_failed", err.Error())
		return
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].RecordedAt.Before(rows[j].RecordedAt) })

	resp := labTrendResponse{Points: make([]labTrendPoint, 0, len(rows))}
	for _, row := range rows {
		resp.Points = append(resp.Points, labTrendPoint{
			RecordedAt:   row.RecordedAt,
			Value:        row.Value,
			Unit:         row.Unit,
			Status:       row.Status,
			ReferenceMin: row.ReferenceMin,
			ReferenceMax: row.ReferenceMax,
		})
	}
	if len(rows) > 0 {
		latest := rows[len(rows)-1]
		resp.Summary = &labTrendSummary{
			LatestValue:  latest.Value,
			LatestStatus: latest.Status,
			Unit:         latest.Unit,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLabTestNames(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}
	names, err := s.labs.DistinctTestNames(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "test_names_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
