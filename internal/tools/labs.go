package tools

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/yourorg/healthassistant/internal/models"
	"github.com/yourorg/healthassistant/internal/store"
)

const defaultRecentLabsDays = 90

type getRecentLabsTool struct{}

func (getRecentLabsTool) Name() string { return "get_recent_labs" }

func (getRecentLabsTool) Description() string {
	return "List recent lab results, newest first, optionally filtered to one test."
}

func (getRecentLabsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"days": {"type": "integer", "minimum": 0, "default": 90},
			"test_name": {"type": "string"}
		},
		"additionalProperties": false
	}`)
}

type recentLabsArgs struct {
	Days     *int   `json:"days"`
	TestName string `json:"test_name"`
}

// Execute treats an omitted days as the default window, but an explicit
// days=0 as "no window": an empty result, not the default.
func (getRecentLabsTool) Execute(ctx context.Context, ownerID string, reader store.Reader, arguments json.RawMessage) (json.RawMessage, error) {
	var args recentLabsArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, err
	}
	days := defaultRecentLabsDays
	if args.Days != nil {
		days = *args.Days
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	results, err := reader.ListLabs(ctx, ownerID, store.ListFilter{
		Since:      &since,
		TestName:   args.TestName,
		Limit:      100,
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(results)
}

const defaultLabTrendMonths = 12

type getLabTrendTool struct{}

func (getLabTrendTool) Name() string { return "get_lab_trend" }

func (getLabTrendTool) Description() string {
	return "Return a chronological trend for one named lab test, plus its latest value and status."
}

func (getLabTrendTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"test_name": {"type": "string"},
			"months": {"type": "integer", "minimum": 1, "default": 12}
		},
		"required": ["test_name"],
		"additionalProperties": false
	}`)
}

type labTrendArgs struct {
	TestName string `json:"test_name"`
	Months   int    `json:"months"`
}

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

type labTrendResult struct {
	Points  []labTrendPoint  `json:"points"`
	Summary *labTrendSummary `json:"summary,omitempty"`
}

func (getLabTrendTool) Execute(ctx context.Context, ownerID string, reader store.Reader, arguments json.RawMessage) (json.RawMessage, error) {
	var args labTrendArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, err
	}
	months := args.Months
	if months <= 0 {
		months = defaultLabTrendMonths
	}
	since := time.Now().UTC().AddDate(0, -months, 0)

	rows, err := reader.ListLabs(ctx, ownerID, store.ListFilter{
		Since:    &since,
		TestName: args.TestName,
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].RecordedAt.Before(rows[j].RecordedAt) })

	result := labTrendResult{Points: make([]labTrendPoint, 0, len(rows))}
	for _, r := range rows {
		result.Points = append(result.Points, labTrendPoint{
			RecordedAt:   r.RecordedAt,
			Value:        r.Value,
			Unit:         r.Unit,
			Status:       r.Status,
			ReferenceMin: r.ReferenceMin,
			ReferenceMax: r.ReferenceMax,
		})
	}
	if len(rows) > 0 {
		latest := rows[len(rows)-1]
		result.Summary = &labTrendSummary{
			LatestValue:  latest.Value,
			LatestStatus: latest.Status,
			Unit:         latest.Unit,
		}
	}
	return json.Marshal(result)
}
