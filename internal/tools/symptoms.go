package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yourorg/healthassistant/internal/store"
)

const defaultSymptomTimelineDays = 30

type getSymptomTimelineTool struct{}

func (getSymptomTimelineTool) Name() string { return "get_symptom_timeline" }

func (getSymptomTimelineTool) Description() string {
	return "List logged symptom entries, optionally filtered to one type, with a per-type frequency summary."
}

func (getSymptomTimelineTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"symptom_type": {"type": "string"},
			"days": {"type": "integer", "minimum": 1, "default": 30}
		},
		"additionalProperties": false
	}`)
}

type symptomTimelineArgs struct {
	SymptomType string `json:"symptom_type"`
	Days        int    `json:"days"`
}

type symptomFrequency struct {
	Count       int     `json:"count"`
	AvgSeverity float64 `json:"avg_severity"`
}

type symptomTimelineResult struct {
	Entries []symptomEntryView          `json:"entries"`
	Summary map[string]symptomFrequency `json:"summary"`
}

type symptomEntryView struct {
	SymptomType     string    `json:"symptom_type"`
	Severity        int       `json:"severity"`
	Notes           *string   `json:"notes,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	Triggers        []string  `json:"triggers,omitempty"`
}

func (getSymptomTimelineTool) Execute(ctx context.Context, ownerID string, reader store.Reader, arguments json.RawMessage) (json.RawMessage, error) {
	var args symptomTimelineArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, err
	}
	days := args.Days
	if days <= 0 {
		days = defaultSymptomTimelineDays
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	entries, err := reader.ListSymptoms(ctx, ownerID, store.ListFilter{
		Since:       &since,
		SymptomType: args.SymptomType,
	})
	if err != nil {
		return nil, err
	}

	result := symptomTimelineResult{
		Entries: make([]symptomEntryView, 0, len(entries)),
		Summary: map[string]symptomFrequency{},
	}
	totals := map[string]int{}
	counts := map[string]int{}
	for _, e := range entries {
		result.Entries = append(result.Entries, symptomEntryView{
			SymptomType:     e.SymptomType,
			Severity:        e.Severity,
			Notes:           e.Notes,
			RecordedAt:      e.RecordedAt,
			DurationMinutes: e.DurationMinutes,
			Triggers:        e.Triggers,
		})
		totals[e.SymptomType] += e.Severity
		counts[e.SymptomType]++
	}
	for symptomType, count := range counts {
		result.Summary[symptomType] = symptomFrequency{
			Count:       count,
			AvgSeverity: float64(totals[symptomType]) / float64(count),
		}
	}
	return json.Marshal(result)
}
