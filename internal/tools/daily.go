package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yourorg/healthassistant/internal/models"
	"github.com/yourorg/healthassistant/internal/store"
)

type getDailySummaryTool struct{}

func (getDailySummaryTool) Name() string { return "get_daily_summary" }

func (getDailySummaryTool) Description() string {
	return "Combined snapshot for one calendar day: symptoms logged, labs drawn, and wearable aggregates."
}

func (getDailySummaryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"date": {"type": "string", "format": "date"}
		},
		"required": ["date"],
		"additionalProperties": false
	}`)
}

type dailySummaryArgs struct {
	Date string `json:"date"`
}

type dailySummaryResult struct {
	Date      string                         `json:"date"`
	Symptoms  []*models.SymptomEntry         `json:"symptoms"`
	Labs      []*models.LabResult            `json:"labs"`
	Wearables map[string]wearableSummaryResult `json:"wearables,omitempty"`
}

// wearableMetrics is the catalog of series names get_daily_summary rolls
// up; get_wearable_summary itself accepts any metric name the store holds.
var wearableMetrics = []string{"heart_rate", "steps", "hrv", "sleep"}

func (getDailySummaryTool) Execute(ctx context.Context, ownerID string, reader store.Reader, arguments json.RawMessage) (json.RawMessage, error) {
	var args dailySummaryArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, err
	}
	day, err := time.Parse("2006-01-02", args.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", args.Date, err)
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond)

	symptoms, err := reader.ListSymptoms(ctx, ownerID, store.ListFilter{Since: &dayStart, Until: &dayEnd})
	if err != nil {
		return nil, err
	}
	labs, err := reader.ListLabs(ctx, ownerID, store.ListFilter{Since: &dayStart, Until: &dayEnd})
	if err != nil {
		return nil, err
	}

	result := dailySummaryResult{
		Date:      args.Date,
		Symptoms:  symptoms,
		Labs:      labs,
		Wearables: map[string]wearableSummaryResult{},
	}

	for _, metric := range wearableMetrics {
		samples, err := reader.ListWearables(ctx, ownerID, metric, dayStart)
		if err != nil {
			return nil, err
		}
		var filtered []float64
		for _, s := range samples {
			if !s.RecordedAt.After(dayEnd) {
				filtered = append(filtered, s.Value)
			}
		}
		if len(filtered) == 0 {
			continue
		}
		summary := wearableSummaryResult{SampleCount: len(filtered)}
		var sum float64
		for i, v := range filtered {
			if i == 0 || v < summary.Min {
				summary.Min = v
			}
			if i == 0 || v > summary.Max {
				summary.Max = v
			}
			sum += v
		}
		summary.Mean = sum / float64(len(filtered))
		result.Wearables[metric] = summary
	}

	return json.Marshal(result)
}
