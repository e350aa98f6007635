package tools

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/yourorg/healthassistant/internal/store"
)

const defaultWearableSummaryDays = 30

type getWearableSummaryTool struct{}

func (getWearableSummaryTool) Name() string { return "get_wearable_summary" }

func (getWearableSummaryTool) Description() string {
	return "Summarize a wearable metric (e.g. heart_rate, steps, hrv, sleep) over a trailing window."
}

func (getWearableSummaryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"metric": {"type": "string"},
			"days": {"type": "integer", "minimum": 1, "default": 30}
		},
		"required": ["metric"],
		"additionalProperties": false
	}`)
}

type wearableSummaryArgs struct {
	Metric string `json:"metric"`
	Days   int    `json:"days"`
}

type dailyBucket struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type wearableSummaryResult struct {
	Min          float64       `json:"min"`
	Max          float64       `json:"max"`
	Mean         float64       `json:"mean"`
	SampleCount  int           `json:"sample_count"`
	DailyBuckets []dailyBucket `json:"daily_buckets,omitempty"`
}

func (getWearableSummaryTool) Execute(ctx context.Context, ownerID string, reader store.Reader, arguments json.RawMessage) (json.RawMessage, error) {
	var args wearableSummaryArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, err
	}
	days := args.Days
	if days <= 0 {
		days = defaultWearableSummaryDays
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	samples, err := reader.ListWearables(ctx, ownerID, args.Metric, since)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return json.Marshal(wearableSummaryResult{})
	}

	result := wearableSummaryResult{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	buckets := map[string][]float64{}
	for _, s := range samples {
		if s.Value < result.Min {
			result.Min = s.Value
		}
		if s.Value > result.Max {
			result.Max = s.Value
		}
		sum += s.Value
		result.SampleCount++
		key := dayKey(s.RecordedAt)
		buckets[key] = append(buckets[key], s.Value)
	}
	result.Mean = sum / float64(result.SampleCount)

	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		values := buckets[d]
		var total float64
		for _, v := range values {
			total += v
		}
		result.DailyBuckets = append(result.DailyBuckets, dailyBucket{Date: d, Value: total / float64(len(values))})
	}

	return json.Marshal(result)
}
