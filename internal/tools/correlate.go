package tools

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/yourorg/healthassistant/internal/store"
)

const (
	defaultCorrelateDays = 90
	minCorrelationOverlap = 5
)

type correlateMetricsTool struct{}

func (correlateMetricsTool) Name() string { return "correlate_metrics" }

func (correlateMetricsTool) Description() string {
	return "Compute the Pearson correlation between two daily-aligned metric series (lab, symptom, or wearable)."
}

func (correlateMetricsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"metric_a": {"type": "string"},
			"metric_b": {"type": "string"},
			"days": {"type": "integer", "minimum": 1, "default": 90}
		},
		"required": ["metric_a", "metric_b"],
		"additionalProperties": false
	}`)
}

type correlateArgs struct {
	MetricA string `json:"metric_a"`
	MetricB string `json:"metric_b"`
	Days    int    `json:"days"`
}

type correlateResult struct {
	Coefficient      *float64 `json:"coefficient,omitempty"`
	SampleSize       int      `json:"sample_size"`
	InsufficientData bool     `json:"insufficient_data,omitempty"`
}

func (correlateMetricsTool) Execute(ctx context.Context, ownerID string, reader store.Reader, arguments json.RawMessage) (json.RawMessage, error) {
	var args correlateArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, err
	}
	days := args.Days
	if days <= 0 {
		days = defaultCorrelateDays
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	seriesA, err := resolveDailySeries(ctx, reader, ownerID, args.MetricA, since)
	if err != nil {
		return nil, err
	}
	seriesB, err := resolveDailySeries(ctx, reader, ownerID, args.MetricB, since)
	if err != nil {
		return nil, err
	}

	var xs, ys []float64
	for day, a := range seriesA {
		if b, ok := seriesB[day]; ok {
			xs = append(xs, a)
			ys = append(ys, b)
		}
	}

	if len(xs) < minCorrelationOverlap {
		return json.Marshal(correlateResult{SampleSize: len(xs), InsufficientData: true})
	}

	coeff := pearson(xs, ys)
	return json.Marshal(correlateResult{Coefficient: &coeff, SampleSize: len(xs)})
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumX2 += xs[i] * xs[i]
		sumY2 += ys[i] * ys[i]
	}
	numerator := n*sumXY - sumX*sumY
	denominator := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}
