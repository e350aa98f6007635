package tools

import (
	"context"
	"time"

	"github.com/yourorg/healthassistant/internal/store"
)

// dayKey aligns a timestamp to a calendar day. The core runs in UTC
// throughout; all day-granularity alignment below uses UTC calendar days.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// resolveDailySeries maps metric to a wearable series, a lab series, or a
// symptom series (using severity as the value), trying each in that order
// and returning the first with samples in the window. Wearable goes first
// because its metric names are the least likely to collide with a lab
// test name or a symptom type.
func resolveDailySeries(ctx context.Context, reader store.Reader, ownerID, metric string, since time.Time) (map[string]float64, error) {
	if wearable, err := dailyWearableSeries(ctx, reader, ownerID, metric, since); err != nil {
		return nil, err
	} else if len(wearable) > 0 {
		return wearable, nil
	}

	labs, err := reader.ListLabs(ctx, ownerID, store.ListFilter{Since: &since, TestName: metric})
	if err != nil {
		return nil, err
	}
	if len(labs) > 0 {
		series := map[string]float64{}
		for _, l := range labs {
			series[dayKey(l.RecordedAt)] = l.Value
		}
		return series, nil
	}

	symptoms, err := reader.ListSymptoms(ctx, ownerID, store.ListFilter{Since: &since, SymptomType: metric})
	if err != nil {
		return nil, err
	}
	series := map[string]float64{}
	totals := map[string]float64{}
	counts := map[string]int{}
	for _, s := range symptoms {
		key := dayKey(s.RecordedAt)
		totals[key] += float64(s.Severity)
		counts[key]++
	}
	for key, total := range totals {
		series[key] = total / float64(counts[key])
	}
	return series, nil
}

func dailyWearableSeries(ctx context.Context, reader store.Reader, ownerID, metric string, since time.Time) (map[string]float64, error) {
	samples, err := reader.ListWearables(ctx, ownerID, metric, since)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	totals := map[string]float64{}
	counts := map[string]int{}
	for _, s := range samples {
		key := dayKey(s.RecordedAt)
		totals[key] += s.Value
		counts[key]++
	}
	out := make(map[string]float64, len(totals))
	for key, total := range totals {
		out[key] = total / float64(counts[key])
	}
	return out, nil
}
