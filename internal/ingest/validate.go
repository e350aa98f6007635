package ingest

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/yourorg/healthassistant/internal/models"
)

var errInvalidRecordedAt = errors.New("recorded_at is not a parseable date")

// validationResult splits extracted records into what can be persisted
// and how many were dropped.
type validationResult struct {
	Valid   []models.LabResult
	Dropped int
}

// validate applies the pure, stateless checks: required fields present,
// value finite and numeric, unit non-empty, recorded_at parseable.
// Status is normalized to lower-case or dropped to nil.
func validate(ownerID string, records []extractedLab) validationResult {
	result := validationResult{Valid: make([]models.LabResult, 0, len(records))}

	for _, r := range records {
		if strings.TrimSpace(r.TestName) == "" {
			result.Dropped++
			continue
		}
		if r.Value == nil || math.IsNaN(*r.Value) || math.IsInf(*r.Value, 0) {
			result.Dropped++
			continue
		}
		if strings.TrimSpace(r.Unit) == "" {
			result.Dropped++
			continue
		}
		recordedAt, err := parseRecordedAt(r.RecordedAt)
		if err != nil {
			result.Dropped++
			continue
		}

		lab := models.LabResult{
			OwnerID:      ownerID,
			TestName:     strings.TrimSpace(r.TestName),
			TestCode:     r.TestCode,
			Value:        *r.Value,
			Unit:         strings.TrimSpace(r.Unit),
			ReferenceMin: r.ReferenceMin,
			ReferenceMax: r.ReferenceMax,
			RecordedAt:   recordedAt,
		}
		if r.Status != nil {
			normalized := models.LabStatus(strings.ToLower(strings.TrimSpace(*r.Status)))
			if normalized != "" {
				lab.Status = &normalized
			}
		}
		result.Valid = append(result.Valid, lab)
	}

	return result
}

func parseRecordedAt(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errInvalidRecordedAt
}
