package ingest

import (
	"math"
	"testing"

	"github.com/yourorg/healthassistant/internal/models"
)

func floatPtr(f float64) *float64 { return &f }
func strPtrI(s string) *string    { return &s }

func TestValidateDropsMissingTestName(t *testing.T) {
	records := []extractedLab{
		{TestName: "  ", Value: floatPtr(5), Unit: "%", RecordedAt: "2025-01-01"},
	}
	result := validate("u1", records)
	if len(result.Valid) != 0 || result.Dropped != 1 {
		t.Fatalf("result = %+v, want 0 valid / 1 dropped", result)
	}
}

func TestValidateDropsNonFiniteValue(t *testing.T) {
	nan := math.NaN()
	records := []extractedLab{
		{TestName: "Glucose", Value: &nan, Unit: "mg/dL", RecordedAt: "2025-01-01"},
		{TestName: "Glucose", Value: nil, Unit: "mg/dL", RecordedAt: "2025-01-01"},
	}
	result := validate("u1", records)
	if len(result.Valid) != 0 || result.Dropped != 2 {
		t.Fatalf("result = %+v, want 0 valid / 2 dropped", result)
	}
}

func TestValidateDropsEmptyUnit(t *testing.T) {
	records := []extractedLab{
		{TestName: "Glucose", Value: floatPtr(95), Unit: "  ", RecordedAt: "2025-01-01"},
	}
	result := validate("u1", records)
	if len(result.Valid) != 0 || result.Dropped != 1 {
		t.Fatalf("result = %+v, want 0 valid / 1 dropped", result)
	}
}

func TestValidateDropsUnparseableDate(t *testing.T) {
	records := []extractedLab{
		{TestName: "Glucose", Value: floatPtr(95), Unit: "mg/dL", RecordedAt: "not-a-date"},
	}
	result := validate("u1", records)
	if len(result.Valid) != 0 || result.Dropped != 1 {
		t.Fatalf("result = %+v, want 0 valid / 1 dropped", result)
	}
}

func TestValidateAcceptsMultipleDateLayouts(t *testing.T) {
	records := []extractedLab{
		{TestName: "A", Value: floatPtr(1), Unit: "u", RecordedAt: "2025-01-01"},
		{TestName: "B", Value: floatPtr(2), Unit: "u", RecordedAt: "2025-01-01T12:00:00Z"},
		{TestName: "C", Value: floatPtr(3), Unit: "u", RecordedAt: "2025-01-01T12:00:00"},
	}
	result := validate("u1", records)
	if len(result.Valid) != 3 || result.Dropped != 0 {
		t.Fatalf("result = %+v, want 3 valid / 0 dropped", result)
	}
}

func TestValidateNormalizesStatusToLowerCase(t *testing.T) {
	records := []extractedLab{
		{TestName: "Glucose", Value: floatPtr(95), Unit: "mg/dL", RecordedAt: "2025-01-01", Status: strPtrI("HIGH")},
	}
	result := validate("u1", records)
	if len(result.Valid) != 1 {
		t.Fatalf("result = %+v, want 1 valid", result)
	}
	got := result.Valid[0]
	if got.Status == nil || *got.Status != models.LabStatus("high") {
		t.Errorf("status = %v, want \"high\"", got.Status)
	}
}

func TestValidateTrimsWhitespaceFromTestNameAndUnit(t *testing.T) {
	records := []extractedLab{
		{TestName: "  Glucose  ", Value: floatPtr(95), Unit: " mg/dL ", RecordedAt: "2025-01-01"},
	}
	result := validate("u1", records)
	if len(result.Valid) != 1 {
		t.Fatalf("result = %+v, want 1 valid", result)
	}
	if got := result.Valid[0]; got.TestName != "Glucose" || got.Unit != "mg/dL" {
		t.Errorf("got %+v, want trimmed TestName/Unit", got)
	}
}

func TestValidateSetsOwnerIDOnEveryRecord(t *testing.T) {
	records := []extractedLab{
		{TestName: "Glucose", Value: floatPtr(95), Unit: "mg/dL", RecordedAt: "2025-01-01"},
	}
	result := validate("owner-123", records)
	if len(result.Valid) != 1 || result.Valid[0].OwnerID != "owner-123" {
		t.Fatalf("result = %+v, want OwnerID owner-123", result)
	}
}
