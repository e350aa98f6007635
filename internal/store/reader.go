package store

import (
	"context"
	"time"

	"github.com/yourorg/healthassistant/internal/models"
)

// Reader is the narrow, read-only view of Set handed to tool
// implementations, which must not mutate the store. Restricting the
// type, not just the convention, is what makes that contract enforceable
// at compile time.
type Reader interface {
	ListLabs(ctx context.Context, ownerID string, filter ListFilter) ([]*models.LabResult, error)
	ListSymptoms(ctx context.Context, ownerID string, filter ListFilter) ([]*models.SymptomEntry, error)
	ListWearables(ctx context.Context, ownerID, metric string, since time.Time) ([]models.WearableSample, error)
	ListDocuments(ctx context.Context, ownerID string) ([]*models.MedicalDocument, error)
}

// NewReader adapts a full Set down to a Reader.
func NewReader(s Set) Reader {
	return setReader{s}
}

type setReader struct{ set Set }

func (r setReader) ListLabs(ctx context.Context, ownerID string, filter ListFilter) ([]*models.LabResult, error) {
	return r.set.Labs.ListForUser(ctx, ownerID, filter)
}

func (r setReader) ListSymptoms(ctx context.Context, ownerID string, filter ListFilter) ([]*models.SymptomEntry, error) {
	return r.set.Symptoms.ListForUser(ctx, ownerID, filter)
}

func (r setReader) ListWearables(ctx context.Context, ownerID, metric string, since time.Time) ([]models.WearableSample, error) {
	return r.set.Wearables.ListForUser(ctx, ownerID, metric, since)
}

func (r setReader) ListDocuments(ctx context.Context, ownerID string) ([]*models.MedicalDocument, error) {
	return r.set.Documents.ListForUser(ctx, ownerID)
}
