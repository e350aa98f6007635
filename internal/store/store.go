// Package store defines the repository contracts the core consumes, and
// provides both a Postgres-backed and an in-memory implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/yourorg/healthassistant/internal/models"
)

var (
	// ErrNotFound is returned when a lookup by ID finds no row.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned on a uniqueness violation, e.g. a duplicate
	// lab result for the same (owner, test_code|test_name, recorded_at).
	ErrConflict = errors.New("store: conflict")

	// ErrStreamActive is returned when a second message stream is started
	// on a session that already has one in flight.
	ErrStreamActive = errors.New("store: session already streaming")
)

// ListFilter narrows List queries by time window, category, and sort order.
type ListFilter struct {
	Since *time.Time
	Until *time.Time

	// TestName/SymptomType filter LabResult/SymptomEntry listings.
	TestName    string
	SymptomType string

	Limit int
	// Descending sorts by the entity's natural timestamp, newest first.
	Descending bool
}

// UserStore manages the User entity. Lifecycle is owned externally; this
// module only ever reads.
type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	EnsureExists(ctx context.Context, id string) (*models.User, error)
}

// ChatSessionStore manages ChatSession rows.
type ChatSessionStore interface {
	Create(ctx context.Context, session *models.ChatSession) error
	Get(ctx context.Context, id string) (*models.ChatSession, error)
	ListForUser(ctx context.Context, ownerID string) ([]*models.ChatSession, error)
	// Delete cascades to the session's messages.
	Delete(ctx context.Context, id string) error
	// TouchActivity advances last_activity_at to at least `at`.
	TouchActivity(ctx context.Context, id string, at time.Time) error
	// SetTitle fills in an auto-derived title, only if one isn't set yet.
	SetTitleIfEmpty(ctx context.Context, id, title string) error
}

// ChatMessageStore manages ChatMessage rows.
type ChatMessageStore interface {
	// AppendMessage atomically inserts the message and advances the
	// owning session's last_activity_at.
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	ListForSession(ctx context.Context, sessionID string) ([]*models.ChatMessage, error)
	DeleteForSession(ctx context.Context, sessionID string) error
}

// DocumentStore manages MedicalDocument rows.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.MedicalDocument) error
	Get(ctx context.Context, id string) (*models.MedicalDocument, error)
	ListForUser(ctx context.Context, ownerID string) ([]*models.MedicalDocument, error)
	// ListPending returns every document still sitting in "uploading" or
	// "parsing" across all owners, for the startup redelivery sweep that
	// recovers uploads an earlier process instance never finished.
	ListPending(ctx context.Context) ([]*models.MedicalDocument, error)
	// Delete removes the document row only; associated LabResults are kept
	// with their document_id nulled out.
	Delete(ctx context.Context, id string) error
	// UpdateStatus transitions status and optionally writes raw_text /
	// parsed_data, atomically with the transition.
	UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, rawText *string, parsedData []byte) error
}

// LabResultStore manages LabResult rows.
type LabResultStore interface {
	// Create enforces the dedup uniqueness rule and returns ErrConflict,
	// never a partial write, on collision.
	Create(ctx context.Context, lab *models.LabResult) error
	// CreateMany inserts the batch in one transaction: rows colliding with
	// the dedup uniqueness rule are skipped, and an error on any other row
	// rolls back the whole batch so a failed document never leaves a
	// partial set of labs behind.
	CreateMany(ctx context.Context, labs []*models.LabResult) (inserted, skipped int, err error)
	ListForUser(ctx context.Context, ownerID string, filter ListFilter) ([]*models.LabResult, error)
	DistinctTestNames(ctx context.Context, ownerID string) ([]string, error)
}

// SymptomStore manages SymptomEntry rows.
type SymptomStore interface {
	Create(ctx context.Context, entry *models.SymptomEntry) error
	ListForUser(ctx context.Context, ownerID string, filter ListFilter) ([]*models.SymptomEntry, error)
	DistinctTypes(ctx context.Context, ownerID string) ([]string, error)
}

// WearableStore is a read-only view over the externally-ingested wearable
// time series. The core only reads summaries; it neither ingests nor
// mutates these rows.
type WearableStore interface {
	ListForUser(ctx context.Context, ownerID, metric string, since time.Time) ([]models.WearableSample, error)
}

// Set groups every repository the core depends on.
type Set struct {
	Users     UserStore
	Sessions  ChatSessionStore
	Messages  ChatMessageStore
	Documents DocumentStore
	Labs      LabResultStore
	Symptoms  SymptomStore
	Wearables WearableStore

	closer func() error
}

// Close releases any underlying resources (e.g. a *sql.DB pool).
func (s Set) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
