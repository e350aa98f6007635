package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourorg/healthassistant/internal/models"
)

func strPtr(s string) *string { return &s }

func TestMemorySessionCascadeDelete(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()

	session := &models.ChatSession{OwnerID: "u1"}
	if err := s.Sessions.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := s.Messages.AppendMessage(ctx, &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   "hi",
	}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	msgs, err := s.Messages.ListForSession(ctx, session.ID)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("ListForSession = %v, %v; want 1 message", msgs, err)
	}

	if err := s.Sessions.Delete(ctx, session.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	msgs, err = s.Messages.ListForSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListForSession after delete: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages after cascade delete, got %d", len(msgs))
	}

	if _, err := s.Sessions.Get(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryAppendMessageAdvancesLastActivity(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()

	session := &models.ChatSession{OwnerID: "u1"}
	_ = s.Sessions.Create(ctx, session)
	initial := session.CreatedAt

	later := initial.Add(time.Hour)
	if err := s.Messages.AppendMessage(ctx, &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   "hi",
		CreatedAt: later,
	}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	got, err := s.Sessions.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.LastActivityAt.Equal(later) {
		t.Errorf("LastActivityAt = %v, want %v", got.LastActivityAt, later)
	}
}

func TestMemoryMessagesOrderedByCreatedAtThenInsertion(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	session := &models.ChatSession{OwnerID: "u1"}
	_ = s.Sessions.Create(ctx, session)

	base := time.Now().UTC()
	_ = s.Messages.AppendMessage(ctx, &models.ChatMessage{SessionID: session.ID, Role: models.RoleUser, Content: "second-by-creation", CreatedAt: base.Add(time.Second)})
	_ = s.Messages.AppendMessage(ctx, &models.ChatMessage{SessionID: session.ID, Role: models.RoleUser, Content: "first-by-creation", CreatedAt: base})
	_ = s.Messages.AppendMessage(ctx, &models.ChatMessage{SessionID: session.ID, Role: models.RoleUser, Content: "tie-a", CreatedAt: base})
	_ = s.Messages.AppendMessage(ctx, &models.ChatMessage{SessionID: session.ID, Role: models.RoleUser, Content: "tie-b", CreatedAt: base})

	msgs, err := s.Messages.ListForSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListForSession: %v", err)
	}
	want := []string{"first-by-creation", "tie-a", "tie-b", "second-by-creation"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Content != w {
			t.Errorf("message %d = %q, want %q", i, msgs[i].Content, w)
		}
	}
}

func TestMemoryLabDedupByTestCode(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	recordedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	first := &models.LabResult{OwnerID: "u1", TestCode: strPtr("4548-4"), TestName: "HbA1c", Value: 5.6, Unit: "%", RecordedAt: recordedAt}
	if err := s.Labs.Create(ctx, first); err != nil {
		t.Fatalf("create first lab: %v", err)
	}

	second := &models.LabResult{OwnerID: "u1", TestCode: strPtr("4548-4"), TestName: "HbA1c", Value: 5.7, Unit: "%", RecordedAt: recordedAt}
	if err := s.Labs.Create(ctx, second); !errors.Is(err, ErrConflict) {
		t.Fatalf("create duplicate lab = %v, want ErrConflict", err)
	}

	labs, err := s.Labs.ListForUser(ctx, "u1", ListFilter{})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(labs) != 1 {
		t.Fatalf("got %d lab rows, want 1", len(labs))
	}
	if labs[0].Value != 5.6 {
		t.Errorf("surviving row value = %v, want 5.6 (skip-on-conflict keeps the original)", labs[0].Value)
	}
}

func TestMemoryLabDedupByTestNameWhenCodeNil(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	recordedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Labs.Create(ctx, &models.LabResult{OwnerID: "u1", TestName: "Glucose", Value: 90, Unit: "mg/dL", RecordedAt: recordedAt}); err != nil {
		t.Fatalf("create first: %v", err)
	}
	err := s.Labs.Create(ctx, &models.LabResult{OwnerID: "u1", TestName: "Glucose", Value: 95, Unit: "mg/dL", RecordedAt: recordedAt})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("create duplicate (nil code) = %v, want ErrConflict", err)
	}
}

func TestMemoryLabNoConflictAcrossDifferentCodes(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	recordedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Labs.Create(ctx, &models.LabResult{OwnerID: "u1", TestCode: strPtr("a"), TestName: "A", Value: 1, Unit: "u", RecordedAt: recordedAt}); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := s.Labs.Create(ctx, &models.LabResult{OwnerID: "u1", TestCode: strPtr("b"), TestName: "B", Value: 2, Unit: "u", RecordedAt: recordedAt}); err != nil {
		t.Fatalf("create b: %v", err)
	}
}

func TestMemoryLabCreateManySkipsDuplicatesWithinAndAcrossBatches(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Labs.Create(ctx, &models.LabResult{
		OwnerID: "u1", TestCode: strPtr("4548-4"), TestName: "HbA1c",
		Value: 5.6, Unit: "%", RecordedAt: day,
	}); err != nil {
		t.Fatalf("seed existing lab: %v", err)
	}

	inserted, skipped, err := s.Labs.CreateMany(ctx, []*models.LabResult{
		{OwnerID: "u1", TestCode: strPtr("4548-4"), TestName: "HbA1c", Value: 5.7, Unit: "%", RecordedAt: day},
		{OwnerID: "u1", TestName: "Glucose", Value: 95, Unit: "mg/dL", RecordedAt: day},
		{OwnerID: "u1", TestName: "Glucose", Value: 96, Unit: "mg/dL", RecordedAt: day},
	})
	if err != nil {
		t.Fatalf("CreateMany: %v", err)
	}
	if inserted != 1 || skipped != 2 {
		t.Fatalf("inserted=%d skipped=%d, want 1/2 (existing-row and within-batch duplicates)", inserted, skipped)
	}

	labs, err := s.Labs.ListForUser(ctx, "u1", ListFilter{})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(labs) != 2 {
		t.Fatalf("got %d rows, want 2", len(labs))
	}
	for _, l := range labs {
		if l.TestName == "HbA1c" && l.Value != 5.6 {
			t.Errorf("HbA1c value = %v, want the original 5.6", l.Value)
		}
	}
}

func TestMemoryDocumentDeleteNullsLabDocumentID(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()

	doc := &models.MedicalDocument{OwnerID: "u1", Title: "t", Status: models.DocumentCompleted}
	if err := s.Documents.Create(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	lab := &models.LabResult{OwnerID: "u1", DocumentID: &doc.ID, TestName: "X", Value: 1, Unit: "u", RecordedAt: time.Now()}
	if err := s.Labs.Create(ctx, lab); err != nil {
		t.Fatalf("create lab: %v", err)
	}

	if err := s.Documents.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("delete document: %v", err)
	}

	labs, err := s.Labs.ListForUser(ctx, "u1", ListFilter{})
	if err != nil {
		t.Fatalf("list labs: %v", err)
	}
	if len(labs) != 1 {
		t.Fatalf("expected lab row to survive document delete, got %d rows", len(labs))
	}
	if labs[0].DocumentID != nil {
		t.Errorf("expected DocumentID nulled out, got %v", *labs[0].DocumentID)
	}
}

func TestMemoryListFiltersByWindowAndLimit(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_ = s.Labs.Create(ctx, &models.LabResult{
			OwnerID:    "u1",
			TestCode:   strPtr(string(rune('a' + i))),
			TestName:   "T",
			Value:      float64(i),
			Unit:       "u",
			RecordedAt: base.AddDate(0, 0, i),
		})
	}

	since := base.AddDate(0, 0, 2)
	labs, err := s.Labs.ListForUser(ctx, "u1", ListFilter{Since: &since})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(labs) != 3 {
		t.Fatalf("got %d labs since day 2, want 3", len(labs))
	}

	limited, err := s.Labs.ListForUser(ctx, "u1", ListFilter{Descending: true, Limit: 2})
	if err != nil {
		t.Fatalf("ListForUser limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("got %d labs with limit 2, want 2", len(limited))
	}
	if limited[0].Value != 4 {
		t.Errorf("first (descending) row value = %v, want 4 (most recent)", limited[0].Value)
	}
}

func TestMemoryGetRecentLabsZeroDaysIsEmpty(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	_ = s.Labs.Create(ctx, &models.LabResult{OwnerID: "u1", TestName: "T", Value: 1, Unit: "u", RecordedAt: time.Now().UTC()})

	since := time.Now().UTC() // days=0 means "since now", nothing recorded after this instant
	labs, err := s.Labs.ListForUser(ctx, "u1", ListFilter{Since: &since})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(labs) != 0 {
		t.Fatalf("expected empty list for a zero-width window, got %d", len(labs))
	}
}

func TestMemoryUserEnsureExistsIsIdempotent(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()

	u1, err := s.Users.EnsureExists(ctx, "alice")
	if err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	u2, err := s.Users.EnsureExists(ctx, "alice")
	if err != nil {
		t.Fatalf("EnsureExists second call: %v", err)
	}
	if !u1.CreatedAt.Equal(u2.CreatedAt) {
		t.Errorf("second EnsureExists created a new row: %v vs %v", u1.CreatedAt, u2.CreatedAt)
	}
}

func TestMemorySetTitleIfEmptyOnlySetsOnce(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()
	session := &models.ChatSession{OwnerID: "u1"}
	_ = s.Sessions.Create(ctx, session)

	if err := s.Sessions.SetTitleIfEmpty(ctx, session.ID, "first title"); err != nil {
		t.Fatalf("SetTitleIfEmpty: %v", err)
	}
	if err := s.Sessions.SetTitleIfEmpty(ctx, session.ID, "second title"); err != nil {
		t.Fatalf("SetTitleIfEmpty: %v", err)
	}

	got, _ := s.Sessions.Get(ctx, session.ID)
	if got.Title == nil || *got.Title != "first title" {
		t.Errorf("title = %v, want \"first title\" (should not be overwritten)", got.Title)
	}
}

func TestMemoryDocumentsListPendingOnlyReturnsUploadingAndParsing(t *testing.T) {
	s := NewMemoryStores()
	ctx := context.Background()

	uploading := &models.MedicalDocument{OwnerID: "u1", Title: "a", Status: models.DocumentUploading}
	parsing := &models.MedicalDocument{OwnerID: "u2", Title: "b", Status: models.DocumentParsing}
	completed := &models.MedicalDocument{OwnerID: "u1", Title: "c", Status: models.DocumentCompleted}
	failed := &models.MedicalDocument{OwnerID: "u1", Title: "d", Status: models.DocumentFailed}
	for _, doc := range []*models.MedicalDocument{uploading, parsing, completed, failed} {
		if err := s.Documents.Create(ctx, doc); err != nil {
			t.Fatalf("create document: %v", err)
		}
	}

	pending, err := s.Documents.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending documents, want 2", len(pending))
	}
	gotIDs := map[string]bool{pending[0].ID: true, pending[1].ID: true}
	if !gotIDs[uploading.ID] || !gotIDs[parsing.ID] {
		t.Errorf("pending = %+v, want the uploading and parsing documents only", pending)
	}
}

func TestMemoryWearablesFilterBySince(t *testing.T) {
	s := NewMemoryStores()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	SeedWearables(s, "u1", "heart_rate", []models.WearableSample{
		{SeriesType: "heart_rate", RecordedAt: base, Value: 60},
		{SeriesType: "heart_rate", RecordedAt: base.AddDate(0, 0, 10), Value: 70},
	})

	samples, err := s.Wearables.ListForUser(context.Background(), "u1", "heart_rate", base.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(samples) != 1 || samples[0].Value != 70 {
		t.Fatalf("got %v, want one sample with value 70", samples)
	}
}
