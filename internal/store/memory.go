package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/healthassistant/internal/models"
)

// NewMemoryStores returns a fully in-memory Set, used by package tests and
// by cmd/healthassistant when STORE_URL is unset.
func NewMemoryStores() Set {
	m := &memoryBackend{
		users:     map[string]*models.User{},
		sessions:  map[string]*models.ChatSession{},
		messages:  map[string][]*models.ChatMessage{},
		docs:      map[string]*models.MedicalDocument{},
		labs:      map[string][]*models.LabResult{},
		symptoms:  map[string][]*models.SymptomEntry{},
		wearables: map[string][]models.WearableSample{},
	}
	return Set{
		Users:     (*memoryUsers)(m),
		Sessions:  (*memorySessions)(m),
		Messages:  (*memoryMessages)(m),
		Documents: (*memoryDocuments)(m),
		Labs:      (*memoryLabs)(m),
		Symptoms:  (*memorySymptoms)(m),
		Wearables: (*memoryWearables)(m),
	}
}

// memoryBackend holds all in-memory state behind one mutex: a single
// RWMutex guarding plain Go maps, with every exported method returning
// defensive copies.
type memoryBackend struct {
	mu sync.RWMutex

	users     map[string]*models.User
	sessions  map[string]*models.ChatSession
	messages  map[string][]*models.ChatMessage // sessionID -> messages
	docs      map[string]*models.MedicalDocument
	labs      map[string][]*models.LabResult // ownerID -> labs
	symptoms  map[string][]*models.SymptomEntry
	wearables map[string][]models.WearableSample // ownerID:metric -> samples
}

// SeedWearables lets tests and the local "try it" mode populate the
// read-only wearable series directly.
func (m *memoryBackend) SeedWearables(ownerID, metric string, samples []models.WearableSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wearables[ownerID+":"+metric] = append([]models.WearableSample{}, samples...)
}

// SeedWearables exposes the same hook on the Set for callers that only
// have the interfaces in hand.
func SeedWearables(s Set, ownerID, metric string, samples []models.WearableSample) {
	if w, ok := s.Wearables.(*memoryWearables); ok {
		(*memoryBackend)(w).SeedWearables(ownerID, metric, samples)
	}
}

type memoryUsers memoryBackend

func (m *memoryUsers) Get(ctx context.Context, id string) (*models.User, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) EnsureExists(ctx context.Context, id string) (*models.User, error) {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	u := &models.User{ID: id, CreatedAt: time.Now().UTC()}
	b.users[id] = u
	cp := *u
	return &cp, nil
}

type memorySessions memoryBackend

func (m *memorySessions) Create(ctx context.Context, session *models.ChatSession) error {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	session.LastActivityAt = session.CreatedAt
	cp := *session
	b.sessions[session.ID] = &cp
	return nil
}

func (m *memorySessions) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memorySessions) ListForUser(ctx context.Context, ownerID string) ([]*models.ChatSession, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*models.ChatSession
	for _, s := range b.sessions {
		if s.OwnerID == ownerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memorySessions) Delete(ctx context.Context, id string) error {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(b.sessions, id)
	delete(b.messages, id)
	return nil
}

func (m *memorySessions) TouchActivity(ctx context.Context, id string, at time.Time) error {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if at.After(s.LastActivityAt) {
		s.LastActivityAt = at
	}
	return nil
}

func (m *memorySessions) SetTitleIfEmpty(ctx context.Context, id, title string) error {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.Title == nil || *s.Title == "" {
		t := title
		s.Title = &t
	}
	return nil
}

type memoryMessages memoryBackend

func (m *memoryMessages) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[msg.SessionID]
	if !ok {
		return ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	b.messages[msg.SessionID] = append(b.messages[msg.SessionID], &cp)
	if msg.CreatedAt.After(s.LastActivityAt) {
		s.LastActivityAt = msg.CreatedAt
	}
	return nil
}

func (m *memoryMessages) ListForSession(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs := b.messages[sessionID]
	out := make([]*models.ChatMessage, len(msgs))
	for i, msg := range msgs {
		cp := *msg
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryMessages) DeleteForSession(ctx context.Context, sessionID string) error {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.messages, sessionID)
	return nil
}

type memoryDocuments memoryBackend

func (m *memoryDocuments) Create(ctx context.Context, doc *models.MedicalDocument) error {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	cp := *doc
	b.docs[doc.ID] = &cp
	return nil
}

func (m *memoryDocuments) Get(ctx context.Context, id string) (*models.MedicalDocument, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memoryDocuments) ListForUser(ctx context.Context, ownerID string) ([]*models.MedicalDocument, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*models.MedicalDocument
	for _, d := range b.docs {
		if d.OwnerID == ownerID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryDocuments) ListPending(ctx context.Context) ([]*models.MedicalDocument, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*models.MedicalDocument
	for _, d := range b.docs {
		if d.Status == models.DocumentUploading || d.Status == models.DocumentParsing {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryDocuments) Delete(ctx context.Context, id string) error {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.docs[id]; !ok {
		return ErrNotFound
	}
	delete(b.docs, id)
	// LabResult rows outlive the document; null out their reference.
	for _, labs := range b.labs {
		for _, l := range labs {
			if l.DocumentID != nil && *l.DocumentID == id {
				l.DocumentID = nil
			}
		}
	}
	return nil
}

func (m *memoryDocuments) UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, rawText *string, parsedData []byte) error {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.docs[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = status
	if rawText != nil {
		d.RawText = rawText
	}
	if parsedData != nil {
		d.ParsedData = parsedData
	}
	return nil
}

type memoryLabs memoryBackend

func (m *memoryLabs) Create(ctx context.Context, lab *models.LabResult) error {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.labs[lab.OwnerID] {
		if labConflicts(existing, lab) {
			return ErrConflict
		}
	}
	if lab.ID == "" {
		lab.ID = uuid.NewString()
	}
	cp := *lab
	b.labs[lab.OwnerID] = append(b.labs[lab.OwnerID], &cp)
	return nil
}

// CreateMany inserts the batch atomically under one lock: dedup
// collisions (against existing rows or earlier rows in the same batch)
// are skipped, everything else lands together.
func (m *memoryLabs) CreateMany(ctx context.Context, labs []*models.LabResult) (int, int, error) {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()

	inserted, skipped := 0, 0
	for _, lab := range labs {
		conflict := false
		for _, existing := range b.labs[lab.OwnerID] {
			if labConflicts(existing, lab) {
				conflict = true
				break
			}
		}
		if conflict {
			skipped++
			continue
		}
		if lab.ID == "" {
			lab.ID = uuid.NewString()
		}
		cp := *lab
		b.labs[lab.OwnerID] = append(b.labs[lab.OwnerID], &cp)
		inserted++
	}
	return inserted, skipped, nil
}

func labConflicts(a, b *models.LabResult) bool {
	if !a.RecordedAt.Equal(b.RecordedAt) {
		return false
	}
	if a.TestCode != nil && b.TestCode != nil {
		return *a.TestCode == *b.TestCode
	}
	if a.TestCode == nil && b.TestCode == nil {
		return a.TestName == b.TestName
	}
	return false
}

func (m *memoryLabs) ListForUser(ctx context.Context, ownerID string, filter ListFilter) ([]*models.LabResult, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*models.LabResult
	for _, l := range b.labs[ownerID] {
		if !matchesWindow(l.RecordedAt, filter) {
			continue
		}
		if filter.TestName != "" && l.TestName != filter.TestName {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.Descending {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memoryLabs) DistinctTestNames(ctx context.Context, ownerID string) ([]string, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, l := range b.labs[ownerID] {
		if !seen[l.TestName] {
			seen[l.TestName] = true
			out = append(out, l.TestName)
		}
	}
	sort.Strings(out)
	return out, nil
}

type memorySymptoms memoryBackend

func (m *memorySymptoms) Create(ctx context.Context, entry *models.SymptomEntry) error {
	b := (*memoryBackend)(m)
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	cp := *entry
	b.symptoms[entry.OwnerID] = append(b.symptoms[entry.OwnerID], &cp)
	return nil
}

func (m *memorySymptoms) ListForUser(ctx context.Context, ownerID string, filter ListFilter) ([]*models.SymptomEntry, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*models.SymptomEntry
	for _, e := range b.symptoms[ownerID] {
		if !matchesWindow(e.RecordedAt, filter) {
			continue
		}
		if filter.SymptomType != "" && e.SymptomType != filter.SymptomType {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.Descending {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memorySymptoms) DistinctTypes(ctx context.Context, ownerID string) ([]string, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range b.symptoms[ownerID] {
		if !seen[e.SymptomType] {
			seen[e.SymptomType] = true
			out = append(out, e.SymptomType)
		}
	}
	sort.Strings(out)
	return out, nil
}

type memoryWearables memoryBackend

func (m *memoryWearables) ListForUser(ctx context.Context, ownerID, metric string, since time.Time) ([]models.WearableSample, error) {
	b := (*memoryBackend)(m)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.WearableSample
	for _, s := range b.wearables[ownerID+":"+metric] {
		if s.RecordedAt.Before(since) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

func matchesWindow(t time.Time, filter ListFilter) bool {
	if filter.Since != nil && t.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && t.After(*filter.Until) {
		return false
	}
	return true
}
