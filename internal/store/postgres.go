package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/yourorg/healthassistant/internal/models"
)

// PostgresConfig tunes the shared *sql.DB pool.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns conservative pool settings suitable for a
// single-process deployment.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// NewPostgresStores opens the shared pool and returns a Set backed by it.
func NewPostgresStores(dsn string, config *PostgresConfig) (Set, error) {
	if strings.TrimSpace(dsn) == "" {
		return Set{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return Set{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return Set{}, fmt.Errorf("ping database: %w", err)
	}

	return Set{
		Users:     &pgUsers{db: db},
		Sessions:  &pgSessions{db: db},
		Messages:  &pgMessages{db: db},
		Documents: &pgDocuments{db: db},
		Labs:      &pgLabs{db: db},
		Symptoms:  &pgSymptoms{db: db},
		Wearables: &pgWearables{db: db},
		closer:    db.Close,
	}, nil
}

type pgUsers struct{ db *sql.DB }

func (s *pgUsers) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *pgUsers) EnsureExists(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, created_at) VALUES ($1, now())
		 ON CONFLICT (id) DO UPDATE SET id = users.id
		 RETURNING id, created_at`, id,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return &u, nil
}

type pgSessions struct{ db *sql.DB }

func (s *pgSessions) Create(ctx context.Context, session *models.ChatSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	session.LastActivityAt = session.CreatedAt
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, owner_id, title, created_at, last_activity_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		session.ID, session.OwnerID, session.Title, session.CreatedAt, session.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *pgSessions) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	var sess models.ChatSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, created_at, last_activity_at
		 FROM chat_sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.CreatedAt, &sess.LastActivityAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *pgSessions) ListForUser(ctx context.Context, ownerID string) ([]*models.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, created_at, last_activity_at
		 FROM chat_sessions WHERE owner_id = $1 ORDER BY created_at ASC`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatSession
	for rows.Next() {
		var sess models.ChatSession
		if err := rows.Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.CreatedAt, &sess.LastActivityAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *pgSessions) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgSessions) TouchActivity(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET last_activity_at = $2
		 WHERE id = $1 AND last_activity_at < $2`, id, at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *pgSessions) SetTitleIfEmpty(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = $2
		 WHERE id = $1 AND (title IS NULL OR title = '')`, id, title)
	if err != nil {
		return fmt.Errorf("set session title: %w", err)
	}
	return nil
}

type pgMessages struct{ db *sql.DB }

func (s *pgMessages) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	var metaBytes []byte
	if msg.Metadata != nil {
		var err error
		metaBytes, err = json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, metadata, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, metaBytes, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET last_activity_at = $2
		 WHERE id = $1 AND last_activity_at < $2`, msg.SessionID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		// Either already fresher, or the session doesn't exist; disambiguate.
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM chat_sessions WHERE id = $1)`, msg.SessionID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check session exists: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}

	return tx.Commit()
}

func (s *pgMessages) ListForSession(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, metadata, created_at
		 FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		var metaBytes []byte
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &metaBytes, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(metaBytes) > 0 {
			var meta models.MessageMetadata
			if err := json.Unmarshal(metaBytes, &meta); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
			msg.Metadata = &meta
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (s *pgMessages) DeleteForSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

type pgDocuments struct{ db *sql.DB }

func (s *pgDocuments) Create(ctx context.Context, doc *models.MedicalDocument) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO medical_documents
		 (id, owner_id, title, original_filename, document_type, file_path, file_type,
		  raw_text, parsed_data, document_date, status, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		doc.ID, doc.OwnerID, doc.Title, doc.OriginalFilename, doc.DocumentType, doc.FilePath,
		doc.FileType, doc.RawText, []byte(doc.ParsedData), doc.DocumentDate, doc.Status, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *pgDocuments) Get(ctx context.Context, id string) (*models.MedicalDocument, error) {
	var doc models.MedicalDocument
	var parsedData []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, original_filename, document_type, file_path, file_type,
		        raw_text, parsed_data, document_date, status, created_at
		 FROM medical_documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.OriginalFilename, &doc.DocumentType, &doc.FilePath,
		&doc.FileType, &doc.RawText, &parsedData, &doc.DocumentDate, &doc.Status, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	doc.ParsedData = parsedData
	return &doc, nil
}

func (s *pgDocuments) ListForUser(ctx context.Context, ownerID string) ([]*models.MedicalDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, original_filename, document_type, file_path, file_type,
		        raw_text, parsed_data, document_date, status, created_at
		 FROM medical_documents WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*models.MedicalDocument
	for rows.Next() {
		var doc models.MedicalDocument
		var parsedData []byte
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.OriginalFilename, &doc.DocumentType,
			&doc.FilePath, &doc.FileType, &doc.RawText, &parsedData, &doc.DocumentDate, &doc.Status, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.ParsedData = parsedData
		out = append(out, &doc)
	}
	return out, rows.Err()
}

func (s *pgDocuments) ListPending(ctx context.Context) ([]*models.MedicalDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, original_filename, document_type, file_path, file_type,
		        raw_text, parsed_data, document_date, status, created_at
		 FROM medical_documents WHERE status IN ('uploading', 'parsing') ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	defer rows.Close()

	var out []*models.MedicalDocument
	for rows.Next() {
		var doc models.MedicalDocument
		var parsedData []byte
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.OriginalFilename, &doc.DocumentType,
			&doc.FilePath, &doc.FileType, &doc.RawText, &parsedData, &doc.DocumentDate, &doc.Status, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending document: %w", err)
		}
		doc.ParsedData = parsedData
		out = append(out, &doc)
	}
	return out, rows.Err()
}

func (s *pgDocuments) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE lab_results SET document_id = NULL WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("unlink labs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM medical_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *pgDocuments) UpdateStatus(ctx context.Context, id string, status models.DocumentStatus, rawText *string, parsedData []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medical_documents
		 SET status = $2,
		     raw_text = COALESCE($3, raw_text),
		     parsed_data = COALESCE($4, parsed_data)
		 WHERE id = $1`,
		id, status, rawText, nullIfEmpty(parsedData),
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

type pgLabs struct{ db *sql.DB }

func (s *pgLabs) Create(ctx context.Context, lab *models.LabResult) error {
	if lab.ID == "" {
		lab.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lab_results
		 (id, owner_id, document_id, test_name, test_code, value, unit,
		  reference_min, reference_max, status, recorded_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		lab.ID, lab.OwnerID, lab.DocumentID, lab.TestName, lab.TestCode, lab.Value, lab.Unit,
		lab.ReferenceMin, lab.ReferenceMax, lab.Status, lab.RecordedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("create lab result: %w", err)
	}
	return nil
}

// CreateMany inserts the batch inside one transaction. ON CONFLICT DO
// NOTHING turns dedup collisions into skips without aborting the
// transaction; any other failure rolls the whole batch back.
func (s *pgLabs) CreateMany(ctx context.Context, labs []*models.LabResult) (int, int, error) {
	if len(labs) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	inserted, skipped := 0, 0
	for _, lab := range labs {
		if lab.ID == "" {
			lab.ID = uuid.NewString()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO lab_results
			 (id, owner_id, document_id, test_name, test_code, value, unit,
			  reference_min, reference_max, status, recorded_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			 ON CONFLICT DO NOTHING`,
			lab.ID, lab.OwnerID, lab.DocumentID, lab.TestName, lab.TestCode, lab.Value, lab.Unit,
			lab.ReferenceMin, lab.ReferenceMax, lab.Status, lab.RecordedAt,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("create lab result: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			skipped++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit lab batch: %w", err)
	}
	return inserted, skipped, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate")
}

func (s *pgLabs) ListForUser(ctx context.Context, ownerID string, filter ListFilter) ([]*models.LabResult, error) {
	query := `SELECT id, owner_id, document_id, test_name, test_code, value, unit,
	                 reference_min, reference_max, status, recorded_at
	          FROM lab_results WHERE owner_id = $1`
	args := []any{ownerID}
	query, args = applyListFilter(query, args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lab results: %w", err)
	}
	defer rows.Close()

	var out []*models.LabResult
	for rows.Next() {
		var l models.LabResult
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.DocumentID, &l.TestName, &l.TestCode, &l.Value, &l.Unit,
			&l.ReferenceMin, &l.ReferenceMax, &l.Status, &l.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan lab result: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func applyListFilter(query string, args []any, filter ListFilter) (string, []any) {
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND recorded_at >= $%d", len(args))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		query += fmt.Sprintf(" AND recorded_at <= $%d", len(args))
	}
	if filter.TestName != "" {
		args = append(args, filter.TestName)
		query += fmt.Sprintf(" AND test_name = $%d", len(args))
	}
	if filter.SymptomType != "" {
		args = append(args, filter.SymptomType)
		query += fmt.Sprintf(" AND symptom_type = $%d", len(args))
	}
	if filter.Descending {
		query += " ORDER BY recorded_at DESC"
	} else {
		query += " ORDER BY recorded_at ASC"
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (s *pgLabs) DistinctTestNames(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT test_name FROM lab_results WHERE owner_id = $1 ORDER BY test_name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("distinct test names: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan test name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

type pgSymptoms struct{ db *sql.DB }

func (s *pgSymptoms) Create(ctx context.Context, entry *models.SymptomEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO symptom_entries
		 (id, owner_id, symptom_type, severity, notes, recorded_at, duration_minutes, triggers)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.OwnerID, entry.SymptomType, entry.Severity, entry.Notes, entry.RecordedAt,
		entry.DurationMinutes, pq.Array(entry.Triggers),
	)
	if err != nil {
		return fmt.Errorf("create symptom entry: %w", err)
	}
	return nil
}

func (s *pgSymptoms) ListForUser(ctx context.Context, ownerID string, filter ListFilter) ([]*models.SymptomEntry, error) {
	query := `SELECT id, owner_id, symptom_type, severity, notes, recorded_at, duration_minutes, triggers
	          FROM symptom_entries WHERE owner_id = $1`
	args := []any{ownerID}
	query, args = applyListFilter(query, args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list symptom entries: %w", err)
	}
	defer rows.Close()

	var out []*models.SymptomEntry
	for rows.Next() {
		var e models.SymptomEntry
		var triggers []string
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.SymptomType, &e.Severity, &e.Notes, &e.RecordedAt,
			&e.DurationMinutes, pq.Array(&triggers)); err != nil {
			return nil, fmt.Errorf("scan symptom entry: %w", err)
		}
		e.Triggers = triggers
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *pgSymptoms) DistinctTypes(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT symptom_type FROM symptom_entries WHERE owner_id = $1 ORDER BY symptom_type`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("distinct symptom types: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan symptom type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type pgWearables struct{ db *sql.DB }

func (s *pgWearables) ListForUser(ctx context.Context, ownerID, metric string, since time.Time) ([]models.WearableSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT series_type, recorded_at, value, unit, source
		 FROM wearable_samples
		 WHERE owner_id = $1 AND series_type = $2 AND recorded_at >= $3
		 ORDER BY recorded_at ASC`, ownerID, metric, since)
	if err != nil {
		return nil, fmt.Errorf("list wearable samples: %w", err)
	}
	defer rows.Close()

	var out []models.WearableSample
	for rows.Next() {
		var sample models.WearableSample
		if err := rows.Scan(&sample.SeriesType, &sample.RecordedAt, &sample.Value, &sample.Unit, &sample.Source); err != nil {
			return nil, fmt.Errorf("scan wearable sample: %w", err)
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}
