// Package store persists memory entries, scan records and security events in
// Postgres. Only sanitized content is ever written; the guard package runs
// before anything reaches this layer.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/memshield/memshield/internal/models"
)

type Store struct {
	db *sqlx.DB
}

type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

func New(cfg Config) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) CreateEntry(ctx context.Context, entry *models.MemoryEntry) error {
	query := `
		INSERT INTO memory_entries (id, actor, category, content, importance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Actor,
		entry.Category,
		entry.Content,
		entry.Importance,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	return err
}

func (s *Store) GetEntry(ctx context.Context, id uuid.UUID) (*models.MemoryEntry, error) {
	var entry models.MemoryEntry
	query := `SELECT * FROM memory_entries WHERE id = $1`
	err := s.db.GetContext(ctx, &entry, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &entry, err
}

type ListEntryFilters struct {
	Actor    *string
	Category *string
	Limit    int
	Offset   int
}

func (s *Store) ListEntries(ctx context.Context, filters ListEntryFilters) ([]models.MemoryEntry, int, error) {
	baseQuery := `FROM memory_entries WHERE 1=1`
	args := make([]interface{}, 0)
	argIdx := 1

	if filters.Actor != nil {
		baseQuery += fmt.Sprintf(" AND actor = $%d", argIdx)
		args = append(args, *filters.Actor)
		argIdx++
	}
	if filters.Category != nil {
		baseQuery += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, *filters.Category)
		argIdx++
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, err
	}

	query := "SELECT * " + baseQuery + " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	var entries []models.MemoryEntry
	err := s.db.SelectContext(ctx, &entries, query, args...)
	return entries, total, err
}

func (s *Store) UpdateEntryContent(ctx context.Context, id uuid.UUID, content string) error {
	query := `UPDATE memory_entries SET content = $1, updated_at = $2 WHERE id = $3`
	_, err := s.db.ExecContext(ctx, query, content, time.Now(), id)
	return err
}

func (s *Store) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM memory_entries WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

func (s *Store) CreateScanRecord(ctx context.Context, record *models.ScanRecord) error {
	query := `
		INSERT INTO scan_records (id, entry_id, classification, blocked, redaction_applied, confidence, detected_patterns, warnings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.EntryID,
		record.Classification,
		record.Blocked,
		record.RedactionApplied,
		record.Confidence,
		record.DetectedPatterns,
		record.Warnings,
		record.CreatedAt,
	)
	return err
}

func (s *Store) ListScanRecords(ctx context.Context, entryID *uuid.UUID, limit int) ([]models.ScanRecord, error) {
	query := `SELECT * FROM scan_records WHERE 1=1`
	args := make([]interface{}, 0)
	argIdx := 1

	if entryID != nil {
		query += fmt.Sprintf(" AND entry_id = $%d", argIdx)
		args = append(args, *entryID)
		argIdx++
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	var records []models.ScanRecord
	err := s.db.SelectContext(ctx, &records, query, args...)
	return records, err
}

func (s *Store) InsertSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (id, event_type, actor, actor_role, classification, details, severity, result, resource, action, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.Actor,
		event.ActorRole,
		event.Classification,
		event.Details,
		event.Severity,
		event.Result,
		event.Resource,
		event.Action,
		event.Metadata,
		event.Timestamp,
	)
	return err
}

type ListEventFilters struct {
	Type     *models.EventType
	Severity *models.Severity
	Result   *models.EventResult
	Since    *time.Time
	Limit    int
	Offset   int
}

func (s *Store) ListSecurityEvents(ctx context.Context, filters ListEventFilters) ([]models.SecurityEvent, int, error) {
	baseQuery := `FROM security_events WHERE 1=1`
	args := make([]interface{}, 0)
	argIdx := 1

	if filters.Type != nil {
		baseQuery += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, *filters.Type)
		argIdx++
	}
	if filters.Severity != nil {
		baseQuery += fmt.Sprintf(" AND severity = $%d", argIdx)
		args = append(args, *filters.Severity)
		argIdx++
	}
	if filters.Result != nil {
		baseQuery += fmt.Sprintf(" AND result = $%d", argIdx)
		args = append(args, *filters.Result)
		argIdx++
	}
	if filters.Since != nil {
		baseQuery += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filters.Since)
		argIdx++
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, err
	}

	query := "SELECT * " + baseQuery + " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	var events []models.SecurityEvent
	err := s.db.SelectContext(ctx, &events, query, args...)
	return events, total, err
}

// DeleteEventsBefore removes persisted events older than the cutoff. Used by
// the retention sweep; the in-memory audit window is unaffected.
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM security_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EventSink adapts the store to the audit sink interface so events flow to
// both the in-memory window and Postgres. Inserts are best effort: audit
// recording must never fail the operation being audited.
type EventSink struct {
	store *Store
}

func (s *Store) EventSink() *EventSink {
	return &EventSink{store: s}
}

func (e *EventSink) Record(event *models.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.store.InsertSecurityEvent(ctx, event)
}
