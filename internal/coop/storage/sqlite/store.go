// Package sqlite provides SQLite-backed journal and telemetry persistence.
// Live room state stays in memory; only the append-only record lands here.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/wayfarer.quest/internal/platform/storage/sqlitemigrate"

	"github.com/louisbranch/wayfarer.quest/internal/coop/storage"
	"github.com/louisbranch/wayfarer.quest/internal/coop/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed journal and telemetry persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a session SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendJournal implements storage.JournalStore.
func (s *Store) AppendJournal(ctx context.Context, entry storage.JournalEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	entry.RoomCode = strings.TrimSpace(entry.RoomCode)
	entry.Kind = strings.TrimSpace(entry.Kind)
	if entry.RoomCode == "" {
		return fmt.Errorf("room code is required")
	}
	if entry.Kind == "" {
		return fmt.Errorf("entry kind is required")
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO journal_entries (
	room_code,
	kind,
	actor_id,
	detail,
	created_at
) VALUES (?, ?, ?, ?, ?)
`,
		entry.RoomCode,
		entry.Kind,
		entry.ActorID,
		entry.Detail,
		entry.At.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// JournalByRoom implements storage.JournalStore.
func (s *Store) JournalByRoom(ctx context.Context, code string) ([]storage.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT room_code, kind, actor_id, detail, created_at
FROM journal_entries
WHERE room_code = ?
ORDER BY id ASC
`, code)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []storage.JournalEntry
	for rows.Next() {
		var entry storage.JournalEntry
		var createdAt int64
		if err := rows.Scan(&entry.RoomCode, &entry.Kind, &entry.ActorID, &entry.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry.At = time.UnixMilli(createdAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// ArchiveRoom implements storage.JournalStore.
func (s *Store) ArchiveRoom(ctx context.Context, code string, finishedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("room code is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO archived_rooms (room_code, finished_at)
VALUES (?, ?)
ON CONFLICT(room_code) DO UPDATE SET finished_at = excluded.finished_at
`, code, finishedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("archive room: %w", err)
	}
	return nil
}

// ArchivedAt returns when a room's journal was archived. Returns
// storage.ErrNotFound for rooms that were never archived.
func (s *Store) ArchivedAt(ctx context.Context, code string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if s == nil || s.sqlDB == nil {
		return time.Time{}, fmt.Errorf("storage is not configured")
	}

	var finishedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT finished_at FROM archived_rooms WHERE room_code = ?
`, code).Scan(&finishedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, storage.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query archive: %w", err)
	}
	return time.UnixMilli(finishedAt).UTC(), nil
}

// AppendTelemetryEvent implements storage.TelemetryStore.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	event.Name = strings.TrimSpace(event.Name)
	if event.Name == "" {
		return fmt.Errorf("event name is required")
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	attrs := "{}"
	if len(event.Attributes) > 0 {
		raw, err := json.Marshal(event.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}
		attrs = string(raw)
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (
	name,
	room_code,
	player_id,
	attributes,
	created_at
) VALUES (?, ?, ?, ?, ?)
`,
		event.Name,
		event.RoomCode,
		event.PlayerID,
		attrs,
		event.At.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}
