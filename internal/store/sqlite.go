package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteDB implements DB on SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the database at path. Use ":memory:" for tests.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	return configure(db)
}

// configure applies connection pragmas. db is closed when one fails.
func configure(db *sql.DB) (*SQLiteDB, error) {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema.
func (s *SQLiteDB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS slots (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			level INTEGER NOT NULL DEFAULT 1,
			round INTEGER NOT NULL DEFAULT 1,
			cash TEXT NOT NULL DEFAULT '0',
			state TEXT NOT NULL DEFAULT '',
			data BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			severity TEXT NOT NULL,
			key TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_updated ON slots(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_run ON slots(run_id, updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run_seq ON events(run_id, seq)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveSlot inserts slot, or overwrites it when the id already exists. An
// empty id is assigned a new uuid.
func (s *SQLiteDB) SaveSlot(ctx context.Context, slot *Slot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slots (id, name, run_id, level, round, cash, state, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, run_id = excluded.run_id, level = excluded.level,
			round = excluded.round, cash = excluded.cash, state = excluded.state,
			data = excluded.data, updated_at = excluded.updated_at`,
		slot.ID, slot.Name, slot.RunID, slot.Level, slot.Round, slot.Cash, slot.State, slot.Data,
		slot.CreatedAt, slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save slot: %w", err)
	}
	return nil
}

// GetSlot returns the slot with its data.
func (s *SQLiteDB) GetSlot(ctx context.Context, id string) (*Slot, error) {
	slot := &Slot{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, run_id, level, round, cash, state, data, created_at, updated_at
		 FROM slots WHERE id = ?`, id,
	).Scan(&slot.ID, &slot.Name, &slot.RunID, &slot.Level, &slot.Round, &slot.Cash, &slot.State,
		&slot.Data, &slot.CreatedAt, &slot.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

// ListSlots returns a page of slot headers without data.
func (s *SQLiteDB) ListSlots(ctx context.Context, query SlotsQuery) (*SlotsList, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PerPage < 1 || query.PerPage > 100 {
		query.PerPage = 20
	}

	var where []string
	var args []any
	if query.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, query.RunID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM slots"+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count slots: %w", err)
	}

	offset := (query.Page - 1) * query.PerPage
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, run_id, level, round, cash, state, created_at, updated_at
		 FROM slots`+clause+` ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`,
		append(args, query.PerPage, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	list := &SlotsList{
		Slots:      []Slot{},
		TotalCount: total,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: (total + query.PerPage - 1) / query.PerPage,
	}
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(&slot.ID, &slot.Name, &slot.RunID, &slot.Level, &slot.Round, &slot.Cash,
			&slot.State, &slot.CreatedAt, &slot.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		list.Slots = append(list.Slots, slot)
	}
	return list, rows.Err()
}

// DeleteSlot removes a slot.
func (s *SQLiteDB) DeleteSlot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertEvents appends transcript entries in one transaction.
func (s *SQLiteDB) InsertEvents(ctx context.Context, runID string, events []EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, kind, severity, key, source, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, runID, ev.Seq, ev.Kind, ev.Severity, ev.Key, ev.Source, ev.Payload); err != nil {
			return fmt.Errorf("failed to insert event %d: %w", ev.Seq, err)
		}
	}
	return tx.Commit()
}

// GetEvents returns a run's transcript in emission order.
func (s *SQLiteDB) GetEvents(ctx context.Context, runID string, limit, offset int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, seq, kind, severity, key, source, payload, created_at
		 FROM events WHERE run_id = ? ORDER BY seq LIMIT ? OFFSET ?`,
		runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var ev EventRecord
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Seq, &ev.Kind, &ev.Severity, &ev.Key, &ev.Source,
			&ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ExportEventsCSV writes a run's full transcript as CSV, oldest first.
func (s *SQLiteDB) ExportEventsCSV(ctx context.Context, w io.Writer, runID string) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, severity, key, source, payload, created_at
		 FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"seq", "kind", "severity", "key", "source", "payload", "created_at"}); err != nil {
		return err
	}
	var (
		seq                                  int
		kind, severity, key, source, payload string
		ts                                   time.Time
	)
	for rows.Next() {
		if err := rows.Scan(&seq, &kind, &severity, &key, &source, &payload, &ts); err != nil {
			return fmt.Errorf("failed to scan event: %w", err)
		}
		if err := cw.Write([]string{
			strconv.Itoa(seq), kind, severity, key, source, payload, ts.UTC().Format(time.RFC3339Nano),
		}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
