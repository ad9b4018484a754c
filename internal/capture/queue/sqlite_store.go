package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the queue in an embedded SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the queue database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS capture_queue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL DEFAULT '',
		page_data TEXT NOT NULL,
		captured_at TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		enqueued_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create capture_queue: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, it Item) error {
	page, err := json.Marshal(it.PageData)
	if err != nil {
		return fmt.Errorf("marshal page data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO capture_queue (id, user_id, page_data, captured_at, attempts, last_error, enqueued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.UserID, string(page),
		it.Timestamp.UTC().Format(time.RFC3339Nano),
		it.Attempts, it.LastError,
		it.EnqueuedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) List(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, page_data, captured_at, attempts, last_error, enqueued_at
		 FROM capture_queue ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it                   Item
			page                 string
			capturedAt, enqueued string
		)
		if err := rows.Scan(&it.ID, &it.UserID, &page, &capturedAt, &it.Attempts, &it.LastError, &enqueued); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(page), &it.PageData); err != nil {
			return nil, fmt.Errorf("decode page data for %s: %w", it.ID, err)
		}
		it.Timestamp, _ = time.Parse(time.RFC3339Nano, capturedAt)
		it.EnqueuedAt, _ = time.Parse(time.RFC3339Nano, enqueued)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) Update(ctx context.Context, it Item) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE capture_queue SET attempts = ?, last_error = ? WHERE id = ?`,
		it.Attempts, it.LastError, it.ID)
	return err
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM capture_queue WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM capture_queue`).Scan(&n)
	return n, err
}
