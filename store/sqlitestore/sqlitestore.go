// Package sqlitestore is a store.Store on a single SQLite file, using the
// pure Go modernc.org/sqlite driver.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/google/uuid"

	"collabwiki/store"
)

const createPagesTable = `
	CREATE TABLE IF NOT EXISTS pages (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New opens the database at path, ":memory:" for a private in-memory one.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlitestore: path is required")
	}
	if path != ":memory:" && (strings.Contains(path, "?") || strings.Contains(path, "#")) {
		return nil, errors.New("sqlitestore: path cannot contain '?' or '#' characters")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open database: %w", err)
	}
	// one connection keeps ":memory:" a single database and serializes writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range append(pragmas, createPagesTable) {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: exec %q: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

func isUnique(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (s *Store) Create(ctx context.Context, name string, markup string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO pages (id, name, content, updated_at) VALUES (?, ?, ?, ?)",
		id, name, markup, time.Now().UnixNano())
	if err != nil {
		if isUnique(err) {
			return "", store.ErrNameTaken
		}
		return "", fmt.Errorf("sqlitestore: create: %w", err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id string) (*store.Document, error) {
	d := store.Document{ID: id}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		"SELECT name, content, updated_at FROM pages WHERE id = ?", id,
	).Scan(&d.Name, &d.Markup, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get: %w", err)
	}
	d.Updated = time.Unix(0, updated).UTC()
	return &d, nil
}

func (s *Store) List(ctx context.Context) ([]store.Summary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM pages ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()

	out := []store.Summary{}
	for rows.Next() {
		var sum store.Summary
		if err := rows.Scan(&sum.ID, &sum.Name); err != nil {
			return nil, fmt.Errorf("sqlitestore: list: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	return out, nil
}

func (s *Store) exec(ctx context.Context, op string, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlitestore: %s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: %s: %w", op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id string, markup string) error {
	return s.exec(ctx, "update",
		"UPDATE pages SET content = ?, updated_at = ? WHERE id = ?",
		markup, time.Now().UnixNano(), id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.exec(ctx, "delete", "DELETE FROM pages WHERE id = ?", id)
}

func (s *Store) Close() error {
	return s.db.Close()
}
