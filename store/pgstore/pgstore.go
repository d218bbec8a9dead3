// Package pgstore is a store.Store backed by PostgreSQL through pgxpool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabwiki/store"
)

const uniqueViolation = "23505"

const createPagesTable = `
	CREATE TABLE IF NOT EXISTS pages (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New connects to dbUrl and creates the pages table if needed.
func New(ctx context.Context, dbUrl string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dbUrl)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, createPagesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}
	glog.Infof("[pgstore]connected\n")
	return &Store{pool: pool}, nil
}

func (s *Store) Create(ctx context.Context, name string, markup string) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO pages (id, name, content, updated_at) VALUES ($1, $2, $3, $4)",
		id, name, markup, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", store.ErrNameTaken
		}
		return "", fmt.Errorf("pgstore: create: %w", err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id string) (*store.Document, error) {
	d := store.Document{ID: id}
	err := s.pool.QueryRow(ctx,
		"SELECT name, content, updated_at FROM pages WHERE id = $1", id,
	).Scan(&d.Name, &d.Markup, &d.Updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get: %w", err)
	}
	return &d, nil
}

func (s *Store) List(ctx context.Context) ([]store.Summary, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name FROM pages ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Summary, error) {
		var sum store.Summary
		err := row.Scan(&sum.ID, &sum.Name)
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, markup string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE pages SET content = $2, updated_at = $3 WHERE id = $1",
		id, markup, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("pgstore: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM pages WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("pgstore: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
