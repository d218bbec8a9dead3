// Package store defines the document store the wiki writes through and an
// in-memory implementation. Durable backends live in the subpackages.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("store: document not found")
	ErrNameTaken = errors.New("store: document name already exists")
)

// Document is a named markup document. Ids are assigned by the store on
// create and never change.
type Document struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Markup  string    `json:"markdown"`
	Updated time.Time `json:"updated"`
}

// Summary is the listing view of a document.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Store persists documents. Update replaces the whole markup.
type Store interface {
	Create(ctx context.Context, name string, markup string) (string, error)
	Get(ctx context.Context, id string) (*Document, error)
	// List returns summaries ordered by name.
	List(ctx context.Context) ([]Summary, error)
	Update(ctx context.Context, id string, markup string) error
	Delete(ctx context.Context, id string) error
	Close() error
}
