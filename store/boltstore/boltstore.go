// Package boltstore is a store.Store in a single bbolt file. Documents are
// JSON values keyed by id, with a second bucket indexing names.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"collabwiki/store"
)

var (
	pagesBucket = []byte("pages")
	namesBucket = []byte("names")
)

type Store struct {
	db *bolt.DB
}

var _ store.Store = (*Store)(nil)

func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{pagesBucket, namesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Create(ctx context.Context, name string, markup string) (string, error) {
	d := store.Document{
		ID:      uuid.NewString(),
		Name:    name,
		Markup:  markup,
		Updated: time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(namesBucket)
		if names.Get([]byte(name)) != nil {
			return store.ErrNameTaken
		}
		if err := names.Put([]byte(name), []byte(d.ID)); err != nil {
			return err
		}
		return put(tx, d)
	})
	if err != nil {
		return "", wrap("create", err)
	}
	return d.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (*store.Document, error) {
	var d store.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		d, err = get(tx, id)
		return err
	})
	if err != nil {
		return nil, wrap("get", err)
	}
	return &d, nil
}

func (s *Store) List(ctx context.Context) ([]store.Summary, error) {
	out := []store.Summary{}
	err := s.db.View(func(tx *bolt.Tx) error {
		// names are the bucket keys, so the cursor walks in byte order
		return tx.Bucket(namesBucket).ForEach(func(k, v []byte) error {
			out = append(out, store.Summary{ID: string(v), Name: string(k)})
			return nil
		})
	})
	if err != nil {
		return nil, wrap("list", err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, markup string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		d, err := get(tx, id)
		if err != nil {
			return err
		}
		d.Markup = markup
		d.Updated = time.Now().UTC()
		return put(tx, d)
	})
	return wrap("update", err)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		d, err := get(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(namesBucket).Delete([]byte(d.Name)); err != nil {
			return err
		}
		return tx.Bucket(pagesBucket).Delete([]byte(id))
	})
	return wrap("delete", err)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func get(tx *bolt.Tx, id string) (store.Document, error) {
	var d store.Document
	buf := tx.Bucket(pagesBucket).Get([]byte(id))
	if buf == nil {
		return d, store.ErrNotFound
	}
	err := json.Unmarshal(buf, &d)
	return d, err
}

func put(tx *bolt.Tx, d store.Document) error {
	buf, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return tx.Bucket(pagesBucket).Put([]byte(d.ID), buf)
}

func wrap(op string, err error) error {
	switch err {
	case nil, store.ErrNotFound, store.ErrNameTaken:
		return err
	}
	return fmt.Errorf("boltstore: %s: %w", op, err)
}
