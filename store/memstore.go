package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a Store held in process memory.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]Document
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]Document),
	}
}

func (m *Memory) Create(ctx context.Context, name string, markup string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.Name == name {
			return "", ErrNameTaken
		}
	}
	id := uuid.NewString()
	m.docs[id] = Document{
		ID:      id,
		Name:    name,
		Markup:  markup,
		Updated: time.Now().UTC(),
	}
	return id, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *Memory) List(ctx context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, Summary{ID: d.ID, Name: d.Name})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) Update(ctx context.Context, id string, markup string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	d.Markup = markup
	d.Updated = time.Now().UTC()
	m.docs[id] = d
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
