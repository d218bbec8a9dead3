package docs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"collabwiki/registry"
	"collabwiki/render"
	"collabwiki/store"
)

type fakeBus struct {
	mu     sync.Mutex
	topics []string
	events []ChangeEvent
	err    error
}

func (b *fakeBus) Publish(topic string, event any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.topics = append(b.topics, topic)
	b.events = append(b.events, event.(ChangeEvent))
	return nil
}

// failing rejects every write.
type failing struct {
	store.Store
}

func (failing) Create(ctx context.Context, name string, markup string) (string, error) {
	return "", errors.New("disk full")
}

func (failing) Update(ctx context.Context, id string, markup string) error {
	return errors.New("disk full")
}

func newService(s store.Store, b Bus) *Service {
	return NewService(s, NewPublisher(b), render.NewMarkdown())
}

func TestNotifyChanged(t *testing.T) {
	b := &fakeBus{}
	p := NewPublisher(b)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return now }

	p.NotifyChanged("doc-1", "a1")
	assert.Equal(t, []string{TopicDocumentChanged}, b.topics)
	e := b.events[0]
	assert.Equal(t, "doc-1", e.DocumentID)
	assert.Equal(t, registry.ClientID("a1"), e.Client)
	assert.Equal(t, now, e.Timestamp)

	p.NotifyChanged("doc-1", "a1")
	assert.NotEqual(t, b.events[0].ID, b.events[1].ID)
}

func TestNotifyChangedSwallowsBusErrors(t *testing.T) {
	b := &fakeBus{err: errors.New("bus down")}
	s := newService(store.NewMemory(), b)
	id, err := s.Create(context.Background(), "Page", "x", "a1")
	assert.Equal(t, nil, err)
	assert.NotEqual(t, "", id)
}

func TestWritesPublishAfterCommit(t *testing.T) {
	ctx := context.Background()
	b := &fakeBus{}
	mem := store.NewMemory()
	s := newService(mem, b)

	id, err := s.Create(ctx, "Page", "# one", "a1")
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, s.Update(ctx, id, "# two", "b2"))
	assert.Equal(t, nil, s.Delete(ctx, id))

	assert.Equal(t, 2, len(b.events))
	assert.Equal(t, id, b.events[0].DocumentID)
	assert.Equal(t, registry.ClientID("a1"), b.events[0].Client)
	assert.Equal(t, registry.ClientID("b2"), b.events[1].Client)
}

func TestFailedWritesPublishNothing(t *testing.T) {
	ctx := context.Background()
	b := &fakeBus{}
	s := newService(failing{store.NewMemory()}, b)

	_, err := s.Create(ctx, "Page", "x", "a1")
	assert.NotEqual(t, nil, err)
	assert.NotEqual(t, nil, s.Update(ctx, "doc-1", "x", "a1"))

	s = newService(store.NewMemory(), b)
	err = s.Update(ctx, "missing", "x", "a1")
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))
	_, err = s.Create(ctx, "  ", "x", "a1")
	assert.Equal(t, ErrInvalidName, err)

	assert.Equal(t, 0, len(b.events))
}

func TestGetRenders(t *testing.T) {
	ctx := context.Background()
	s := newService(store.NewMemory(), &fakeBus{})
	id, _ := s.Create(ctx, "Page", "*hi*", "a1")

	p, err := s.Get(ctx, id)
	assert.Equal(t, nil, err)
	assert.Equal(t, "*hi*", p.Markup)
	assert.Equal(t, "<p><em>hi</em></p>\n", p.HTML)
}

func TestGetKeepsPageWhenRenderFails(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	id, _ := m.Create(ctx, "Page", "*hi*")
	s := NewService(m, NewPublisher(&fakeBus{}), render.RendererFunc(func(ctx context.Context, markup string) (string, error) {
		return "", errors.New("renderer down")
	}))

	p, err := s.Get(ctx, id)
	assert.Equal(t, nil, err)
	assert.Equal(t, "*hi*", p.Markup)
	assert.Equal(t, "", p.HTML)

	_, err = s.Get(ctx, "missing")
	assert.Equal(t, true, errors.Is(err, store.ErrNotFound))
}
