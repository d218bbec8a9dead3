package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) handle(ctx context.Context, topic string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) get() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

func TestPublishFanOut(t *testing.T) {
	b := New()
	defer b.Close()

	var r1, r2, other recorder
	_, err := b.Subscribe("document-changed", r1.handle)
	assert.Equal(t, nil, err)
	b.Subscribe("document-changed", r2.handle)
	b.Subscribe("other", other.handle)

	assert.Equal(t, nil, b.Publish("document-changed", "e1"))
	b.WaitAsync()

	assert.Equal(t, []any{"e1"}, r1.get())
	assert.Equal(t, []any{"e1"}, r2.get())
	assert.Equal(t, 0, len(other.get()))
	assert.Equal(t, 2, b.Subscribers("document-changed"))
}

func TestPublishOrderPerSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	var r recorder
	b.Subscribe("t", r.handle)
	want := []any{}
	for i := 0; i < 500; i++ {
		b.Publish("t", i)
		want = append(want, i)
	}
	b.WaitAsync()
	assert.Equal(t, want, r.get())
}

func TestSlowHandlerDoesNotBlockOthers(t *testing.T) {
	b := New()
	defer b.Close()

	release := make(chan struct{})
	b.Subscribe("t", func(ctx context.Context, topic string, event any) error {
		<-release
		return nil
	})
	fast := make(chan any, 1)
	b.Subscribe("t", func(ctx context.Context, topic string, event any) error {
		fast <- event
		return nil
	})

	published := make(chan struct{})
	go func() {
		b.Publish("t", "e")
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow handler")
	}
	select {
	case e := <-fast:
		assert.Equal(t, "e", e)
	case <-time.After(2 * time.Second):
		t.Fatal("fast handler starved by slow handler")
	}
	close(release)
	b.WaitAsync()
}

func TestFailingHandlersAreIsolated(t *testing.T) {
	var panics atomic.Int32
	b := New(WithPanicHandler(func(topic string, event any, v any) {
		panics.Add(1)
	}))
	defer b.Close()

	b.Subscribe("t", func(ctx context.Context, topic string, event any) error {
		panic("boom")
	})
	b.Subscribe("t", func(ctx context.Context, topic string, event any) error {
		return errors.New("nope")
	})
	var r recorder
	b.Subscribe("t", r.handle)

	assert.Equal(t, nil, b.Publish("t", 1))
	assert.Equal(t, nil, b.Publish("t", 2))
	b.WaitAsync()

	assert.Equal(t, []any{1, 2}, r.get())
	assert.Equal(t, int32(2), panics.Load())
}

func TestUnsubscribeVisibleToNextPublish(t *testing.T) {
	b := New()
	defer b.Close()

	var r recorder
	s, _ := b.Subscribe("t", r.handle)
	b.Publish("t", 1)
	b.WaitAsync()

	assert.Equal(t, true, b.Unsubscribe(s))
	assert.Equal(t, false, b.Unsubscribe(s))
	b.Publish("t", 2)
	b.WaitAsync()

	assert.Equal(t, []any{1}, r.get())
	assert.Equal(t, 0, b.Subscribers("t"))
}

func TestSubscribeVisibleToNextPublish(t *testing.T) {
	b := New()
	defer b.Close()

	var r recorder
	b.Publish("t", 0)
	b.Subscribe("t", r.handle)
	b.Publish("t", 1)
	b.WaitAsync()
	assert.Equal(t, []any{1}, r.get())
}

func TestUnsubscribeDropsQueued(t *testing.T) {
	b := New()
	defer b.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	s, _ := b.Subscribe("t", func(ctx context.Context, topic string, event any) error {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	})
	for i := 0; i < 10; i++ {
		b.Publish("t", i)
	}
	<-started
	b.Unsubscribe(s)
	close(release)
	b.WaitAsync()
	assert.Equal(t, int32(1), calls.Load())
}

func TestClose(t *testing.T) {
	b := New()
	var r recorder
	b.Subscribe("t", r.handle)
	b.Close()
	b.Close()

	assert.Equal(t, ErrClosed, b.Publish("t", 1))
	_, err := b.Subscribe("t", r.handle)
	assert.Equal(t, ErrClosed, err)
	assert.Equal(t, 0, b.Subscribers("t"))
}

func TestConcurrentSubscribePublish(t *testing.T) {
	b := New()
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				var r recorder
				s, err := b.Subscribe("t", r.handle)
				if err != nil {
					t.Error(err)
					return
				}
				b.Unsubscribe(s)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b.Publish("t", j)
			}
		}()
	}
	wg.Wait()
	b.WaitAsync()
	assert.Equal(t, 0, b.Subscribers("t"))
}
