// Package bus is a topic based publish/subscribe broker.
//
// Publish never waits for handlers. Every subscription owns a queue and a
// worker goroutine, so a subscriber sees the events of a topic in publish
// order while a slow or failing handler only delays itself. The subscriber
// table is copy-on-write: publishing is a single atomic load, and changes to
// membership are visible to the next Publish.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "collabwiki/bus"

var ErrClosed = errors.New("bus: closed")

// Handler receives one event. A returned error is logged and counted, it
// never reaches the publisher.
type Handler func(ctx context.Context, topic string, event any) error

// PanicHandler is called when a handler panics.
type PanicHandler func(topic string, event any, panicValue any)

// Option configures a Bus.
type Option func(*Bus)

// WithPanicHandler sets the function called with recovered handler panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(b *Bus) {
		b.panicHandler = h
	}
}

// WithMeterProvider sets the otel meter provider for bus counters.
// Default is the global provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(b *Bus) {
		b.meter = provider.Meter(instrumentationName)
	}
}

type table map[string][]*Subscription

type Bus struct {
	mu     sync.Mutex // serializes writers of topics
	topics atomic.Pointer[table]
	closed atomic.Bool
	nextId atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // queued and running deliveries

	panicHandler PanicHandler
	meter        metric.Meter
	published    metric.Int64Counter
	delivered    metric.Int64Counter
	failed       metric.Int64Counter
}

func New(opts ...Option) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		ctx:    ctx,
		cancel: cancel,
		meter:  otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.topics.Store(&table{})
	b.published = b.counter("collabwiki.bus.published", "Number of events published")
	b.delivered = b.counter("collabwiki.bus.delivered", "Number of handler executions")
	b.failed = b.counter("collabwiki.bus.failed", "Number of handler errors and panics")
	return b
}

func (b *Bus) counter(name string, description string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit("{event}"))
	if err != nil || c == nil {
		glog.Infof("[bus]counter %s = %v\n", name, err)
		return noop.Int64Counter{}
	}
	return c
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id      uint64
	topic   string
	handler Handler
	bus     *Bus

	mu     sync.Mutex // protects queue and closed
	queue  []any
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func (s *Subscription) Topic() string {
	return s.topic
}

func (s *Subscription) String() string {
	return fmt.Sprintf("%s#%d", s.topic, s.id)
}

// Subscribe registers handler for topic. The subscription receives every
// event published after Subscribe returns.
func (b *Bus) Subscribe(topic string, handler Handler) (*Subscription, error) {
	s := &Subscription{
		id:      b.nextId.Add(1),
		topic:   topic,
		handler: handler,
		bus:     b,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return nil, ErrClosed
	}
	old := *b.topics.Load()
	next := make(table, len(old)+1)
	for t, subs := range old {
		next[t] = subs
	}
	subs := make([]*Subscription, 0, len(old[topic])+1)
	subs = append(subs, old[topic]...)
	next[topic] = append(subs, s)
	b.topics.Store(&next)

	go s.run()
	glog.V(1).Infof("[bus]+%s\n", s)
	return s, nil
}

// Unsubscribe removes s. Events still queued for s are dropped and no
// Publish that starts after Unsubscribe returns reaches s. A handler call
// already running is allowed to finish. Reports whether s was subscribed.
func (b *Bus) Unsubscribe(s *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(s)
}

func (b *Bus) removeLocked(s *Subscription) bool {
	old := *b.topics.Load()
	subs := old[s.topic]
	i := -1
	for j, o := range subs {
		if o == s {
			i = j
			break
		}
	}
	if i < 0 {
		return false
	}
	next := make(table, len(old))
	for t, o := range old {
		next[t] = o
	}
	remaining := make([]*Subscription, 0, len(subs)-1)
	remaining = append(remaining, subs[:i]...)
	remaining = append(remaining, subs[i+1:]...)
	if len(remaining) == 0 {
		delete(next, s.topic)
	} else {
		next[s.topic] = remaining
	}
	b.topics.Store(&next)

	s.stop()
	glog.V(1).Infof("[bus]-%s\n", s)
	return true
}

// Publish queues event for every current subscriber of topic and returns
// immediately.
func (b *Bus) Publish(topic string, event any) error {
	if b.closed.Load() {
		return ErrClosed
	}
	subs := (*b.topics.Load())[topic]
	b.published.Add(b.ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
	for _, s := range subs {
		s.enqueue(event)
	}
	glog.V(2).Infof("[bus]publish %s subscribers=%d\n", topic, len(subs))
	return nil
}

// Subscribers returns the number of subscriptions on topic.
func (b *Bus) Subscribers(topic string) int {
	return len((*b.topics.Load())[topic])
}

// WaitAsync blocks until every queued delivery has run or been dropped.
func (b *Bus) WaitAsync() {
	b.wg.Wait()
}

// Close removes every subscription and rejects further publishes. The
// context passed to running handlers is cancelled.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Swap(true) {
		return
	}
	for _, subs := range *b.topics.Load() {
		for _, s := range subs {
			b.removeLocked(s)
		}
	}
	b.cancel()
}

func (s *Subscription) enqueue(event any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.bus.wg.Add(1)
	s.queue = append(s.queue, event)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for range s.queue {
		s.bus.wg.Done()
	}
	s.queue = nil
	close(s.done)
}

func (s *Subscription) next() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.queue) == 0 {
		return nil, false
	}
	event := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return event, true
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			event, ok := s.next()
			if !ok {
				break
			}
			s.deliver(event)
			s.bus.wg.Done()
		}
	}
}

func (s *Subscription) deliver(event any) {
	b := s.bus
	attrs := metric.WithAttributes(attribute.String("topic", s.topic))
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(b.ctx, 1, attrs)
			glog.Errorf("[bus]%s panic = %v\n", s, r)
			if b.panicHandler != nil {
				b.panicHandler(s.topic, event, r)
			}
		}
	}()

	b.delivered.Add(b.ctx, 1, attrs)
	if err := s.handler(b.ctx, s.topic, event); err != nil {
		b.failed.Add(b.ctx, 1, attrs)
		glog.Infof("[bus]%s error = %s\n", s, err)
	}
}
