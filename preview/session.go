// Package preview debounces the edits of one editing session into render
// calls and applies only the newest result.
//
// Every edit bumps the session generation. Timer callbacks and render
// results carry the generation they were started for and are dropped when
// it is no longer current, which settles the race between a timer firing
// and the edit that cancels it.
package preview

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/jonboulle/clockwork"

	"collabwiki/render"
)

// DefaultDelay is the quiet period after the last edit before rendering.
const DefaultDelay = 300 * time.Millisecond

type State int

const (
	Idle State = iota
	Pending
	InFlight
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	default:
		return "unknown"
	}
}

// Result is an applied render for generation.
type Result struct {
	Generation uint64
	Output     string
}

type Option func(*Session)

// WithDelay sets the debounce quiet period.
func WithDelay(d time.Duration) Option {
	return func(s *Session) {
		s.delay = d
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithErrorHandler sets the function told about failed renders of the
// current generation. Failures of superseded generations are not reported.
func WithErrorHandler(f func(generation uint64, err error)) Option {
	return func(s *Session) {
		s.onError = f
	}
}

// WithName labels the session in logs.
func WithName(name string) Option {
	return func(s *Session) {
		s.name = name
	}
}

// Session is the debounce state machine of one editing session.
//
// The apply and error callbacks run with the session lock held, so results
// reach them in generation order. They must not call back into the Session.
type Session struct {
	renderer render.Renderer
	apply    func(Result)
	onError  func(generation uint64, err error)
	clock    clockwork.Clock
	delay    time.Duration
	name     string

	mu         sync.Mutex // protects the fields below
	state      State
	generation uint64
	markup     string
	timer      clockwork.Timer
	closed     bool
}

// New creates an idle session. apply receives every rendered output that is
// still current when it arrives.
func New(renderer render.Renderer, apply func(Result), opts ...Option) *Session {
	s := &Session{
		renderer: renderer,
		apply:    apply,
		clock:    clockwork.NewRealClock(),
		delay:    DefaultDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Edit records markup as the latest text and restarts the quiet period.
// It never waits for rendering.
func (s *Session) Edit(markup string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	s.markup = markup
	s.state = Pending
	generation := s.generation
	s.timer = s.clock.AfterFunc(s.delay, func() {
		s.fire(generation)
	})
	glog.V(2).Infof("[preview]%s edit gen=%d\n", s.name, generation)
}

// fire runs when the quiet period of generation ended. A timer that was
// stopped too late finds a newer generation and does nothing.
func (s *Session) fire(generation uint64) {
	s.mu.Lock()
	if s.closed || s.state != Pending || s.generation != generation {
		s.mu.Unlock()
		glog.V(2).Infof("[preview]%s stale timer gen=%d\n", s.name, generation)
		return
	}
	s.state = InFlight
	s.timer = nil
	markup := s.markup
	s.mu.Unlock()

	go s.render(generation, markup)
}

// render is never cancelled, neither by a newer edit nor by Close. Its
// result is dropped by the generation and closed checks instead.
func (s *Session) render(generation uint64, markup string) {
	output, err := s.renderer.Render(context.Background(), markup)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != generation {
		glog.V(2).Infof("[preview]%s stale result gen=%d\n", s.name, generation)
		return
	}
	s.state = Idle
	if err != nil {
		glog.V(1).Infof("[preview]%s render gen=%d error = %s\n", s.name, generation, err)
		if s.onError != nil {
			s.onError(generation, err)
		}
		return
	}
	s.apply(Result{Generation: generation, Output: output})
}

// Status returns the current state and generation.
func (s *Session) Status() (State, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.generation
}

// Close cancels a pending timer and makes any in-flight result irrelevant.
// Later edits are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = Idle
}
