package registry

import (
	"errors"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// ClientID is the opaque token a client generates once per session. It is
// only used to suppress self-notification and is not a credential.
type ClientID string

var (
	ErrClosed       = errors.New("registry: connection closed")
	ErrBackpressure = errors.New("registry: send buffer full")
)

// DefaultSendBuffer is the number of pushes a connection queues before
// Push starts failing with ErrBackpressure.
const DefaultSendBuffer = 256

// Conn is a single live client channel. Pushes are queued on a buffered send
// channel that the transport's write pump drains.
type Conn struct {
	ID     uuid.UUID
	Client ClientID

	mu     sync.RWMutex // protects closed and the send channel close
	send   chan []byte
	closed bool
}

// NewConn creates an unregistered connection for client.
func NewConn(client ClientID, buffer int) *Conn {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Conn{
		ID:     uuid.New(),
		Client: client,
		send:   make(chan []byte, buffer),
	}
}

// Push queues msg for the write pump without blocking.
func (c *Conn) Push(msg []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrBackpressure
	}
}

// Send returns the outbound queue. It is closed when the connection is
// unregistered.
func (c *Conn) Send() <-chan []byte {
	return c.send
}

// Closed reports whether the connection has been unregistered.
func (c *Conn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Registry tracks every open connection. Register and Unregister are
// serialized; AllExcept runs concurrently with other readers.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn
}

func New() *Registry {
	return &Registry{
		conns: make(map[uuid.UUID]*Conn),
	}
}

// Connect creates a connection for client and registers it.
func (r *Registry) Connect(client ClientID, buffer int) *Conn {
	c := NewConn(client, buffer)
	// a fresh connection cannot be closed yet
	_ = r.Register(c)
	return c
}

// Register adds c. Registering the same connection twice is a no-op.
// A connection that was already unregistered cannot come back.
func (r *Registry) Register(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Closed() {
		return ErrClosed
	}
	if _, ok := r.conns[c.ID]; ok {
		return nil
	}
	r.conns[c.ID] = c
	glog.V(1).Infof("[registry]+%s client=%s total=%d\n", c.ID, c.Client, len(r.conns))
	return nil
}

// Unregister removes c and closes its send channel as one step, so the
// channel never outlives its entry. It reports whether c was present;
// repeated calls are no-ops.
func (r *Registry) Unregister(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID]; !ok {
		return false
	}
	delete(r.conns, c.ID)
	c.close()
	glog.V(1).Infof("[registry]-%s client=%s total=%d\n", c.ID, c.Client, len(r.conns))
	return true
}

// AllExcept returns a snapshot of the connections not owned by client. Every
// connection of client is excluded, not just one. The order is unspecified.
func (r *Registry) AllExcept(client ClientID) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		if c.Client != client {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll unregisters every connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.conns {
		delete(r.conns, id)
		c.close()
	}
}
