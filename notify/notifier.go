// Package notify pushes document-changed events to every live connection
// except those of the client that made the change.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"collabwiki/bus"
	"collabwiki/docs"
	"collabwiki/registry"
	"collabwiki/wire"
)

var ErrStarted = errors.New("notify: already started")

// Notifier holds nothing but its subscription; connection state lives in
// the registry.
type Notifier struct {
	registry *registry.Registry
	sub      *bus.Subscription
}

func New(r *registry.Registry) *Notifier {
	return &Notifier{registry: r}
}

// Start subscribes to the change topic. Call it once at startup.
func (n *Notifier) Start(b *bus.Bus) error {
	if n.sub != nil {
		return ErrStarted
	}
	sub, err := b.Subscribe(docs.TopicDocumentChanged, n.handle)
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}
	n.sub = sub
	return nil
}

// Stop unsubscribes.
func (n *Notifier) Stop(b *bus.Bus) {
	if n.sub != nil {
		b.Unsubscribe(n.sub)
		n.sub = nil
	}
}

func (n *Notifier) handle(ctx context.Context, topic string, event any) error {
	e, ok := event.(docs.ChangeEvent)
	if !ok {
		return fmt.Errorf("notify: unexpected event %T", event)
	}
	msg := wire.Encode(wire.DocumentChanged{
		Type:       wire.TypeDocumentChanged,
		DocumentID: e.DocumentID,
		Client:     string(e.Client),
		Timestamp:  e.Timestamp,
	})

	conns := n.registry.AllExcept(e.Client)
	pushed := 0
	for _, c := range conns {
		// a connection closing mid fan-out must not stop the rest
		if err := c.Push(msg); err != nil {
			glog.V(1).Infof("[notify]drop %s->%s client=%s error = %s\n", e.DocumentID, c.ID, c.Client, err)
			continue
		}
		pushed++
	}
	glog.V(2).Infof("[notify]%s from=%s pushed=%d/%d\n", e.DocumentID, e.Client, pushed, len(conns))
	return nil
}
