// Package docs is the document write path: a Service in front of the store
// that announces every committed create or update on the bus.
package docs

import (
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"collabwiki/registry"
)

// TopicDocumentChanged is the bus topic ChangeEvents are published on.
const TopicDocumentChanged = "document-changed"

// ChangeEvent says that a document was written by Client. Built once per
// successful write and never modified.
type ChangeEvent struct {
	ID         ulid.ULID         `json:"id"`
	DocumentID string            `json:"documentId"`
	Client     registry.ClientID `json:"client"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Bus is the part of the notification bus the publisher needs.
type Bus interface {
	Publish(topic string, event any) error
}

// Publisher turns committed writes into ChangeEvents.
type Publisher struct {
	bus Bus
	now func() time.Time
}

func NewPublisher(bus Bus) *Publisher {
	return &Publisher{
		bus: bus,
		now: time.Now,
	}
}

// NotifyChanged publishes a ChangeEvent for documentId. It must only be
// called after the store committed the write. Notification is best effort:
// bus failures are logged and dropped so the write itself still succeeds.
func (p *Publisher) NotifyChanged(documentId string, client registry.ClientID) {
	e := ChangeEvent{
		ID:         ulid.Make(),
		DocumentID: documentId,
		Client:     client,
		Timestamp:  p.now().UTC(),
	}
	if err := p.bus.Publish(TopicDocumentChanged, e); err != nil {
		glog.Infof("[docs]notify %s client=%s error = %s\n", documentId, client, err)
		return
	}
	glog.V(2).Infof("[docs]notify %s client=%s event=%s\n", documentId, client, e.ID)
}
