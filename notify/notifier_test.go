package notify

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"

	"collabwiki/bus"
	"collabwiki/docs"
	"collabwiki/registry"
	"collabwiki/wire"
)

func setup(t *testing.T) (*bus.Bus, *registry.Registry, *docs.Publisher) {
	b := bus.New()
	r := registry.New()
	n := New(r)
	assert.Equal(t, nil, n.Start(b))
	assert.Equal(t, ErrStarted, n.Start(b))
	t.Cleanup(func() {
		n.Stop(b)
		b.Close()
	})
	return b, r, docs.NewPublisher(b)
}

func drain(c *registry.Conn) []wire.DocumentChanged {
	var out []wire.DocumentChanged
	for {
		select {
		case buf, ok := <-c.Send():
			if !ok {
				return out
			}
			var msg wire.DocumentChanged
			if err := json.Unmarshal(buf, &msg); err != nil {
				panic(err)
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestPeerReceivesOriginatorDoesNot(t *testing.T) {
	b, r, p := setup(t)
	a := r.Connect("a1", 0)
	bconn := r.Connect("b2", 0)

	p.NotifyChanged("doc-1", "a1")
	b.WaitAsync()

	got := drain(bconn)
	assert.Equal(t, 1, len(got))
	assert.Equal(t, wire.TypeDocumentChanged, got[0].Type)
	assert.Equal(t, "doc-1", got[0].DocumentID)
	assert.Equal(t, "a1", got[0].Client)
	assert.Equal(t, 0, len(drain(a)))
}

func TestOriginatorWithSeveralConnections(t *testing.T) {
	b, r, p := setup(t)
	a1 := r.Connect("a1", 0)
	a2 := r.Connect("a1", 0)
	c := r.Connect("c3", 0)

	p.NotifyChanged("doc-2", "a1")
	b.WaitAsync()

	assert.Equal(t, 0, len(drain(a1)))
	assert.Equal(t, 0, len(drain(a2)))
	assert.Equal(t, 1, len(drain(c)))
}

func TestClosedConnectionDoesNotStopFanOut(t *testing.T) {
	b, r, p := setup(t)
	var peers []*registry.Conn
	for i := 0; i < 10; i++ {
		peers = append(peers, r.Connect(registry.ClientID(fmt.Sprintf("p%d", i)), 0))
	}
	full := r.Connect("full", 1)
	full.Push([]byte(`{}`))

	// closes after the snapshot may already have been taken
	go r.Unregister(peers[3])
	p.NotifyChanged("doc-1", "a1")
	b.WaitAsync()

	for i, c := range peers {
		if i == 3 {
			continue
		}
		assert.Equal(t, 1, len(drain(c)))
	}
}

func TestNoSelfDeliveryUnderChurn(t *testing.T) {
	b, r, p := setup(t)
	ids := []registry.ClientID{"a", "b", "c", "d"}

	var mu sync.Mutex
	var live []*registry.Conn
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(1))
		for i := 0; i < 500; i++ {
			mu.Lock()
			if len(live) > 0 && rng.Intn(3) == 0 {
				j := rng.Intn(len(live))
				c := live[j]
				live = append(live[:j], live[j+1:]...)
				mu.Unlock()
				checkNoSelf(t, c)
				r.Unregister(c)
				continue
			}
			live = append(live, r.Connect(ids[rng.Intn(len(ids))], 1024))
			mu.Unlock()
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(2))
		for i := 0; i < 500; i++ {
			p.NotifyChanged(fmt.Sprintf("doc-%d", i), ids[rng.Intn(len(ids))])
		}
	}()
	wg.Wait()
	b.WaitAsync()

	mu.Lock()
	defer mu.Unlock()
	for _, c := range live {
		checkNoSelf(t, c)
	}
}

func checkNoSelf(t *testing.T, c *registry.Conn) {
	for _, msg := range drain(c) {
		if msg.Client == string(c.Client) {
			t.Errorf("connection %s of %s got its own change %s", c.ID, c.Client, msg.DocumentID)
		}
	}
}

func TestUnexpectedEventIgnored(t *testing.T) {
	b, r, _ := setup(t)
	c := r.Connect("b2", 0)
	b.Publish(docs.TopicDocumentChanged, "not an event")
	b.WaitAsync()
	assert.Equal(t, 0, len(drain(c)))
}
