// Package redisbridge mirrors document-changed events between server nodes
// over a Redis pub/sub channel, so that a write on one node reaches the
// connections held by every other node.
package redisbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"

	"collabwiki/bus"
	"collabwiki/docs"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "collabwiki.document-changed"

type envelope struct {
	Node  string           `json:"node"`
	Event docs.ChangeEvent `json:"event"`
}

type Bridge struct {
	rdb     *redis.Client
	bus     *bus.Bus
	node    string
	channel string

	// ids of remote events this bridge put on the local bus, so they are not
	// sent back out
	injected sync.Map

	sub    *bus.Subscription
	pubsub *redis.PubSub
	done   chan struct{}
}

func New(rdb *redis.Client, b *bus.Bus, node string, channel string) *Bridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bridge{
		rdb:     rdb,
		bus:     b,
		node:    node,
		channel: channel,
		done:    make(chan struct{}),
	}
}

// Start subscribes to Redis, waits for the subscription to be confirmed and
// then starts forwarding in both directions.
func (br *Bridge) Start(ctx context.Context) error {
	pubsub := br.rdb.Subscribe(ctx, br.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("redisbridge: subscribe %s: %w", br.channel, err)
	}
	sub, err := br.bus.Subscribe(docs.TopicDocumentChanged, br.forward)
	if err != nil {
		pubsub.Close()
		return fmt.Errorf("redisbridge: %w", err)
	}
	br.pubsub = pubsub
	br.sub = sub
	go br.relay(pubsub.Channel())
	glog.Infof("[redisbridge]node %s on %s\n", br.node, br.channel)
	return nil
}

// forward sends a locally published event to the other nodes.
func (br *Bridge) forward(ctx context.Context, topic string, event any) error {
	e, ok := event.(docs.ChangeEvent)
	if !ok {
		return fmt.Errorf("redisbridge: unexpected event %T", event)
	}
	if _, remote := br.injected.LoadAndDelete(e.ID); remote {
		return nil
	}
	buf, err := json.Marshal(envelope{Node: br.node, Event: e})
	if err != nil {
		return fmt.Errorf("redisbridge: encode: %w", err)
	}
	if err := br.rdb.Publish(ctx, br.channel, buf).Err(); err != nil {
		return fmt.Errorf("redisbridge: publish: %w", err)
	}
	glog.V(2).Infof("[redisbridge]-> %s %s\n", e.DocumentID, e.ID)
	return nil
}

// relay puts events of other nodes on the local bus.
func (br *Bridge) relay(ch <-chan *redis.Message) {
	defer close(br.done)
	for msg := range ch {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			glog.Infof("[redisbridge]bad payload = %s\n", err)
			continue
		}
		if env.Node == br.node {
			continue
		}
		br.injected.Store(env.Event.ID, struct{}{})
		if err := br.bus.Publish(docs.TopicDocumentChanged, env.Event); err != nil {
			br.injected.Delete(env.Event.ID)
			glog.Infof("[redisbridge]<- %s error = %s\n", env.Event.DocumentID, err)
			continue
		}
		glog.V(2).Infof("[redisbridge]<- %s %s from %s\n", env.Event.DocumentID, env.Event.ID, env.Node)
	}
}

// Close stops both directions.
func (br *Bridge) Close() error {
	if br.sub != nil {
		br.bus.Unsubscribe(br.sub)
	}
	if br.pubsub == nil {
		return nil
	}
	err := br.pubsub.Close()
	<-br.done
	return err
}

// pending counts injected ids not yet seen by forward.
func (br *Bridge) pending() int {
	n := 0
	br.injected.Range(func(k, v any) bool {
		n++
		return true
	})
	return n
}
