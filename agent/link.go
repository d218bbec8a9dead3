package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"collabwiki/wire"
)

var errOffline = errors.New("not connected")

// link keeps one websocket to the server open, redialing with exponential
// backoff whenever it drops.
type link struct {
	url    string
	handle func(msg any)

	mu   sync.Mutex // protects conn and serializes writes
	conn *websocket.Conn
}

func newLink(url string, handle func(msg any)) *link {
	return &link{url: url, handle: handle}
}

// run dials and reads until ctx is done.
func (l *link) run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.conn != nil {
			l.conn.Close()
		}
	}()
	for {
		conn, err := l.dial(ctx)
		if err != nil {
			return err
		}
		l.set(conn)
		l.read(conn)
		l.set(nil)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		glog.Infof("[link]connection lost, reconnecting\n")
	}
}

func (l *link) dial(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0

	var conn *websocket.Conn
	err := backoff.Retry(func() error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, nil)
		if err != nil {
			glog.V(1).Infof("[link]dial %s error = %s\n", l.url, err)
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		conn.Close()
		return nil, ctx.Err()
	}
	glog.V(1).Infof("[link]connected %s\n", l.url)
	return conn, nil
}

func (l *link) set(conn *websocket.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil && conn == nil {
		l.conn.Close()
	}
	l.conn = conn
}

func (l *link) read(conn *websocket.Conn) {
	for {
		_, buf, err := conn.ReadMessage()
		if err != nil {
			glog.V(1).Infof("[link]read error = %s\n", err)
			return
		}
		msg, err := wire.Decode(buf)
		if err != nil {
			glog.Infof("[link]%s\n", err)
			continue
		}
		l.handle(msg)
	}
}

func (l *link) send(msg any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return errOffline
	}
	l.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return l.conn.WriteMessage(websocket.TextMessage, wire.Encode(msg))
}
