package main

import (
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"collabwiki/preview"
	"collabwiki/registry"
	"collabwiki/wire"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleConnections upgrades /ws?client=<identity>. Each connection gets its
// own preview session; document-changed pushes arrive through the registry.
func (s *wikiServer) handleConnections(w http.ResponseWriter, r *http.Request) {
	client := registry.ClientID(r.URL.Query().Get("client"))
	if client == "" {
		http.Error(w, "missing client", http.StatusBadRequest)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		glog.Infof("[ws]upgrade error = %s\n", err)
		return
	}

	conn := registry.NewConn(client, s.sendBuffer)
	push := func(msg any) {
		if err := conn.Push(wire.Encode(msg)); err != nil {
			glog.V(1).Infof("[ws]%s push error = %s\n", conn.ID, err)
		}
	}
	session := preview.New(s.renderer,
		func(res preview.Result) {
			push(wire.Preview{Type: wire.TypePreview, Generation: res.Generation, HTML: res.Output})
		},
		preview.WithDelay(s.debounce),
		preview.WithName(conn.ID.String()),
		preview.WithErrorHandler(func(generation uint64, err error) {
			push(wire.RenderError{Type: wire.TypeRenderError, Generation: generation, Error: err.Error()})
		}),
	)
	if err := s.registry.Register(conn); err != nil {
		glog.Infof("[ws]register error = %s\n", err)
		session.Close()
		ws.Close()
		return
	}
	glog.Infof("[ws]connected %s client=%s\n", conn.ID, client)

	go writePump(ws, conn)
	readPump(ws, conn, session, s.registry)
}

// readPump runs on the handler goroutine until the socket fails, then tears
// the connection down.
func readPump(ws *websocket.Conn, conn *registry.Conn, session *preview.Session, r *registry.Registry) {
	defer func() {
		r.Unregister(conn)
		session.Close()
		ws.Close()
		glog.Infof("[ws]disconnected %s client=%s\n", conn.ID, conn.Client)
	}()
	ws.SetReadLimit(maxMessage)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, buf, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.Infof("[ws]%s read error = %s\n", conn.ID, err)
			}
			return
		}
		msg, err := wire.Decode(buf)
		if err != nil {
			glog.Infof("[ws]%s %s\n", conn.ID, err)
			continue
		}
		switch m := msg.(type) {
		case *wire.Edit:
			session.Edit(m.Markup)
		case *wire.Ping:
			if err := conn.Push(wire.Encode(wire.Pong{Type: wire.TypePong})); err != nil {
				glog.V(1).Infof("[ws]%s pong error = %s\n", conn.ID, err)
			}
		default:
			glog.Infof("[ws]%s unexpected %T\n", conn.ID, msg)
		}
	}
}

// writePump is the only writer of ws. It ends when the registry closes the
// send channel or a write fails.
func writePump(ws *websocket.Conn, conn *registry.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()
	for {
		select {
		case msg, ok := <-conn.Send():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				glog.V(1).Infof("[ws]%s write error = %s\n", conn.ID, err)
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
