// Package wire holds the JSON messages exchanged over the websocket.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeDocumentChanged = "document-changed"
	TypePreview         = "preview"
	TypeRenderError     = "render-error"
	TypeEdit            = "edit"
	TypePing            = "ping"
	TypePong            = "pong"
)

// MsgType is decoded first to pick the concrete message.
type MsgType struct {
	Type string `json:"type"`
}

// Sent from server to client when another client changed a document.
type DocumentChanged struct {
	Type       string    `json:"type"`
	DocumentID string    `json:"documentId"`
	Client     string    `json:"client"` // identity of the client that made the change
	Timestamp  time.Time `json:"timestamp"`
}

// Sent from client to server. Markup is the full replacement text.
type Edit struct {
	Type   string `json:"type"`
	Markup string `json:"markup"`
}

// Sent from server to client with the rendered output of an edit.
type Preview struct {
	Type       string `json:"type"`
	Generation uint64 `json:"generation"`
	HTML       string `json:"html"`
}

// Sent from server to client when rendering an edit failed.
type RenderError struct {
	Type       string `json:"type"`
	Generation uint64 `json:"generation"`
	Error      string `json:"error"`
}

type Ping struct {
	Type string `json:"type"`
}

type Pong struct {
	Type string `json:"type"`
}

// Encode marshals msg without HTML escaping, so preview payloads stay
// readable. Every message type here marshals cleanly, so an error means a
// programming mistake.
func Encode(msg any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		panic(fmt.Sprintf("wire: encode %T: %v", msg, err))
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// Decode returns a pointer to the concrete message in buf.
func Decode(buf []byte) (any, error) {
	var mt MsgType
	if err := json.Unmarshal(buf, &mt); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}
	var msg any
	switch mt.Type {
	case TypeDocumentChanged:
		msg = &DocumentChanged{}
	case TypePreview:
		msg = &Preview{}
	case TypeRenderError:
		msg = &RenderError{}
	case TypeEdit:
		msg = &Edit{}
	case TypePing:
		msg = &Ping{}
	case TypePong:
		msg = &Pong{}
	default:
		return nil, fmt.Errorf("wire: unknown message type: %q", mt.Type)
	}
	if err := json.Unmarshal(buf, msg); err != nil {
		return nil, fmt.Errorf("wire: decode %s: %w", mt.Type, err)
	}
	return msg, nil
}
