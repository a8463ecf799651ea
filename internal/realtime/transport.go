package realtime

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is one open bidirectional channel.
type Conn interface {
	// ReadMessage blocks until the next inbound message or a close.
	ReadMessage() ([]byte, error)

	// WriteJSON sends v as a JSON text message.
	WriteJSON(v any) error

	Close() error
}

// Transport dials channels. The production implementation speaks
// websocket; tests inject a fake to drive the state machine without a
// live socket.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketTransport is the gorilla/websocket-backed Transport.
type WebsocketTransport struct {
	Dialer *websocket.Dialer
}

func NewWebsocketTransport() *WebsocketTransport {
	return &WebsocketTransport{Dialer: websocket.DefaultDialer}
}

func (t *WebsocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	c, resp, err := t.Dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteJSON(v any) error { return c.conn.WriteJSON(v) }

func (c *wsConn) Close() error { return c.conn.Close() }
