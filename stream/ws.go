package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketDialer dials JSON-over-WebSocket endpoints.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadLimit maximum frame size in bytes, 0 means 1 MiB
	ReadLimit int64
}

// NewWebsocketDialer handshake timeout 10s, write timeout 5s
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        1 << 20,
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string, header http.Header) (Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrUnauthorized.WithData("status", resp.StatusCode).Wrap(err)
		}
		return nil, ErrDialFailed.WithData("endpoint", endpoint).Wrap(err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = 1 << 20
	}
	ws.SetReadLimit(limit)
	return &wsConn{ws: ws, writeTimeout: d.WriteTimeout}, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
	closeMu sync.Once
}

func (c *wsConn) Read() (Message, error) {
	typ, b, err := c.ws.ReadMessage()
	if err != nil {
		return Message{}, ErrConnectionLost.Wrap(err)
	}
	if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
		return Message{}, ErrInvalidMessage.WithMsgf("unexpected frame type %d", typ)
	}
	return Decode(b)
}

func (c *wsConn) Write(ctx context.Context, m Message) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(deadline)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return err
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeMu.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
