package metaapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"nhooyr.io/websocket"
)

type nhooyrWebsocketConn struct {
	conn    *websocket.Conn
	msgType websocket.MessageType
}

// connParams carries the per-connection dial settings.
type connParams struct {
	clientID    string
	contentType string
	binary      bool
	dialTimeout time.Duration
}

// newNhooyrWebsocketConn creates a new nhooyr websocket connection
func newNhooyrWebsocketConn(ctx context.Context, u url.URL, p connParams) (conn, error) {
	dialTimeout := p.dialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 60 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	reqHeader := http.Header{}
	reqHeader.Set("Content-Type", p.contentType)
	reqHeader.Set("Client-Id", p.clientID)
	//nolint:bodyclose // According to its docs: you never need to close resp.Body yourself
	c, _, err := websocket.Dial(ctxWithTimeout, u.String(), &websocket.DialOptions{
		CompressionMode: websocket.CompressionContextTakeover,
		HTTPHeader:      reqHeader,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	// Synchronization packets can carry whole account snapshots.
	c.SetReadLimit(1 << 24)

	msgType := websocket.MessageText
	if p.binary {
		msgType = websocket.MessageBinary
	}
	return &nhooyrWebsocketConn{
		conn:    c,
		msgType: msgType,
	}, nil
}

// close closes the websocket connection
func (c *nhooyrWebsocketConn) close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// ping sends a ping to the server
func (c *nhooyrWebsocketConn) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pongWait)
	defer cancel()

	return c.conn.Ping(pingCtx)
}

// readMessage blocks until it reads a single message
func (c *nhooyrWebsocketConn) readMessage(ctx context.Context) (data []byte, err error) {
	_, data, err = c.conn.Read(ctx)
	return data, err
}

// writeMessage writes a single message
func (c *nhooyrWebsocketConn) writeMessage(ctx context.Context, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	return c.conn.Write(writeCtx, c.msgType, data)
}
