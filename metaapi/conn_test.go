package metaapi

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errClose        = errors.New("closed")
	errPingDisabled = errors.New("ping disabled")
)

type mockConn struct {
	pingCh       chan struct{}
	closeCh      chan struct{}
	closeOnce    sync.Once
	readCh       chan []byte
	writeCh      chan []byte
	pingDisabled bool
}

var _ conn = (*mockConn)(nil)

func newMockConn() *mockConn {
	return &mockConn{
		pingCh:  make(chan struct{}, 10),
		closeCh: make(chan struct{}),
		readCh:  make(chan []byte, 10),
		writeCh: make(chan []byte, 10),
	}
}

func (c *mockConn) close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
	return nil
}

func (c *mockConn) ping(_ context.Context) error {
	if c.pingDisabled {
		return errPingDisabled
	}
	select {
	case <-c.closeCh:
		return errClose
	default:
	}
	c.pingCh <- struct{}{}
	return nil
}

func (c *mockConn) readMessage(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-c.readCh:
		return data, nil
	case <-c.closeCh:
		return nil, errClose
	}
}

func (c *mockConn) writeMessage(_ context.Context, data []byte) error {
	select {
	case <-c.closeCh:
		return errClose
	default:
	}
	c.writeCh <- data
	return nil
}

// serveEvent queues an inbound event frame on the mock connection.
func (c *mockConn) serveEvent(t *testing.T, name string, payload interface{}) {
	t.Helper()
	frame, err := jsonCodec{}.encode(name, payload)
	require.NoError(t, err)
	c.readCh <- frame
}

func TestJSONCodecRoundTrip(t *testing.T) {
	cdc := jsonCodec{}

	frame, err := cdc.encode("request", map[string]interface{}{"type": "subscribe", "requestId": "abc"})
	require.NoError(t, err)

	ev, err := cdc.decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "request", ev.name)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(ev.data, &payload))
	assert.Equal(t, "subscribe", payload["type"])
	assert.Equal(t, "abc", payload["requestId"])
}

func TestMsgpackCodecDecodesToJSON(t *testing.T) {
	cdc := msgpackCodec{}

	frame, err := cdc.encode("response", map[string]interface{}{"requestId": "r1", "balance": 100.5})
	require.NoError(t, err)

	ev, err := cdc.decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "response", ev.name)

	// The inbound payload is JSON regardless of wire encoding.
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(ev.data, &payload))
	assert.Equal(t, "r1", payload["requestId"])
	assert.Equal(t, 100.5, payload["balance"])
}

func TestCodecRejectsMalformedFrame(t *testing.T) {
	_, err := jsonCodec{}.decode([]byte(`["only-name"]`))
	require.Error(t, err)

	_, err = jsonCodec{}.decode([]byte(`{"not":"an array"}`))
	require.Error(t, err)
}

func TestNewCodec(t *testing.T) {
	c, err := newCodec("")
	require.NoError(t, err)
	assert.Equal(t, "application/json", c.contentType())
	assert.False(t, c.binary())

	c, err = newCodec(EncodingMsgpack)
	require.NoError(t, err)
	assert.Equal(t, "application/msgpack", c.contentType())
	assert.True(t, c.binary())

	_, err = newCodec("xml")
	require.Error(t, err)
}
