package metaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// conn represents a websocket connection between the server and the client.
// Framing is a named event plus an encoded payload; connection lifecycle
// (connect, disconnect, transport error) is expressed through dial results and
// read errors rather than dedicated events.
type conn interface {
	// close closes the websocket connection
	close() error
	// ping sends a ping to the server
	ping(ctx context.Context) error
	// readMessage blocks until it reads a single message
	readMessage(ctx context.Context) (data []byte, err error)
	// writeMessage writes a single message
	writeMessage(ctx context.Context, data []byte) error
}

var (
	writeWait  = 5 * time.Second  // Time allowed to write a message to the peer
	pongWait   = 5 * time.Second  // Time allowed to read the next pong message from the peer
	pingPeriod = 10 * time.Second // Send pings to peer with this period
)

// Encoding selects the wire encoding of event frames.
type Encoding string

const (
	// EncodingJSON sends events as JSON text frames. This is the default.
	EncodingJSON Encoding = "json"
	// EncodingMsgpack sends events as msgpack binary frames. Inbound payloads
	// are transcoded to JSON at the edge so the rest of the pipeline sees one
	// format.
	EncodingMsgpack Encoding = "msgpack"
)

// event is a single named message. Inbound data is always JSON regardless of
// the wire encoding.
type event struct {
	name string
	data json.RawMessage
}

// codec encodes and decodes event frames. A frame is a two element array of
// event name and payload.
type codec interface {
	contentType() string
	binary() bool
	encode(name string, payload interface{}) ([]byte, error)
	decode(data []byte) (event, error)
}

func newCodec(e Encoding) (codec, error) {
	switch e {
	case "", EncodingJSON:
		return jsonCodec{}, nil
	case EncodingMsgpack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", e)
	}
}

type jsonCodec struct{}

func (jsonCodec) contentType() string { return "application/json" }

func (jsonCodec) binary() bool { return false }

func (jsonCodec) encode(name string, payload interface{}) ([]byte, error) {
	return json.Marshal([2]interface{}{name, payload})
}

func (jsonCodec) decode(data []byte) (event, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return event{}, err
	}
	if len(frame) != 2 {
		return event{}, fmt.Errorf("event frame has %d elements", len(frame))
	}
	var name string
	if err := json.Unmarshal(frame[0], &name); err != nil {
		return event{}, err
	}
	return event{name: name, data: frame[1]}, nil
}

type msgpackCodec struct{}

func (msgpackCodec) contentType() string { return "application/msgpack" }

func (msgpackCodec) binary() bool { return true }

func (msgpackCodec) encode(name string, payload interface{}) ([]byte, error) {
	return msgpack.Marshal([2]interface{}{name, payload})
}

func (msgpackCodec) decode(data []byte) (event, error) {
	var frame []msgpack.RawMessage
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return event{}, err
	}
	if len(frame) != 2 {
		return event{}, fmt.Errorf("event frame has %d elements", len(frame))
	}
	var name string
	if err := msgpack.Unmarshal(frame[0], &name); err != nil {
		return event{}, err
	}
	var payload interface{}
	if err := msgpack.Unmarshal(frame[1], &payload); err != nil {
		return event{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return event{}, err
	}
	return event{name: name, data: data}, nil
}
