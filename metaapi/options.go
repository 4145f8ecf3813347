package metaapi

import (
	"context"
	"net/url"
	"os"
	"time"
)

// Option is a configuration option for the Client.
type Option func(*options)

type options struct {
	logger            Logger
	application       string
	domain            string
	requestTimeout    time.Duration
	connectTimeout    time.Duration
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	gapTimeout        time.Duration
	bufferSize        int
	encoding          Encoding
	onSubscribeError  func(accountID string, err error)

	// for testing only
	connCreator func(ctx context.Context, u url.URL, p connParams) (conn, error)
}

// defaultOptions are the default options for a client.
// Don't change this in a backward incompatible way!
func defaultOptions() *options {
	domain := "agiliumtrade.agiliumtrade.ai"
	if s := os.Getenv("METAAPI_DOMAIN"); s != "" {
		domain = s
	}

	return &options{
		logger:            newStdLog(),
		application:       "MetaApi",
		domain:            domain,
		requestTimeout:    60 * time.Second,
		connectTimeout:    60 * time.Second,
		reconnectDelay:    time.Second,
		maxReconnectDelay: 5 * time.Second,
		gapTimeout:        10 * time.Second,
		bufferSize:        100,
		encoding:          EncodingJSON,
		connCreator:       newNhooyrWebsocketConn,
	}
}

// WithLogger configures the logger
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithApplication configures the application id stamped on every request
func WithApplication(application string) Option {
	return func(o *options) {
		if application != "" {
			o.application = application
		}
	}
}

// WithDomain configures the API domain interpolated into the connection URL
func WithDomain(domain string) Option {
	return func(o *options) {
		if domain != "" {
			o.domain = domain
		}
	}
}

// WithRequestTimeout configures the default per-request deadline
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = timeout
	}
}

// WithConnectTimeout configures the initial connect deadline
func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = timeout
	}
}

// WithReconnectSettings configures the delay before a reconnect attempt and
// the ceiling it backs off to while the server stays unreachable.
func WithReconnectSettings(delay, maxDelay time.Duration) Option {
	return func(o *options) {
		o.reconnectDelay = delay
		o.maxReconnectDelay = maxDelay
	}
}

// WithGapTimeout configures how long the packet orderer waits for a missing
// sequence number before declaring the gap unrecoverable.
func WithGapTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.gapTimeout = timeout
	}
}

// WithBufferSize sets the size for the buffer that is used for messages
// received from the server
func WithBufferSize(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// WithEncoding selects the wire encoding of event frames
func WithEncoding(encoding Encoding) Option {
	return func(o *options) {
		o.encoding = encoding
	}
}

// WithSubscribeErrorCallback surfaces subscribe failures that would otherwise
// only be logged. Timeouts are not reported: the server is expected to push
// synchronization packets eventually.
func WithSubscribeErrorCallback(callback func(accountID string, err error)) Option {
	return func(o *options) {
		o.onSubscribeError = callback
	}
}

func withConnCreator(connCreator func(ctx context.Context, u url.URL, p connParams) (conn, error)) Option {
	return func(o *options) {
		o.connCreator = connCreator
	}
}
