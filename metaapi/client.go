package metaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"
)

// Client is a MetaApi websocket client. It multiplexes request/response RPCs
// for many accounts over one connection and feeds the inbound synchronization
// stream through per-account reordering into registered listeners.
//
// Connect must be called before issuing requests; the typed request methods
// do it implicitly. The client keeps the connection alive and reestablishes
// it until Close is called.
type Client struct {
	logger            Logger
	token             string
	application       string
	domain            string
	requestTimeout    time.Duration
	connectTimeout    time.Duration
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	bufferSize        int
	onSubscribeError  func(accountID string, err error)

	codec       codec
	clientID    string
	connCreator func(ctx context.Context, u url.URL, p connParams) (conn, error)

	orderer    *packetOrderer
	dispatcher *dispatcher

	out      chan []byte
	closedCh chan struct{}

	mu                 sync.Mutex
	closed             bool
	connectStarted     bool
	connectResolved    bool
	connectDone        chan struct{}
	connectErr         error
	sessionCancel      context.CancelFunc
	conn               conn
	requests           map[string]*pendingRequest
	reconnectListeners []func()
}

type rpcResult struct {
	data json.RawMessage
	err  error
}

type pendingRequest struct {
	accountID   string
	requestType string
	result      chan rpcResult
}

func (r *pendingRequest) resolve(data json.RawMessage) {
	r.result <- rpcResult{data: data}
}

func (r *pendingRequest) reject(err error) {
	r.result <- rpcResult{err: err}
}

// NewClient creates a client authenticating with the given token. An empty
// token falls back to the METAAPI_TOKEN environment variable.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		token = os.Getenv("METAAPI_TOKEN")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	cdc, err := newCodec(o.encoding)
	if err != nil {
		return nil, err
	}

	c := &Client{
		logger:            o.logger,
		token:             token,
		application:       o.application,
		domain:            o.domain,
		requestTimeout:    o.requestTimeout,
		connectTimeout:    o.connectTimeout,
		reconnectDelay:    o.reconnectDelay,
		maxReconnectDelay: o.maxReconnectDelay,
		bufferSize:        o.bufferSize,
		onSubscribeError:  o.onSubscribeError,
		codec:             cdc,
		clientID:          newClientID(),
		connCreator:       o.connCreator,
		out:               make(chan []byte, o.bufferSize),
		closedCh:          make(chan struct{}),
		requests:          map[string]*pendingRequest{},
	}
	c.dispatcher = newDispatcher(o.logger)
	c.orderer = newPacketOrderer(o.gapTimeout, o.logger, c.resubscribe)
	return c, nil
}

// AddSynchronizationListener registers a listener for the account's
// synchronization events.
func (c *Client) AddSynchronizationListener(accountID string, listener *SynchronizationListener) {
	c.dispatcher.addListener(accountID, listener)
}

// RemoveSynchronizationListener unregisters a previously added listener.
func (c *Client) RemoveSynchronizationListener(accountID string, listener *SynchronizationListener) {
	c.dispatcher.removeListener(accountID, listener)
}

// AddReconnectListener registers a callback invoked after the connection has
// been reestablished. Listeners run sequentially; failures are logged and do
// not affect other listeners.
func (c *Client) AddReconnectListener(listener func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectListeners = append(c.reconnectListeners, listener)
}

// Connect establishes the connection. It blocks until the connection is
// established for the first time or the first attempt fails. Redundant calls
// await the outcome of the first.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if !c.connectStarted {
		c.connectStarted = true
		c.connectResolved = false
		c.connectDone = make(chan struct{})
		sessionCtx, cancel := context.WithCancel(context.Background())
		c.sessionCancel = cancel
		c.orderer.start()
		go c.maintainConnection(sessionCtx)
	}
	done := c.connectDone
	c.mu.Unlock()

	select {
	case <-done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.connectErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flips the client into the closed state: the socket is closed, every
// in-flight request is rejected with a connection-closed error, listener
// registrations are dropped and the packet orderer is stopped.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.sessionCancel != nil {
		c.sessionCancel()
	}
	conn := c.conn
	c.conn = nil
	requests := c.requests
	c.requests = map[string]*pendingRequest{}
	if c.connectStarted && !c.connectResolved {
		c.connectErr = ErrClientClosed
		c.connectResolved = true
		close(c.connectDone)
	}
	c.mu.Unlock()

	close(c.closedCh)
	if conn != nil {
		_ = conn.close()
	}
	for _, waiter := range requests {
		waiter.reject(ErrConnectionClosed)
	}
	c.dispatcher.close()
	c.orderer.stop()
	return nil
}

func (c *Client) constructURL() url.URL {
	return url.URL{
		Scheme:   "wss",
		Host:     "mt-client-api-v1." + c.domain,
		Path:     "/ws",
		RawQuery: "auth-token=" + url.QueryEscape(c.token),
	}
}

func (c *Client) resolveConnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectResolved {
		return
	}
	c.connectErr = err
	c.connectResolved = true
	if err != nil {
		// Allow a later Connect call to start over.
		c.connectStarted = false
		if c.sessionCancel != nil {
			c.sessionCancel()
		}
	}
	close(c.connectDone)
}

// maintainConnection dials the server, runs the per-connection workers and
// redials with backoff whenever the connection is lost, until the client is
// closed. The first dial's outcome resolves Connect.
func (c *Client) maintainConnection(ctx context.Context) {
	u := c.constructURL()
	firstConnection := true
	failedAttemptsInARow := 0

	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := c.connCreator(ctx, u, connParams{
			clientID:    c.clientID,
			contentType: c.codec.contentType(),
			binary:      c.codec.binary(),
			dialTimeout: c.connectTimeout,
		})
		if err != nil {
			if firstConnection {
				c.logger.Errorf("metaapi: failed to connect to %s, error: %v", u.Host, err)
				c.resolveConnect(err)
				return
			}
			c.logger.Warnf("metaapi: failed to reconnect, error: %v", err)
			failedAttemptsInARow++
			if !c.sleep(ctx, c.reconnectBackoff(failedAttemptsInARow)) {
				return
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		if firstConnection {
			firstConnection = false
			c.logger.Infof("metaapi: established connection")
			c.resolveConnect(nil)
		} else {
			c.logger.Infof("metaapi: reconnected")
			c.notifyReconnectListeners()
		}
		failedAttemptsInARow = 0

		c.serveConnection(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.logger.Infof("metaapi: disconnected")
			return
		}
		c.logger.Warnf("metaapi: connection lost")
		failedAttemptsInARow++
		if !c.sleep(ctx, c.reconnectBackoff(failedAttemptsInARow)) {
			return
		}
	}
}

func (c *Client) reconnectBackoff(failedAttemptsInARow int) time.Duration {
	d := c.reconnectDelay
	for i := 1; i < failedAttemptsInARow && d < c.maxReconnectDelay; i++ {
		d *= 2
	}
	if d > c.maxReconnectDelay {
		d = c.maxReconnectDelay
	}
	return d
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// serveConnection starts the per-connection workers and processes inbound
// events until the connection is lost or the client closes.
func (c *Client) serveConnection(ctx context.Context, conn conn) {
	in := make(chan event, c.bufferSize)
	closeCh := make(chan struct{})
	wg := sync.WaitGroup{}
	wg.Add(3)
	go c.connPinger(ctx, conn, &wg, closeCh)
	go c.connReader(ctx, conn, &wg, closeCh, in)
	go c.connWriter(ctx, conn, &wg, closeCh)

	for ev := range in {
		c.handleEvent(ev)
	}
	wg.Wait()
}

// connPinger periodically pings the server to ensure the connection is still
// alive.
func (c *Client) connPinger(ctx context.Context, conn conn, wg *sync.WaitGroup, closeCh <-chan struct{}) {
	pingTicker := newTimeTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		_ = conn.close()
		wg.Done()
	}()

	for {
		select {
		case <-closeCh:
			return
		case <-ctx.Done():
			return
		case <-pingTicker.C():
			if err := conn.ping(ctx); err != nil {
				if ctx.Err() == nil {
					c.logger.Errorf("metaapi: ping failed, error: %v", err)
				}
				return
			}
		}
	}
}

// connReader reads and decodes inbound frames. It is also responsible for
// closing closeCh, which terminates the other workers, and for closing the in
// channel, which terminates event processing.
func (c *Client) connReader(ctx context.Context, conn conn, wg *sync.WaitGroup, closeCh chan<- struct{}, in chan<- event) {
	defer func() {
		close(closeCh)
		_ = conn.close()
		close(in)
		wg.Done()
	}()

	for {
		data, err := conn.readMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Errorf("metaapi: reading from conn failed, error: %v", err)
			}
			return
		}
		ev, err := c.codec.decode(data)
		if err != nil {
			c.logger.Errorf("metaapi: could not decode inbound frame, error: %v", err)
			continue
		}
		in <- ev
	}
}

// connWriter forwards queued outbound frames to the connection.
func (c *Client) connWriter(ctx context.Context, conn conn, wg *sync.WaitGroup, closeCh <-chan struct{}) {
	defer func() {
		_ = conn.close()
		wg.Done()
	}()

	for {
		select {
		case <-closeCh:
			return
		case <-ctx.Done():
			return
		case frame := <-c.out:
			if err := conn.writeMessage(ctx, frame); err != nil {
				if ctx.Err() == nil {
					c.logger.Errorf("metaapi: writing to conn failed, error: %v", err)
				}
				return
			}
		}
	}
}

func (c *Client) notifyReconnectListeners() {
	c.mu.Lock()
	listeners := make([]func(), len(c.reconnectListeners))
	copy(listeners, c.reconnectListeners)
	c.mu.Unlock()

	// Sequential on purpose; a failing listener must not block the others.
	for _, listener := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Errorf("metaapi: reconnect listener failed: %v", r)
				}
			}()
			listener()
		}()
	}
}

func (c *Client) handleEvent(ev event) {
	switch ev.name {
	case "response":
		info, err := scanPacketInfo(ev.data)
		if err != nil {
			c.logger.Errorf("metaapi: could not scan response packet, error: %v", err)
			return
		}
		// A response for an unknown request id belongs to a request that
		// already timed out; discard it.
		if waiter := c.takeRequest(info.RequestID); waiter != nil {
			waiter.resolve(ev.data)
		}
	case "processingError":
		var pe processingError
		if err := json.Unmarshal(ev.data, &pe); err != nil {
			c.logger.Errorf("metaapi: could not decode processing error, error: %v", err)
			return
		}
		wireErr := errorFromWire(pe)
		waiter := c.takeRequest(pe.RequestID)
		if isErrorFatal(wireErr) {
			c.logger.Errorf("metaapi: fatal error from server, closing: %v", wireErr)
			_ = c.Close()
		}
		if waiter != nil {
			waiter.reject(wireErr)
		}
	case "synchronization":
		var packet map[string]interface{}
		if err := json.Unmarshal(ev.data, &packet); err != nil {
			c.logger.Errorf("metaapi: could not decode synchronization packet, error: %v", err)
			return
		}
		packet, _ = NormalizeTimes(packet).(map[string]interface{})
		for _, ordered := range c.orderer.restoreOrder(packet) {
			c.dispatcher.dispatch(ordered)
		}
	default:
		c.logger.Infof("metaapi: ignoring event %s", ev.name)
	}
}

func (c *Client) addRequest(requestID string, waiter *pendingRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if prev, ok := c.requests[requestID]; ok {
		prev.reject(&InternalError{Message: fmt.Sprintf("request %s superseded by a newer request with the same id", requestID)})
	}
	c.requests[requestID] = waiter
	return nil
}

func (c *Client) takeRequest(requestID string) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiter := c.requests[requestID]
	delete(c.requests, requestID)
	return waiter
}

func (c *Client) send(ctx context.Context, frame []byte) error {
	select {
	case c.out <- frame:
		return nil
	case <-c.closedCh:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rpc issues a request and waits for the matching response, a processing
// error, the deadline or the client closing, whichever comes first.
func (c *Client) rpc(ctx context.Context, accountID string, request map[string]interface{}, timeout time.Duration) (json.RawMessage, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	requestID, _ := request["requestId"].(string)
	if requestID == "" {
		requestID = randomRequestID()
		request["requestId"] = requestID
	}
	requestType, _ := request["type"].(string)
	request["accountId"] = accountID
	request["application"] = c.application

	waiter := &pendingRequest{
		accountID:   accountID,
		requestType: requestType,
		result:      make(chan rpcResult, 1),
	}
	if err := c.addRequest(requestID, waiter); err != nil {
		return nil, err
	}

	frame, err := c.codec.encode("request", request)
	if err != nil {
		c.takeRequest(requestID)
		return nil, err
	}
	if err := c.send(ctx, frame); err != nil {
		c.takeRequest(requestID)
		return nil, err
	}

	if timeout <= 0 {
		timeout = c.requestTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-waiter.result:
		return res.data, res.err
	case <-timer.C:
		c.takeRequest(requestID)
		return nil, &TimeoutError{
			Message: fmt.Sprintf("request %s of type %s timed out", requestID, requestType),
		}
	case <-ctx.Done():
		c.takeRequest(requestID)
		return nil, ctx.Err()
	}
}

// RPC issues a raw request and returns the normalized response payload.
// Instant-valued fields of the payload are converted to time.Time.
func (c *Client) RPC(ctx context.Context, accountID string, request map[string]interface{}) (map[string]interface{}, error) {
	raw, err := c.rpc(ctx, accountID, request, 0)
	if err != nil {
		return nil, err
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	payload, _ = NormalizeTimes(payload).(map[string]interface{})
	return payload, nil
}

// resubscribe is invoked by the packet orderer when a sequence gap could not
// be recovered. A fresh subscribe makes the server restart the account's
// synchronization stream.
func (c *Client) resubscribe(accountID string, expected, actual int64) {
	c.logger.Warnf("metaapi: account %s: resubscribing after unrecoverable sequence gap (expected %d, got %d)",
		accountID, expected, actual)
	c.Subscribe(accountID)
}
