// Package channel manages the duplex connection to the orchestrator: the
// message envelope protocol, one-shot connect/disconnect semantics, and a
// single uniform inbound message stream. Reconnection policy is explicitly
// not this package's concern; the client never redials on its own.
package channel

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/alnlabs/gmstation/internal/errors"
	"github.com/alnlabs/gmstation/internal/logger"
	"github.com/alnlabs/gmstation/internal/models"
)

// State is the connection lifecycle state
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Envelope is the fixed wire wrapper placed around every message
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// InboundMessage is the uniform event delivered for every recognized
// inbound message
type InboundMessage struct {
	Type    string
	Payload json.RawMessage
}

// EventKind classifies connection lifecycle events
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventError
)

// Event is a connection lifecycle notification
type Event struct {
	Kind EventKind
	Err  error
}

// recognizedTypes is the closed set of inbound event types the station
// understands. Anything else is dropped with a debug log.
var recognizedTypes = map[string]bool{
	"sync:full":               true,
	"transaction:result":      true,
	"transaction:new":         true,
	"score:updated":           true,
	"video:status":            true,
	"session:update":          true,
	"device:connected":        true,
	"device:disconnected":     true,
	"group:completed":         true,
	"gm:command:ack":          true,
	"offline:queue:processed": true,
	"batch:ack":               true,
	"error":                   true,
}

// Config holds channel configuration
type Config struct {
	// URL is the orchestrator websocket endpoint
	URL string
	// ConnectTimeout bounds how long Connect waits for the channel to open
	ConnectTimeout time.Duration
	// DisconnectTimeout bounds the graceful-close wait before cleanup is
	// forced
	DisconnectTimeout time.Duration
}

// DefaultConfig returns channel configuration with standard timeouts
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		ConnectTimeout:    10 * time.Second,
		DisconnectTimeout: 1 * time.Second,
	}
}

// Client is a websocket client for the orchestrator channel. At most one
// live connection exists at a time; Connect tears down any previous one
// first.
type Client struct {
	log    logger.Logger
	clock  clockwork.Clock
	cfg    Config
	dialer *websocket.Dialer

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	readerDone chan struct{}
	gen        int // connection generation; events from stale readers are ignored

	messages chan InboundMessage
	events   chan Event
}

// New creates a disconnected channel client
func New(log logger.Logger, clock clockwork.Clock, cfg Config) *Client {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.DisconnectTimeout == 0 {
		cfg.DisconnectTimeout = 1 * time.Second
	}
	return &Client{
		log:      log,
		clock:    clock,
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		messages: make(chan InboundMessage, 256),
		events:   make(chan Event, 16),
	}
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns the uniform inbound message stream
func (c *Client) Messages() <-chan InboundMessage {
	return c.messages
}

// Events returns the connection lifecycle event stream
func (c *Client) Events() <-chan Event {
	return c.events
}

type dialResult struct {
	conn *websocket.Conn
	err  error
}

// Connect opens the channel, authenticating with the credential and station
// identity. Any existing connection is torn down first. Resolves once the
// channel opens, fails immediately on an open error, or fails with a
// Transport timeout when neither happens within ConnectTimeout; a late open
// after the timeout is discarded.
func (c *Client) Connect(ctx context.Context, credential string, identity models.Identity) error {
	c.mu.Lock()
	c.teardownLocked()
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	target, err := c.connectURL(credential, identity)
	if err != nil {
		c.setDisconnected(gen)
		return errors.Wrap(err, errors.ErrTransport, "invalid channel address")
	}

	resCh := make(chan dialResult, 1)
	go func() {
		conn, resp, dialErr := c.dialer.DialContext(ctx, target, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		resCh <- dialResult{conn: conn, err: dialErr}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			c.setDisconnected(gen)
			c.emitEvent(Event{Kind: EventError, Err: res.err})
			return errors.Wrap(res.err, errors.ErrTransport, "channel open failed")
		}
		return c.adopt(gen, res.conn)

	case <-c.clock.After(c.cfg.ConnectTimeout):
		// Already rejected; a late open must be ignored
		go discardLateDial(resCh)
		c.setDisconnected(gen)
		err := errors.Transport("channel open timed out")
		c.emitEvent(Event{Kind: EventError, Err: err})
		return err

	case <-ctx.Done():
		go discardLateDial(resCh)
		c.setDisconnected(gen)
		return errors.Wrap(ctx.Err(), errors.ErrTransport, "channel open canceled")
	}
}

func discardLateDial(resCh <-chan dialResult) {
	if res := <-resCh; res.conn != nil {
		res.conn.Close()
	}
}

// adopt installs an opened connection, unless the client moved on to a
// newer generation in the meantime
func (c *Client) adopt(gen int, conn *websocket.Conn) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		conn.Close()
		return errors.Transport("connection superseded before open completed")
	}

	c.conn = conn
	c.state = StateConnected
	c.readerDone = make(chan struct{})
	done := c.readerDone
	c.mu.Unlock()

	go c.readPump(conn, done, gen)

	c.log.Info("Channel connected", "url", c.cfg.URL)
	c.emitEvent(Event{Kind: EventConnected})
	return nil
}

func (c *Client) connectURL(credential string, identity models.Identity) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("token", credential)
	q.Set("deviceId", identity.DeviceID)
	q.Set("deviceType", identity.DeviceType)
	q.Set("version", identity.Version)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// setDisconnected resets state for the given generation only
func (c *Client) setDisconnected(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.conn == nil {
		c.state = StateDisconnected
	}
}

// readPump forwards inbound messages until the connection closes
func (c *Client) readPump(conn *websocket.Conn, done chan struct{}, gen int) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(gen, err)
			return
		}
		c.dispatch(data, gen)
	}
}

// dispatch unwraps one inbound message and re-emits it on the uniform
// message stream
func (c *Client) dispatch(data []byte, gen int) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		c.log.Debug("Dropping unparseable inbound message", "bytes", len(data))
		return
	}

	if !recognizedTypes[env.Event] {
		c.log.Debug("Dropping unrecognized inbound event", "type", env.Event)
		return
	}

	payload := env.Data
	if payload == nil {
		// Unwrapped message: forward the raw bytes
		payload = json.RawMessage(data)
	}

	select {
	case c.messages <- InboundMessage{Type: env.Event, Payload: payload}:
	default:
		c.log.Warn("Inbound message buffer full, dropping message", "type", env.Event)
	}
}

// handleClosed records a channel-layer close, unless a newer connection has
// already replaced this one
func (c *Client) handleClosed(gen int, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Warn("Channel closed unexpectedly", "error", err)
		c.emitEvent(Event{Kind: EventError, Err: err})
	} else {
		c.log.Info("Channel closed")
	}
	c.emitEvent(Event{Kind: EventDisconnected})
}

// Send transmits an envelope over the channel. Fails with a Transport error
// when not connected; never silently dropped.
func (c *Client) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrTransport, "failed to encode payload")
	}

	env := Envelope{
		Event:     event,
		Data:      data,
		Timestamp: c.clock.Now().UTC().Format(time.RFC3339),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected || c.conn == nil {
		err := errors.Transportf("cannot send %q: channel not connected", event)
		c.emitEvent(Event{Kind: EventError, Err: err})
		return err
	}

	if err := c.conn.WriteJSON(env); err != nil {
		return errors.Wrap(err, errors.ErrTransport, "failed to send message")
	}
	return nil
}

// Disconnect requests a graceful close and waits for the close
// acknowledgement, bounded by DisconnectTimeout before cleanup is forced.
// Always ends disconnected with the connection discarded.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	done := c.readerDone
	if conn == nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	select {
	case <-done:
	case <-c.clock.After(c.cfg.DisconnectTimeout):
		c.log.Debug("Graceful close timed out, forcing cleanup")
	case <-ctx.Done():
	}

	c.teardown()
	return nil
}

// Destroy forces teardown without waiting for a graceful close. Used on
// application shutdown.
func (c *Client) Destroy() {
	c.teardown()
}

func (c *Client) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

// teardownLocked discards any existing connection and bumps the generation
// so stale reader events are ignored. Caller must hold c.mu.
func (c *Client) teardownLocked() {
	hadConn := c.conn != nil
	if hadConn {
		c.conn.Close()
		c.conn = nil
	}
	c.gen++
	c.state = StateDisconnected
	if hadConn {
		c.emitEvent(Event{Kind: EventDisconnected})
	}
}

func (c *Client) emitEvent(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
