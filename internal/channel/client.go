// Package channel maintains the persistent push connection to the remote
// authority. It is independent of the sync path: losing the channel does not
// pause syncing and vice versa.
package channel

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ashupal86/GraminStore/internal/models"
	"github.com/ashupal86/GraminStore/internal/util"
)

// State is the channel client's connection state
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"

	// StateBlocked is terminal: the authority closed the connection with a
	// policy violation, so the realtime feature is disabled rather than
	// retried.
	StateBlocked State = "blocked"
)

const (
	defaultReconnectBase = time.Second
	defaultMaxReconnects = 5
)

// Handler receives one inbound message
type Handler func(models.Envelope)

type subscription struct {
	id      int64
	handler Handler
}

// Client is the realtime channel client
type Client struct {
	baseURL       string
	dialer        *websocket.Dialer
	reconnectBase time.Duration
	maxReconnects int
	logger        *zap.Logger

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	token          string
	attempt        int
	reconnectTimer *time.Timer
	closing        bool
	lastErr        error
	subs           map[string][]subscription
	nextSubID      int64
}

// NewClient creates a channel client for the given base endpoint
// (e.g. "wss://api.graminstore.example"). reconnectBase and maxReconnects
// fall back to 1s and 5 when zero.
func NewClient(baseURL string, reconnectBase time.Duration, maxReconnects int) *Client {
	if reconnectBase <= 0 {
		reconnectBase = defaultReconnectBase
	}
	if maxReconnects <= 0 {
		maxReconnects = defaultMaxReconnects
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		dialer:        websocket.DefaultDialer,
		reconnectBase: reconnectBase,
		maxReconnects: maxReconnects,
		logger:        util.GetLogger(),
		state:         StateDisconnected,
		subs:          make(map[string][]subscription),
	}
}

// State reports the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers a handler for msgType. models.MessageTypeWildcard
// receives every message. Handlers run in registration order; a panic in one
// handler is recovered and logged without affecting the others. The returned
// function unsubscribes.
func (c *Client) Subscribe(msgType string, handler Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subs[msgType] = append(c.subs[msgType], subscription{id: id, handler: handler})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[msgType]
		for i, sub := range subs {
			if sub.id == id {
				c.subs[msgType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Connect opens the push connection using the caller's bearer token. A failed
// or dropped connection is retried with exponential backoff unless the
// closure was a policy violation or a client-initiated Disconnect.
func (c *Client) Connect(token string) {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting || c.state == StateBlocked {
		c.mu.Unlock()
		return
	}
	c.token = token
	c.closing = false
	c.mu.Unlock()

	c.dial()
}

func (c *Client) dial() {
	c.mu.Lock()
	if c.closing || c.state == StateBlocked {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	url := fmt.Sprintf("%s/api/v1/ws/orders/%s", c.baseURL, c.token)
	c.mu.Unlock()

	conn, resp, err := c.dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn("Channel dial failed", zap.Error(err))
		c.scheduleReconnect(err)
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.attempt = 0
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Info("Channel connected")
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClosure(err)
			return
		}
		c.dispatch(data)
	}
}

// handleClosure classifies a read error: normal client close ends quietly,
// a policy violation blocks the client permanently, anything else drives
// the reconnect state machine.
func (c *Client) handleClosure(err error) {
	c.mu.Lock()
	c.conn = nil
	if c.closing {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}

	if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		c.state = StateBlocked
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn("Channel blocked by remote policy, realtime updates disabled", zap.Error(err))
		return
	}
	c.mu.Unlock()

	c.logger.Warn("Channel connection lost", zap.Error(err))
	c.scheduleReconnect(err)
}

// scheduleReconnect arms the backoff timer for the next attempt, or surfaces
// a terminal failure once the attempt budget is spent.
func (c *Client) scheduleReconnect(cause error) {
	c.mu.Lock()
	if c.closing || c.state == StateBlocked {
		c.mu.Unlock()
		return
	}

	c.lastErr = cause
	c.attempt++
	if c.attempt > c.maxReconnects {
		c.state = StateDisconnected
		attempts := c.attempt - 1
		c.mu.Unlock()

		c.logger.Error("Channel reconnect attempts exhausted",
			zap.Int("attempts", attempts),
			zap.Error(cause))
		c.dispatchLocal(models.MessageTypeChannelFailed, models.ChannelFailedData{
			Attempts: attempts,
			LastErr:  cause.Error(),
			At:       time.Now(),
		})
		return
	}

	delay := backoffDelay(c.reconnectBase, c.attempt)
	c.state = StateDisconnected
	c.reconnectTimer = time.AfterFunc(delay, c.dial)
	attempt := c.attempt
	c.mu.Unlock()

	util.ChannelReconnectsTotal.Inc()
	c.logger.Info("Channel reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
}

// backoffDelay returns base * 2^(attempt-1)
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << uint(attempt-1)
}

// dispatch decodes one inbound frame and fans it out to subscribers.
// Malformed payloads are logged and dropped; they never crash the loop.
func (c *Client) dispatch(data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		util.ChannelDroppedTotal.Inc()
		c.logger.Warn("Dropping malformed channel message", zap.Error(err))
		return
	}

	util.ChannelMessagesTotal.WithLabelValues(env.Type).Inc()
	c.fanout(env)
}

// dispatchLocal synthesizes a message that never crossed the wire
// (e.g. channel_failed) and fans it out like any other.
func (c *Client) dispatchLocal(msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("Failed to encode local channel message", zap.Error(err))
		return
	}
	c.fanout(models.Envelope{Type: msgType, Data: data})
}

func (c *Client) fanout(env models.Envelope) {
	c.mu.Lock()
	handlers := make([]Handler, 0,
		len(c.subs[env.Type])+len(c.subs[models.MessageTypeWildcard]))
	for _, sub := range c.subs[env.Type] {
		handlers = append(handlers, sub.handler)
	}
	for _, sub := range c.subs[models.MessageTypeWildcard] {
		handlers = append(handlers, sub.handler)
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		c.invoke(handler, env)
	}
}

// invoke runs one handler with panic isolation so a broken subscriber cannot
// prevent dispatch to the others.
func (c *Client) invoke(handler Handler, env models.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Channel subscriber panicked",
				zap.String("type", env.Type),
				zap.Any("panic", r))
		}
	}()
	handler(env)
}

// Send writes a message to the authority. When not connected it logs a
// warning and returns without error.
func (c *Client) Send(env models.Envelope) {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		c.logger.Warn("Channel send while disconnected, dropping message",
			zap.String("type", env.Type))
		return
	}

	if err := conn.WriteJSON(env); err != nil {
		c.logger.Warn("Channel send failed", zap.String("type", env.Type), zap.Error(err))
	}
}

// Ping sends a keep-alive; the authority answers with a pong message
func (c *Client) Ping() {
	c.Send(models.Envelope{Type: "ping"})
}

// Disconnect performs a client-initiated normal closure, cancels any pending
// reconnect and clears all subscriptions.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.attempt = 0
	c.subs = make(map[string][]subscription)
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
}

// LastError returns the most recent connection-level error, if any
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
