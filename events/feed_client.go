package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Reconnect settings
const (
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// FeedConfig holds configuration for a FeedClient
type FeedConfig struct {
	Endpoint             string
	HeartbeatInterval    time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	OnEvent              func(Event)
	OnError              func(error)
	OnConnect            func()
	OnDisconnect         func()
}

// FeedClient follows a Feed over websocket. Subscriptions survive reconnects.
type FeedClient struct {
	config           FeedConfig
	conn             *websocket.Conn
	mu               sync.RWMutex
	writeMu          sync.Mutex
	isConnected      bool
	subscriptions    map[Kind]struct{}
	subMu            sync.RWMutex
	ctx              context.Context
	cancel           context.CancelFunc
	connCancel       context.CancelFunc
	heartbeatTicker  *time.Ticker
	reconnectAttempt int
}

// NewFeedClient creates a client for the feed at config.Endpoint
func NewFeedClient(config FeedConfig) *FeedClient {
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = HeartbeatInterval
	}
	if config.ReconnectInterval == 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.MaxReconnectAttempts == 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	return &FeedClient{
		config:        config,
		subscriptions: make(map[Kind]struct{}),
	}
}

// Connect dials the feed. ctx bounds the client's lifetime, reconnects
// included.
func (fc *FeedClient) Connect(ctx context.Context) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.isConnected {
		return nil
	}

	fc.ctx, fc.cancel = context.WithCancel(ctx)
	fc.reconnectAttempt = 0
	if err := fc.dial(); err != nil {
		fc.cancel()
		return err
	}
	return nil
}

// dial must be called with mu held
func (fc *FeedClient) dial() error {
	u, err := url.Parse(fc.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse feed endpoint: %w", err)
	}

	connCtx, connCancel := context.WithCancel(fc.ctx)
	conn, _, err := websocket.DefaultDialer.DialContext(connCtx, u.String(), nil)
	if err != nil {
		connCancel()
		return fmt.Errorf("failed to connect to feed: %w", err)
	}

	fc.conn = conn
	fc.connCancel = connCancel
	fc.isConnected = true
	fc.reconnectAttempt = 0

	fc.startHeartbeat(connCtx)
	go fc.readLoop(connCtx, conn)

	if fc.config.OnConnect != nil {
		go fc.config.OnConnect()
	}
	return nil
}

// Disconnect closes the connection and stops reconnecting
func (fc *FeedClient) Disconnect() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.cancel != nil {
		fc.cancel()
	}
	if !fc.isConnected {
		return nil
	}
	fc.isConnected = false
	if fc.heartbeatTicker != nil {
		fc.heartbeatTicker.Stop()
	}

	var err error
	if fc.conn != nil {
		fc.writeMu.Lock()
		_ = fc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(feedWriteWait))
		fc.writeMu.Unlock()
		err = fc.conn.Close()
		fc.conn = nil
	}

	if fc.config.OnDisconnect != nil {
		go fc.config.OnDisconnect()
	}
	return err
}

// IsConnected returns the current connection status
func (fc *FeedClient) IsConnected() bool {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.isConnected
}

// Subscribe asks the feed for events of kind
func (fc *FeedClient) Subscribe(kind Kind) error {
	if err := fc.sendMessage(FeedMessage{Action: ActionSubscribe, Channel: kind}); err != nil {
		return err
	}
	fc.subMu.Lock()
	fc.subscriptions[kind] = struct{}{}
	fc.subMu.Unlock()
	return nil
}

// Unsubscribe stops events of kind
func (fc *FeedClient) Unsubscribe(kind Kind) error {
	if err := fc.sendMessage(FeedMessage{Action: ActionUnsubscribe, Channel: kind}); err != nil {
		return err
	}
	fc.subMu.Lock()
	delete(fc.subscriptions, kind)
	fc.subMu.Unlock()
	return nil
}

// Subscriptions returns the tracked subscriptions
func (fc *FeedClient) Subscriptions() []Kind {
	fc.subMu.RLock()
	defer fc.subMu.RUnlock()
	subs := make([]Kind, 0, len(fc.subscriptions))
	for kind := range fc.subscriptions {
		subs = append(subs, kind)
	}
	return subs
}

func (fc *FeedClient) sendMessage(msg FeedMessage) error {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	if !fc.isConnected || fc.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	fc.writeMu.Lock()
	defer fc.writeMu.Unlock()
	if err := fc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// startHeartbeat must be called with mu held
func (fc *FeedClient) startHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(fc.config.HeartbeatInterval)
	fc.heartbeatTicker = ticker

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := fc.sendMessage(FeedMessage{Action: ActionHeartbeat}); err != nil {
					fc.reportError(fmt.Errorf("heartbeat failed: %w", err))
				}
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

func (fc *FeedClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fc.reportError(fmt.Errorf("read error: %w", err))
			}
			fc.handleDisconnect()
			return
		}

		var msg FeedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			fc.reportError(fmt.Errorf("decode message: %w", err))
			continue
		}
		switch msg.Action {
		case ActionEvent:
			e, err := msg.Event()
			if err != nil {
				fc.reportError(fmt.Errorf("decode event: %w", err))
				continue
			}
			if fc.config.OnEvent != nil {
				fc.config.OnEvent(e)
			}
		case ActionError:
			fc.reportError(fmt.Errorf("feed: %s", msg.Error))
		}
	}
}

func (fc *FeedClient) handleDisconnect() {
	fc.mu.Lock()
	wasConnected := fc.isConnected
	fc.isConnected = false
	if fc.heartbeatTicker != nil {
		fc.heartbeatTicker.Stop()
	}
	if fc.connCancel != nil {
		fc.connCancel()
	}
	if fc.conn != nil {
		_ = fc.conn.Close()
		fc.conn = nil
	}
	ctx := fc.ctx
	fc.mu.Unlock()

	if wasConnected && fc.config.OnDisconnect != nil {
		fc.config.OnDisconnect()
	}
	go fc.attemptReconnect(ctx)
}

// attemptReconnect redials until it succeeds, attempts run out or ctx, the
// lifetime passed to Connect, is done.
func (fc *FeedClient) attemptReconnect(ctx context.Context) {
	for {
		attempt, ok := fc.nextAttempt()
		if !ok {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(fc.config.ReconnectInterval):
		}

		if err := fc.reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			fc.reportError(fmt.Errorf("reconnect attempt %d failed: %w", attempt, err))
			continue
		}
		fc.resubscribe()
		return
	}
	fc.reportError(fmt.Errorf("max reconnect attempts (%d) reached", fc.config.MaxReconnectAttempts))
}

func (fc *FeedClient) nextAttempt() (int, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.reconnectAttempt >= fc.config.MaxReconnectAttempts {
		return fc.reconnectAttempt, false
	}
	fc.reconnectAttempt++
	return fc.reconnectAttempt, true
}

func (fc *FeedClient) reconnect(ctx context.Context) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if fc.ctx != ctx || fc.isConnected {
		return nil
	}
	return fc.dial()
}

func (fc *FeedClient) resubscribe() {
	for _, kind := range fc.Subscriptions() {
		if err := fc.sendMessage(FeedMessage{Action: ActionSubscribe, Channel: kind}); err != nil {
			fc.reportError(fmt.Errorf("resubscribe failed: %w", err))
		}
	}
}

func (fc *FeedClient) reportError(err error) {
	if fc.config.OnError != nil {
		fc.config.OnError(err)
	}
}
