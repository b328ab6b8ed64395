package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Feed actions
const (
	ActionHeartbeat   = "HEARTBEAT"
	ActionSubscribe   = "SUBSCRIBE"
	ActionUnsubscribe = "UNSUBSCRIBE"
	ActionEvent       = "EVENT"
	ActionError       = "ERROR"
)

const (
	// HeartbeatInterval is how often feed clients announce themselves
	HeartbeatInterval = 30 * time.Second

	feedWriteWait      = 10 * time.Second
	feedReadWait       = 3 * HeartbeatInterval
	feedSendBufferSize = 64
)

// FeedMessage is one frame of the event feed. Clients send heartbeats and
// subscriptions; the feed answers heartbeats and pushes events.
type FeedMessage struct {
	Action     string            `json:"action"`
	Channel    Kind              `json:"channel,omitempty"`
	ID         string            `json:"id,omitempty"`
	Time       *time.Time        `json:"time,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Event converts an EVENT frame back into an event
func (m FeedMessage) Event() (Event, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return Event{}, err
	}
	e := Event{ID: id, Kind: m.Channel, Attributes: m.Attributes}
	if m.Time != nil {
		e.Time = m.Time.UTC()
	}
	return e, nil
}

// FeedMessageOf returns the EVENT frame carrying e
func FeedMessageOf(e Event) FeedMessage {
	at := e.Time
	return FeedMessage{
		Action:     ActionEvent,
		Channel:    e.Kind,
		ID:         e.ID.String(),
		Time:       &at,
		Attributes: e.Attributes,
	}
}

// Feed pushes events to websocket subscribers. Each connection subscribes to
// the kinds it wants; a subscriber whose buffer is full is disconnected
// rather than blocking the publisher.
type Feed struct {
	upgrader websocket.Upgrader
	log      *logrus.Entry

	mu    sync.RWMutex
	conns map[*feedConn]struct{}
}

type feedConn struct {
	ws   *websocket.Conn
	send chan FeedMessage

	mu    sync.RWMutex
	kinds map[Kind]struct{}
	once  sync.Once
	done  chan struct{}
}

// NewFeed creates a feed with no subscribers
func NewFeed(log *logrus.Entry) *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:   log,
		conns: make(map[*feedConn]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.WithError(err).Warn("feed upgrade failed")
		return
	}
	c := &feedConn{
		ws:    ws,
		send:  make(chan FeedMessage, feedSendBufferSize),
		kinds: make(map[Kind]struct{}),
		done:  make(chan struct{}),
	}
	f.mu.Lock()
	f.conns[c] = struct{}{}
	f.mu.Unlock()
	f.log.WithField("remote", r.RemoteAddr).Debug("feed subscriber connected")

	go f.writeRoutine(c)
	f.readRoutine(c)
}

// Publish implements Sink
func (f *Feed) Publish(_ context.Context, e Event) error {
	msg := FeedMessageOf(e)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for c := range f.conns {
		if !c.subscribed(e.Kind) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			f.log.WithField("kind", string(e.Kind)).Warn("feed subscriber too slow, dropping")
			c.close()
		}
	}
	return nil
}

// Subscribers returns how many connections are subscribed to kind
func (f *Feed) Subscribers(kind Kind) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for c := range f.conns {
		select {
		case <-c.done:
			continue
		default:
		}
		if c.subscribed(kind) {
			n++
		}
	}
	return n
}

// Close disconnects every subscriber
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.conns {
		c.close()
	}
	return nil
}

func (f *Feed) readRoutine(c *feedConn) {
	defer func() {
		f.mu.Lock()
		delete(f.conns, c)
		f.mu.Unlock()
		c.close()
	}()

	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(feedReadWait))
		var msg FeedMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.WithError(err).Debug("feed read failed")
			}
			return
		}

		var reply *FeedMessage
		switch msg.Action {
		case ActionHeartbeat:
			reply = &FeedMessage{Action: ActionHeartbeat}
		case ActionSubscribe:
			c.mu.Lock()
			c.kinds[msg.Channel] = struct{}{}
			c.mu.Unlock()
		case ActionUnsubscribe:
			c.mu.Lock()
			delete(c.kinds, msg.Channel)
			c.mu.Unlock()
		default:
			reply = &FeedMessage{Action: ActionError, Error: "unknown action: " + msg.Action}
		}
		if reply == nil {
			continue
		}
		select {
		case c.send <- *reply:
		case <-c.done:
			return
		}
	}
}

func (f *Feed) writeRoutine(c *feedConn) {
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(feedWriteWait))
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(feedWriteWait))
			data, err := json.Marshal(msg)
			if err != nil {
				f.log.WithError(err).Error("feed marshal failed")
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				f.log.WithError(err).Debug("feed write failed")
				c.close()
				return
			}
		}
	}
}

func (c *feedConn) subscribed(kind Kind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.kinds[kind]
	return ok
}

func (c *feedConn) close() {
	c.once.Do(func() { close(c.done) })
}
