// Package events publishes exchange events to off-ledger consumers.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Kind names an event type
type Kind string

const (
	KindOrdersMatched    Kind = "orders_matched"
	KindOrderApproved    Kind = "order_approved"
	KindOrderFillChanged Kind = "order_fill_changed"
	KindOrderCancelled   Kind = "order_cancelled"
)

// Event is one published fact. Attribute values are strings so that big
// integers and hashes survive every encoding unchanged.
type Event struct {
	ID         uuid.UUID
	Kind       Kind
	Time       time.Time
	Attributes map[string]string
}

// New creates an event with a fresh id
func New(kind Kind, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		Time:       at.UTC(),
		Attributes: attrs,
	}
}

// Sink receives events after the operation that produced them committed
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event
type Nop struct{}

// Publish implements Sink
func (Nop) Publish(context.Context, Event) error { return nil }

// Memory keeps events in memory
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an empty in-memory sink
func NewMemory() *Memory {
	return &Memory{}
}

// Publish implements Sink
func (m *Memory) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of the received events
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfKind returns the received events of one kind
func (m *Memory) OfKind(kind Kind) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Log writes events as structured log entries
type Log struct {
	log *logrus.Entry
}

// NewLog creates a logging sink
func NewLog(log *logrus.Entry) *Log {
	return &Log{log: log}
}

// Publish implements Sink
func (l *Log) Publish(_ context.Context, e Event) error {
	fields := logrus.Fields{
		"event_id": e.ID.String(),
		"kind":     string(e.Kind),
	}
	for k, v := range e.Attributes {
		fields[k] = v
	}
	l.log.WithFields(fields).Info("event")
	return nil
}

// Multi fans events out to several sinks, joining their errors
type Multi []Sink

// Publish implements Sink
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
