package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrAMQPConnectionFail is returned when the broker stays unreachable
var ErrAMQPConnectionFail = errors.New("events: amqp connection failed")

// DialAMQP connects to url, retrying until timeout elapses
func DialAMQP(ctx context.Context, url string, timeout time.Duration) (*amqp091.Connection, error) {
	deadline := time.After(timeout)
	for {
		conn, err := amqp091.Dial(url)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("%w: %w", ErrAMQPConnectionFail, err)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// AMQP publishes events to a topic exchange, routed by kind
type AMQP struct {
	channel  *amqp091.Channel
	exchange string
	log      *logrus.Entry
}

// NewAMQP opens a channel on conn and declares exchange as a durable topic exchange
func NewAMQP(conn *amqp091.Connection, exchange string, log *logrus.Entry) (*AMQP, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQP{channel: ch, exchange: exchange, log: log}, nil
}

// Publish implements Sink
func (a *AMQP) Publish(ctx context.Context, e Event) error {
	body, err := Marshal(e)
	if err != nil {
		return err
	}
	err = a.channel.PublishWithContext(ctx, a.exchange, string(e.Kind), false, false, amqp091.Publishing{
		ContentType:  "application/x-protobuf",
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.ID.String(),
		Timestamp:    e.Time,
		Type:         string(e.Kind),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	a.log.WithFields(logrus.Fields{
		"event_id": e.ID.String(),
		"kind":     string(e.Kind),
	}).Debug("event published")
	return nil
}

// Close closes the channel
func (a *AMQP) Close() error {
	return a.channel.Close()
}

// ToStruct converts an event to a protobuf Struct
func ToStruct(e Event) (*structpb.Struct, error) {
	attrs := make(map[string]interface{}, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return structpb.NewStruct(map[string]interface{}{
		"id":         e.ID.String(),
		"kind":       string(e.Kind),
		"time":       e.Time.Format(time.RFC3339Nano),
		"attributes": attrs,
	})
}

// Marshal encodes an event as a protobuf Struct message
func Marshal(e Event) ([]byte, error) {
	msg, err := ToStruct(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return proto.Marshal(msg)
}
