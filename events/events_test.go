package events

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }

func TestMemory(t *testing.T) {
	m := NewMemory()
	at := time.Unix(1_700_000_000, 0)
	require.NoError(t, m.Publish(context.Background(), New(KindOrdersMatched, at, map[string]string{"fill": "1"})))
	require.NoError(t, m.Publish(context.Background(), New(KindOrderCancelled, at, nil)))

	all := m.Events()
	require.Len(t, all, 2)
	assert.NotEqual(t, all[0].ID, all[1].ID)
	assert.Equal(t, at.UTC(), all[0].Time)
	assert.Len(t, m.OfKind(KindOrderCancelled), 1)
}

func TestMultiJoinsErrors(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	err := Multi{m, failing{boom}, Nop{}}.Publish(context.Background(), New(KindOrderApproved, time.Now(), nil))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, m.Events(), 1)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	e := New(KindOrdersMatched, time.Now(), map[string]string{"first_hash": "0x01"})
	require.NoError(t, NewLog(logrus.NewEntry(logger)).Publish(context.Background(), e))
	assert.Contains(t, buf.String(), `"first_hash":"0x01"`)
	assert.Contains(t, buf.String(), e.ID.String())
}

func TestMarshal(t *testing.T) {
	e := New(KindOrdersMatched, time.Unix(1_700_000_000, 0), map[string]string{"first_fill": "83974"})
	body, err := Marshal(e)
	require.NoError(t, err)

	var msg structpb.Struct
	require.NoError(t, proto.Unmarshal(body, &msg))
	fields := msg.AsMap()
	assert.Equal(t, e.ID.String(), fields["id"])
	assert.Equal(t, "orders_matched", fields["kind"])
	assert.Equal(t, map[string]interface{}{"first_fill": "83974"}, fields["attributes"])
}

func TestAMQPPublish(t *testing.T) {
	url := os.Getenv("WYVERN_TEST_AMQP_URL")
	if url == "" {
		t.Skip("WYVERN_TEST_AMQP_URL not set")
	}
	ctx := context.Background()
	conn, err := DialAMQP(ctx, url, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	sink, err := NewAMQP(conn, "wyvern-test", logrus.NewEntry(logrus.StandardLogger()))
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Publish(ctx, New(KindOrdersMatched, time.Now(), nil)))
}
