package events

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFeed(t *testing.T) (*Feed, string) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	feed := NewFeed(logrus.NewEntry(logger))
	srv := httptest.NewServer(feed)
	t.Cleanup(func() {
		_ = feed.Close()
		srv.Close()
	})
	return feed, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeedDeliversSubscribedKinds(t *testing.T) {
	feed, endpoint := testFeed(t)

	received := make(chan Event, 4)
	client := NewFeedClient(FeedConfig{
		Endpoint: endpoint,
		OnEvent:  func(e Event) { received <- e },
	})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect()
	require.True(t, client.IsConnected())

	require.NoError(t, client.Subscribe(KindOrdersMatched))
	require.Eventually(t, func() bool { return feed.Subscribers(KindOrdersMatched) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Kind{KindOrdersMatched}, client.Subscriptions())

	at := time.Unix(1_700_000_000, 0)
	require.NoError(t, feed.Publish(context.Background(), New(KindOrderCancelled, at, nil)))
	matched := New(KindOrdersMatched, at, map[string]string{"first_fill": "1"})
	require.NoError(t, feed.Publish(context.Background(), matched))

	select {
	case e := <-received:
		assert.Equal(t, matched.ID, e.ID)
		assert.Equal(t, KindOrdersMatched, e.Kind)
		assert.Equal(t, at.UTC(), e.Time)
		assert.Equal(t, "1", e.Attributes["first_fill"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, client.Unsubscribe(KindOrdersMatched))
	require.Eventually(t, func() bool { return feed.Subscribers(KindOrdersMatched) == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, client.Subscriptions())
}

func TestFeedAnswersHeartbeat(t *testing.T) {
	_, endpoint := testFeed(t)

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(FeedMessage{Action: ActionHeartbeat}))
	var reply FeedMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, ActionHeartbeat, reply.Action)

	require.NoError(t, conn.WriteJSON(FeedMessage{Action: "PING"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, ActionError, reply.Action)
	assert.Contains(t, reply.Error, "PING")
}

func TestFeedClientResubscribesAfterReconnect(t *testing.T) {
	feed, endpoint := testFeed(t)

	disconnected := make(chan struct{}, 1)
	client := NewFeedClient(FeedConfig{
		Endpoint:          endpoint,
		ReconnectInterval: 10 * time.Millisecond,
		OnDisconnect: func() {
			select {
			case disconnected <- struct{}{}:
			default:
			}
		},
	})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect()
	require.NoError(t, client.Subscribe(KindOrderApproved))
	require.Eventually(t, func() bool { return feed.Subscribers(KindOrderApproved) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, feed.Close())
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the disconnect")
	}
	require.Eventually(t, func() bool {
		return client.IsConnected() && feed.Subscribers(KindOrderApproved) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFeedClientRequiresConnection(t *testing.T) {
	client := NewFeedClient(FeedConfig{Endpoint: "ws://127.0.0.1:1"})
	assert.False(t, client.IsConnected())
	assert.Error(t, client.Subscribe(KindOrdersMatched))
	assert.Error(t, client.Connect(context.Background()))
	assert.NoError(t, client.Disconnect())
}

func TestFeedMessageEvent(t *testing.T) {
	e := New(KindOrderFillChanged, time.Unix(1_700_000_000, 0), map[string]string{"fill": "7"})
	got, err := FeedMessageOf(e).Event()
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = FeedMessage{Action: ActionEvent, ID: "nope"}.Event()
	assert.Error(t, err)
}

func TestFeedClientStopsReconnectingWithItsContext(t *testing.T) {
	feed, endpoint := testFeed(t)

	disconnected := make(chan struct{}, 1)
	client := NewFeedClient(FeedConfig{
		Endpoint:          endpoint,
		ReconnectInterval: 20 * time.Millisecond,
		OnDisconnect: func() {
			select {
			case disconnected <- struct{}{}:
			default:
			}
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect()
	require.NoError(t, client.Subscribe(KindOrdersMatched))
	require.Eventually(t, func() bool { return feed.Subscribers(KindOrdersMatched) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, feed.Close())
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the disconnect")
	}
	cancel()

	assert.Never(t, client.IsConnected, 200*time.Millisecond, 10*time.Millisecond)
	assert.Zero(t, feed.Subscribers(KindOrdersMatched))
}
