package pushhub

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lineform/scraper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(hub *Hub) *Client {
	return &Client{
		id:     "test",
		send:   make(chan domain.PushMessage, sendBufferSize),
		hub:    hub,
		logger: testLogger(),
		topics: make(map[domain.Topic]struct{}),
	}
}

func TestHub_DeliversOnlyToSubscribedTopic(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	subscribed := newTestClient(h)
	subscribed.Subscribe(domain.TopicOddsUpdates)
	unsubscribed := newTestClient(h)

	h.Register(subscribed)
	h.Register(unsubscribed)

	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	h.Publish(NewMessage(domain.TopicOddsUpdates, domain.OddsUpdatePayload{RunID: 1}))

	select {
	case msg := <-subscribed.send:
		assert.Equal(t, domain.TopicOddsUpdates, msg.Topic)
	case <-time.After(time.Second):
		t.Fatal("subscribed client did not receive message")
	}

	select {
	case <-unsubscribed.send:
		t.Fatal("unsubscribed client should not receive message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := newTestClient(h)
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	h.unregister(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)

	_, ok := <-c.send
	assert.False(t, ok, "send channel should be closed after unregister")
}

func TestClient_SubscribeUnsubscribeAreIdempotent(t *testing.T) {
	h := NewHub(testLogger())
	c := newTestClient(h)

	c.Subscribe(domain.TopicScrapeProgress)
	c.Subscribe(domain.TopicScrapeProgress)
	assert.True(t, c.Subscribed(domain.TopicScrapeProgress))

	c.Unsubscribe(domain.TopicScrapeProgress)
	c.Unsubscribe(domain.TopicScrapeProgress)
	assert.False(t, c.Subscribed(domain.TopicScrapeProgress))
}

func TestClient_TrySend_DropsWhenQueueFull(t *testing.T) {
	h := NewHub(testLogger())
	c := newTestClient(h)
	c.Subscribe(domain.TopicOddsUpdates)

	msg := NewMessage(domain.TopicOddsUpdates, domain.OddsUpdatePayload{RunID: 1})
	for i := 0; i < sendBufferSize; i++ {
		require.True(t, c.TrySend(msg))
	}
	assert.False(t, c.TrySend(msg), "queue is full, send must be dropped not blocked")
	assert.EqualValues(t, 1, c.dropped)
}
