package transport_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/evchat/transport"
	"github.com/linesmerrill/evchat/transport/transporttest"
)

const wait = 2 * time.Second
const tick = 10 * time.Millisecond

func newSession(b *transporttest.Broker) *transport.Session {
	opts := transport.DefaultOptions(b.URL())
	opts.ReconnectDelay = 50 * time.Millisecond
	opts.HeartBeat = 0
	return transport.New(opts)
}

func hasSubscription(b *transporttest.Broker, dest string) func() bool {
	return func() bool {
		for _, d := range b.Subscriptions() {
			if d == dest {
				return true
			}
		}
		return false
	}
}

func TestConnectPublishSubscribe(t *testing.T) {
	b := transporttest.NewBroker()
	b.Token = "tok"
	defer b.Close()

	s := newSession(b)
	defer s.Disconnect()

	require.NoError(t, s.Connect(context.Background(), "tok"))
	assert.Equal(t, transport.StatusConnected, s.Status())
	assert.NoError(t, s.Err())

	got := make(chan transport.Delivery, 1)
	_, err := s.Subscribe("conversation/C1", func(d transport.Delivery) { got <- d })
	require.NoError(t, err)
	require.Eventually(t, hasSubscription(b, "/topic/conversation/C1"), wait, tick)

	b.Deliver("/topic/conversation/C1", []byte(`{"id":"m1"}`))
	select {
	case d := <-got:
		assert.Equal(t, "conversation/C1", d.Topic)
		assert.Equal(t, `{"id":"m1"}`, string(d.Body))
	case <-time.After(wait):
		t.Fatal("delivery not received")
	}

	require.NoError(t, s.Publish(map[string]string{"receiverId": "S9", "content": "hi"}))
	require.Eventually(t, func() bool { return len(b.Sent()) == 1 }, wait, tick)
	sent := b.Sent()[0]
	assert.Equal(t, "/app/chat.send", sent.Get("destination"))
	assert.JSONEq(t, `{"receiverId":"S9","content":"hi"}`, string(sent.Body))
}

func TestConnectIsIdempotent(t *testing.T) {
	b := transporttest.NewBroker()
	defer b.Close()

	s := newSession(b)
	defer s.Disconnect()

	require.NoError(t, s.Connect(context.Background(), "tok"))
	require.NoError(t, s.Connect(context.Background(), "tok"))
	assert.Equal(t, 1, b.Connects())
}

func TestConnectWithoutToken(t *testing.T) {
	b := transporttest.NewBroker()
	defer b.Close()

	s := newSession(b)
	err := s.Connect(context.Background(), "")
	assert.ErrorIs(t, err, transport.ErrNoCredential)
	assert.Equal(t, transport.StatusDisconnected, s.Status())
	assert.ErrorIs(t, s.Err(), transport.ErrNoCredential)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, b.Connects())
}

func TestRejectedHandshakeRecordsError(t *testing.T) {
	b := transporttest.NewBroker()
	b.Token = "right"
	defer b.Close()

	s := newSession(b)
	defer s.Disconnect()

	err := s.Connect(context.Background(), "wrong")
	var serverErr *transport.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "unauthorized", serverErr.Message)
	assert.Equal(t, transport.StatusDisconnected, s.Status())
	assert.Error(t, s.Err())
}

func TestPublishWhileDisconnected(t *testing.T) {
	s := transport.New(transport.DefaultOptions("ws://127.0.0.1:1"))
	assert.ErrorIs(t, s.Publish("x"), transport.ErrNotConnected)
}

func TestDuplicateSubscribeKeepsOneRegistration(t *testing.T) {
	b := transporttest.NewBroker()
	defer b.Close()

	s := newSession(b)
	defer s.Disconnect()
	require.NoError(t, s.Connect(context.Background(), "tok"))

	first, err := s.Subscribe("staff/all-messages", func(transport.Delivery) {})
	require.NoError(t, err)
	second, err := s.Subscribe("staff/all-messages", func(transport.Delivery) {})
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, []string{"staff/all-messages"}, s.Topics())
}

func TestUnsubscribeUnknownIsNoop(t *testing.T) {
	s := transport.New(transport.DefaultOptions("ws://127.0.0.1:1"))
	assert.NoError(t, s.Unsubscribe(nil))

	sub, err := s.Subscribe("conversation/C1", func(transport.Delivery) {})
	require.NoError(t, err)
	assert.NoError(t, s.Unsubscribe(sub))
	assert.NoError(t, s.Unsubscribe(sub))
	assert.Empty(t, s.Topics())
}

func TestReconnectResubscribes(t *testing.T) {
	b := transporttest.NewBroker()
	defer b.Close()

	s := newSession(b)
	defer s.Disconnect()

	var mu sync.Mutex
	var states []transport.Status
	s.OnStatus(func(st transport.Status, _ error) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	require.NoError(t, s.Connect(context.Background(), "tok"))
	got := make(chan transport.Delivery, 4)
	_, err := s.Subscribe("conversation/C1", func(d transport.Delivery) { got <- d })
	require.NoError(t, err)
	require.Eventually(t, hasSubscription(b, "/topic/conversation/C1"), wait, tick)

	b.DropAll()
	require.Eventually(t, func() bool { return b.Connects() == 2 }, wait, tick)
	require.Eventually(t, hasSubscription(b, "/topic/conversation/C1"), wait, tick)
	assert.Equal(t, transport.StatusConnected, s.Status())

	b.Deliver("/topic/conversation/C1", []byte(`{}`))
	select {
	case <-got:
	case <-time.After(wait):
		t.Fatal("delivery after reconnect not received")
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) > 0 && states[len(states)-1] == transport.StatusConnected
	}, wait, tick)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, transport.StatusDisconnected)
}

func TestDisconnectStopsReconnect(t *testing.T) {
	b := transporttest.NewBroker()
	defer b.Close()

	s := newSession(b)
	require.NoError(t, s.Connect(context.Background(), "tok"))
	_, err := s.Subscribe("conversation/C1", func(transport.Delivery) {})
	require.NoError(t, err)

	s.Disconnect()
	s.Disconnect()
	assert.Equal(t, transport.StatusDisconnected, s.Status())
	assert.Empty(t, s.Topics())
	assert.ErrorIs(t, s.Publish("x"), transport.ErrNotConnected)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, b.Connects())
}

func TestDisconnectDuringHandshakeDropsThatConnection(t *testing.T) {
	b := transporttest.NewBroker()
	defer b.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b.OnConnect = func() {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
	}

	s := newSession(b)
	defer s.Disconnect()

	firstErr := make(chan error, 1)
	go func() { firstErr <- s.Connect(context.Background(), "tok") }()
	<-entered

	s.Disconnect()
	require.NoError(t, s.Connect(context.Background(), "tok"))
	require.Equal(t, transport.StatusConnected, s.Status())

	close(release)
	assert.ErrorIs(t, <-firstErr, transport.ErrClosed)
	assert.Equal(t, transport.StatusConnected, s.Status())
	assert.Eventually(t, func() bool { return b.Clients() == 1 }, wait, tick)

	require.NoError(t, s.Publish(map[string]string{"content": "hi"}))
	require.Eventually(t, func() bool { return len(b.Sent()) == 1 }, wait, tick)
}
