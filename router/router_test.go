package router_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/evchat/models"
	"github.com/linesmerrill/evchat/router"
	"github.com/linesmerrill/evchat/transport"
)

type fakeTransport struct {
	handlers     map[string]transport.Handler
	subscribes   []string
	unsubscribes []string
	failTopic    string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]transport.Handler)}
}

func (f *fakeTransport) Subscribe(topic string, h transport.Handler) (*transport.Subscription, error) {
	if topic == f.failTopic {
		return nil, errors.New("refused")
	}
	f.subscribes = append(f.subscribes, topic)
	f.handlers[topic] = h
	return &transport.Subscription{}, nil
}

func (f *fakeTransport) Unsubscribe(sub *transport.Subscription) error {
	f.unsubscribes = append(f.unsubscribes, "x")
	return nil
}

func (f *fakeTransport) deliver(topic, body string) {
	f.handlers[topic](transport.Delivery{Topic: topic, Body: []byte(body)})
}

func TestEnterSwitchesSubscription(t *testing.T) {
	ft := newFakeTransport()
	r := router.New(ft, func(router.Event) {})

	require.NoError(t, r.Enter("C1"))
	require.NoError(t, r.Enter("C1"))
	require.NoError(t, r.Enter("C2"))

	assert.Equal(t, []string{"conversation/C1", "conversation/C2"}, ft.subscribes)
	assert.Len(t, ft.unsubscribes, 1)
	assert.Equal(t, "C2", r.Current())
	assert.Equal(t, []string{"conversation/C2"}, r.Topics())
}

func TestEnterFailureCanBeRetried(t *testing.T) {
	ft := newFakeTransport()
	ft.failTopic = "conversation/C1"
	r := router.New(ft, func(router.Event) {})

	assert.Error(t, r.Enter("C1"))
	ft.failTopic = ""
	assert.NoError(t, r.Enter("C1"))
	assert.Equal(t, []string{"conversation/C1"}, r.Topics())
}

func TestBroadcastOnlyForStaff(t *testing.T) {
	ft := newFakeTransport()
	r := router.New(ft, func(router.Event) {})

	require.NoError(t, r.EnableBroadcast(models.RoleCustomer))
	assert.Empty(t, ft.subscribes)

	require.NoError(t, r.EnableBroadcast(models.RoleAdmin))
	require.NoError(t, r.EnableBroadcast(models.RoleStaff))
	assert.Equal(t, []string{router.StaffTopic}, ft.subscribes)
}

func TestDeliverDecodesAndTagsEvents(t *testing.T) {
	ft := newFakeTransport()
	var events []router.Event
	r := router.New(ft, func(e router.Event) { events = append(events, e) })
	require.NoError(t, r.Enter("C1"))
	require.NoError(t, r.EnableBroadcast(models.RoleStaff))

	ft.deliver("conversation/C1", `{"id":"1","sender_id":"U1","content":"hi"}`)
	ft.deliver(router.StaffTopic, `{"id":"2","conversationId":"C2","senderId":"U2","content":"yo"}`)
	ft.deliver("conversation/C1", `not json`)

	require.Len(t, events, 2)
	assert.Equal(t, "C1", events[0].Message.ConversationID)
	assert.False(t, events[0].Broadcast)
	assert.Equal(t, "C2", events[1].Message.ConversationID)
	assert.True(t, events[1].Broadcast)
}

func TestLeaveAndClose(t *testing.T) {
	ft := newFakeTransport()
	r := router.New(ft, func(router.Event) {})
	require.NoError(t, r.Enter("C1"))
	require.NoError(t, r.EnableBroadcast(models.RoleStaff))

	r.Leave()
	assert.Equal(t, []string{router.StaffTopic}, r.Topics())
	assert.Empty(t, r.Current())

	r.Close()
	r.Close()
	assert.Empty(t, r.Topics())
	assert.Len(t, ft.unsubscribes, 2)
}
