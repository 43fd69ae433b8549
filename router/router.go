// Package router maps the active conversation and the staff broadcast onto
// transport subscriptions
package router

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/models"
	"github.com/linesmerrill/evchat/transport"
)

// StaffTopic receives every customer message across all conversations
const StaffTopic = "staff/all-messages"

const conversationPrefix = "conversation/"

// ConversationTopic returns the topic of one conversation
func ConversationTopic(conversationID string) string {
	return conversationPrefix + conversationID
}

// Transport is the subscription surface of a transport session
type Transport interface {
	Subscribe(topic string, handler transport.Handler) (*transport.Subscription, error)
	Unsubscribe(sub *transport.Subscription) error
}

// Event is a decoded inbound message
type Event struct {
	Topic     string
	Broadcast bool
	Message   models.Message
}

// Sink receives every decoded inbound message
type Sink func(Event)

// Router holds at most one subscription per topic
type Router struct {
	transport Transport
	sink      Sink

	mu        sync.Mutex
	current   string
	subs      map[string]*transport.Subscription
	broadcast bool
}

// New returns a router delivering into sink
func New(t Transport, sink Sink) *Router {
	return &Router{
		transport: t,
		sink:      sink,
		subs:      make(map[string]*transport.Subscription),
	}
}

// Enter switches the conversation subscription to conversationID. The
// previous conversation topic is unsubscribed first. Entering the current
// conversation again is a no-op.
func (r *Router) Enter(conversationID string) error {
	topic := ConversationTopic(conversationID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == conversationID {
		if _, ok := r.subs[topic]; ok {
			return nil
		}
	}
	if r.current != "" && r.current != conversationID {
		r.unsubscribeLocked(ConversationTopic(r.current))
	}
	r.current = conversationID
	return r.subscribeLocked(topic)
}

// Leave drops the conversation subscription, keeping the broadcast
func (r *Router) Leave() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == "" {
		return
	}
	r.unsubscribeLocked(ConversationTopic(r.current))
	r.current = ""
}

// EnableBroadcast subscribes the role-wide topic for staff and admins. It
// does nothing for other roles.
func (r *Router) EnableBroadcast(role models.Role) error {
	if !role.IsStaff() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = true
	return r.subscribeLocked(StaffTopic)
}

// Current returns the conversation whose topic is subscribed
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Topics lists the subscribed topics
func (r *Router) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subs))
	for t := range r.subs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Close unsubscribes everything. Calling it again is a no-op.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic := range r.subs {
		r.unsubscribeLocked(topic)
	}
	r.current = ""
	r.broadcast = false
}

func (r *Router) subscribeLocked(topic string) error {
	if _, ok := r.subs[topic]; ok {
		return nil
	}
	sub, err := r.transport.Subscribe(topic, r.deliver)
	if err != nil {
		return err
	}
	r.subs[topic] = sub
	zap.S().Debugw("router subscribed", "topic", topic)
	return nil
}

func (r *Router) unsubscribeLocked(topic string) {
	sub, ok := r.subs[topic]
	if !ok {
		return
	}
	delete(r.subs, topic)
	if err := r.transport.Unsubscribe(sub); err != nil {
		zap.S().Warnw("failed to unsubscribe", "topic", topic, "error", err)
	}
}

// deliver decodes a frame and forwards it. The conversation id falls back
// to the one in the topic name.
func (r *Router) deliver(d transport.Delivery) {
	msg, err := models.DecodeMessage(d.Body)
	if err != nil {
		zap.S().Warnw("dropping undecodable frame", "topic", d.Topic, "error", err)
		return
	}
	if msg.ConversationID == "" && strings.HasPrefix(d.Topic, conversationPrefix) {
		msg.ConversationID = strings.TrimPrefix(d.Topic, conversationPrefix)
	}
	r.sink(Event{
		Topic:     d.Topic,
		Broadcast: d.Topic == StaffTopic,
		Message:   msg,
	})
}
