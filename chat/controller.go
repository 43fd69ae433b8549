// Package chat drives a chat widget: it bootstraps the conversation, wires
// the transport, router, directory and store together and implements send
// with a REST fallback.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/directory"
	"github.com/linesmerrill/evchat/metrics"
	"github.com/linesmerrill/evchat/models"
	"github.com/linesmerrill/evchat/router"
	"github.com/linesmerrill/evchat/session"
	"github.com/linesmerrill/evchat/store"
	"github.com/linesmerrill/evchat/transport"
)

// State of the controller
type State string

const (
	StateIdle          State = "IDLE"
	StateBootstrapping State = "BOOTSTRAPPING"
	StateConnecting    State = "CONNECTING"
	StateConnected     State = "CONNECTED"
	StateConnectFailed State = "CONNECT_FAILED"
	StateTornDown      State = "TORN_DOWN"
)

var (
	ErrEmptyMessage        = errors.New("message is empty")
	ErrNoConversation      = errors.New("no active conversation")
	ErrNoReceiver          = errors.New("conversation has no receiver account")
	ErrNotConnected        = transport.ErrNotConnected
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrUnknownMessage      = store.ErrUnknownMessage
)

// SendError is returned when both the publish and the REST fallback failed
type SendError struct {
	Publish  error
	Fallback error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: publish: %v; fallback: %v", e.Publish, e.Fallback)
}

// Unwrap exposes the publish error, so errors.Is(err, ErrNotConnected) holds
// for sends attempted while offline
func (e *SendError) Unwrap() error { return e.Publish }

// Backend is the REST collaborator
type Backend interface {
	directory.Backend
	store.HistoryFetcher
	SendMessage(ctx context.Context, msg models.OutboundMessage) (models.Message, error)
	EditMessage(ctx context.Context, messageID, content string) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// Transport is the publish/subscribe session
type Transport interface {
	router.Transport
	Connect(ctx context.Context, token string) error
	Disconnect()
	Publish(payload interface{}) error
	Status() transport.Status
	OnStatus(fn func(transport.Status, error))
}

// Status is a snapshot of the controller for display
type Status struct {
	State          State            `json:"state"`
	Transport      string           `json:"transport"`
	Role           models.Role      `json:"role"`
	AccountID      string           `json:"accountId"`
	ConversationID string           `json:"conversationId,omitempty"`
	ReceiverID     string           `json:"receiverId,omitempty"`
	Error          string           `json:"error,omitempty"`
	Err            error            `json:"-"`
	Topics         []string         `json:"topics"`
	Unread         map[string]int   `json:"unread,omitempty"`
	TransportState transport.Status `json:"-"`
}

// Controller is one chat widget instance for one identity
type Controller struct {
	session   *session.Session
	backend   Backend
	transport Transport
	directory *directory.Directory
	store     *store.Store
	router    *router.Router

	mu             sync.Mutex
	state          State
	conversationID string
	receiverID     string
	err            error
	live           bool
	lost           bool
	// bg scopes background refreshes and backfills; Teardown cancels it
	bg       context.Context
	bgCancel context.CancelFunc
	observers      []func(Status)
}

// New builds a controller. The transport is owned by the caller and may be
// shared with nothing else.
func New(sess *session.Session, backend Backend, t Transport) *Controller {
	c := &Controller{
		session:   sess,
		backend:   backend,
		transport: t,
		directory: directory.New(sess.Identity, backend),
		store:     store.New(backend),
		state:     StateIdle,
	}
	c.bg, c.bgCancel = context.WithCancel(context.Background())
	c.router = router.New(t, c.Ingest)
	t.OnStatus(c.onTransportStatus)
	return c
}

// Identity returns the identity the controller acts for
func (c *Controller) Identity() models.Identity { return c.session.Identity }

// Directory exposes the conversation directory
func (c *Controller) Directory() *directory.Directory { return c.directory }

// Store exposes the message store
func (c *Controller) Store() *store.Store { return c.store }

// Conversations returns the directory snapshot
func (c *Controller) Conversations() []models.Conversation { return c.directory.Snapshot() }

// Messages returns the log of the active conversation
func (c *Controller) Messages() []models.Message { return c.store.Messages() }

// OnStateChange registers fn to be called after every state change
func (c *Controller) OnStateChange(fn func(Status)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Status returns the current status
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		State:          c.state,
		Role:           c.session.Identity.Role,
		AccountID:      c.session.Identity.AccountID,
		ConversationID: c.conversationID,
		ReceiverID:     c.receiverID,
		Err:            c.err,
	}
	c.mu.Unlock()

	if st.Err != nil {
		st.Error = st.Err.Error()
	}
	st.TransportState = c.transport.Status()
	st.Transport = st.TransportState.String()
	st.Topics = c.router.Topics()
	for _, conv := range c.directory.Snapshot() {
		if conv.UnreadCount > 0 {
			if st.Unread == nil {
				st.Unread = make(map[string]int)
			}
			st.Unread[conv.ID] = conv.UnreadCount
		}
	}
	return st
}

// Mount connects a staff identity and subscribes the broadcast topic. Staff
// stay connected across open and close until Teardown. It does nothing for
// customers, who connect on Open.
func (c *Controller) Mount(ctx context.Context) error {
	if !c.session.Identity.Role.IsStaff() {
		return nil
	}
	c.mu.Lock()
	c.live = true
	c.mu.Unlock()

	if err := c.router.EnableBroadcast(c.session.Identity.Role); err != nil {
		zap.S().Warnw("failed to subscribe staff broadcast", "error", err)
	}
	c.connect(ctx)
	_, err := c.directory.List(ctx)
	return err
}

// Open opens the widget. A customer without a conversation gets one through
// bootstrap; then history is loaded, the transport connected and the
// conversation topic subscribed. Bootstrap and history errors are returned;
// connection problems only show in Status.
func (c *Controller) Open(ctx context.Context) error {
	identity := c.session.Identity
	c.mu.Lock()
	c.live = true
	convID := c.conversationID
	c.mu.Unlock()

	if identity.Role.IsStaff() {
		if err := c.Mount(ctx); err != nil {
			return err
		}
		if convID == "" {
			return nil
		}
		return c.Select(ctx, convID)
	}

	if convID == "" {
		c.setState(StateBootstrapping, nil)
		conv, err := c.directory.Bootstrap(ctx)
		if err != nil {
			c.setState(StateIdle, err)
			return err
		}
		c.mu.Lock()
		c.conversationID = conv.ID
		c.receiverID = conv.CounterpartAccountID
		c.mu.Unlock()
		convID = conv.ID
	}

	c.directory.SetOpen(convID)
	if _, err := c.store.Load(ctx, convID); err != nil && !errors.Is(err, store.ErrStaleLoad) {
		c.setState(StateIdle, err)
		return err
	}
	if err := c.router.Enter(convID); err != nil {
		zap.S().Warnw("failed to subscribe conversation", "conversationId", convID, "error", err)
	}
	c.connect(ctx)
	return nil
}

// Select makes conversationID the active conversation: the receiver comes
// from the directory, the conversation is marked read, its topic subscribed
// and its history loaded.
func (c *Controller) Select(ctx context.Context, conversationID string) error {
	conv, ok := c.directory.Get(conversationID)
	if !ok {
		return ErrUnknownConversation
	}

	c.mu.Lock()
	c.live = true
	c.conversationID = conv.ID
	c.receiverID = conv.CounterpartAccountID
	c.mu.Unlock()

	c.directory.SetOpen(conv.ID)
	c.store.Activate(conv.ID)
	if err := c.router.Enter(conv.ID); err != nil {
		zap.S().Warnw("failed to subscribe conversation", "conversationId", conv.ID, "error", err)
	}
	c.directory.MarkRead(ctx, conv.ID)

	if _, err := c.store.Load(ctx, conv.ID); err != nil {
		if errors.Is(err, store.ErrStaleLoad) {
			return nil
		}
		return err
	}
	return nil
}

// Send publishes content to the active conversation. It needs a live
// connection and returns ErrNotConnected without touching any state
// otherwise. The message shows up immediately as a pending entry. When the
// publish fails on a live connection a single REST send is attempted before
// giving up.
func (c *Controller) Send(ctx context.Context, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		metrics.SendFailures.WithLabelValues("empty").Inc()
		return models.Message{}, ErrEmptyMessage
	}
	c.mu.Lock()
	convID, receiverID := c.conversationID, c.receiverID
	c.mu.Unlock()
	if convID == "" {
		metrics.SendFailures.WithLabelValues("no_conversation").Inc()
		return models.Message{}, ErrNoConversation
	}
	if receiverID == "" {
		metrics.SendFailures.WithLabelValues("no_receiver").Inc()
		return models.Message{}, ErrNoReceiver
	}
	if c.transport.Status() != transport.StatusConnected {
		metrics.SendFailures.WithLabelValues("not_connected").Inc()
		return models.Message{}, ErrNotConnected
	}

	out := models.OutboundMessage{
		ReceiverID:     receiverID,
		Content:        content,
		Timestamp:      time.Now().UTC(),
		ConversationID: convID,
	}
	self := c.session.Identity.AccountID

	// the pending entry goes in first so an echo racing the publish
	// reconciles against it
	tempID := c.store.AppendOptimistic(content, self, receiverID, convID)

	id := tempID
	pubErr := c.transport.Publish(out)
	if pubErr != nil {
		zap.S().Warnw("publish failed, falling back to REST", "conversationId", convID, "error", pubErr)
		sent, err := c.backend.SendMessage(ctx, out)
		if err != nil {
			metrics.FallbackSends.WithLabelValues("failed").Inc()
			metrics.SendFailures.WithLabelValues("fallback").Inc()
			if tempID != "" {
				c.store.Delete(tempID)
			}
			sendErr := &SendError{Publish: pubErr, Fallback: err}
			zap.S().Errorw("send failed", "conversationId", convID, "error", sendErr)
			return models.Message{}, sendErr
		}
		metrics.FallbackSends.WithLabelValues("ok").Inc()
		if tempID != "" && sent.ID != "" && c.store.Confirm(tempID, sent) {
			id = sent.ID
		}
	}

	msg, _ := c.store.Get(id)
	if msg.ID == "" {
		msg = models.Message{ConversationID: convID, SenderID: self, ReceiverID: receiverID, Content: content, Timestamp: out.Timestamp, Pending: pubErr == nil}
	}
	c.directory.RecordOutbound(msg)
	if err := c.directory.Refresh(ctx); err != nil {
		zap.S().Debugw("directory refresh after send failed", "error", err)
	}
	return msg, nil
}

// Edit changes a message locally and then on the server. A server failure
// is returned but the local edit stays.
func (c *Controller) Edit(ctx context.Context, messageID, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyMessage
	}
	msg, err := c.store.Edit(messageID, content)
	if err != nil {
		return models.Message{}, err
	}
	if store.IsLocalID(messageID) {
		return msg, nil
	}
	if err := c.backend.EditMessage(ctx, messageID, content); err != nil {
		zap.S().Warnw("failed to persist edit", "messageId", messageID, "error", err)
		return msg, errors.WithMessage(err, "edit not saved")
	}
	return msg, nil
}

// Delete removes a message locally and then on the server. A server failure
// is returned but the message stays removed.
func (c *Controller) Delete(ctx context.Context, messageID string) error {
	if _, err := c.store.Delete(messageID); err != nil {
		return err
	}
	if store.IsLocalID(messageID) {
		return nil
	}
	if err := c.backend.DeleteMessage(ctx, messageID); err != nil {
		zap.S().Warnw("failed to persist delete", "messageId", messageID, "error", err)
		return errors.WithMessage(err, "delete not saved")
	}
	return nil
}

// Ingest handles one inbound message. It is the only path from the
// transport into the directory and the store and reads the active
// conversation at call time.
func (c *Controller) Ingest(e router.Event) {
	msg := e.Message
	if msg.ConversationID == "" {
		zap.S().Debugw("dropping message without conversation", "topic", e.Topic, "id", msg.ID)
		return
	}

	if msg.ConversationID == c.store.Active() {
		c.store.Ingest(msg)
	}
	if !c.directory.RecordInbound(msg) {
		go c.refreshDirectory(c.background())
	}
}

// Refresh re-fetches the conversation list
func (c *Controller) Refresh(ctx context.Context) error {
	return c.directory.Refresh(ctx)
}

// Close closes the widget. A customer disconnects but keeps the
// conversation for the next Open; staff only leave the conversation view.
func (c *Controller) Close() {
	if c.session.Identity.Role.IsStaff() {
		c.router.Leave()
		c.store.Clear()
		c.directory.SetOpen("")
		c.mu.Lock()
		c.conversationID, c.receiverID = "", ""
		c.mu.Unlock()
		c.notify()
		return
	}
	c.mu.Lock()
	c.live = false
	c.lost = false
	c.mu.Unlock()
	c.router.Close()
	c.transport.Disconnect()
	c.directory.SetOpen("")
	c.setState(StateIdle, nil)
}

// Teardown unsubscribes everything, disconnects and forgets all chat state.
// It is safe to call more than once.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if !c.live && c.state == StateIdle && c.conversationID == "" {
		c.mu.Unlock()
		return
	}
	c.live = false
	c.lost = false
	c.conversationID, c.receiverID = "", ""
	c.bgCancel()
	c.bg, c.bgCancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	c.router.Close()
	c.transport.Disconnect()
	c.store.Clear()
	c.directory.Reset()
	c.setState(StateTornDown, nil)
	c.setState(StateIdle, nil)
	zap.S().Infow("chat torn down", "accountId", c.session.Identity.AccountID)
}

// Logout is Teardown on logout
func (c *Controller) Logout() {
	c.Teardown()
}

func (c *Controller) connect(ctx context.Context) {
	if c.transport.Status() == transport.StatusConnected {
		c.setState(StateConnected, nil)
		return
	}
	token, err := c.session.Token()
	if err != nil {
		c.setState(StateConnectFailed, err)
		return
	}
	c.setState(StateConnecting, nil)
	if err := c.transport.Connect(ctx, token); err != nil {
		c.setState(StateConnectFailed, err)
		return
	}
	if c.transport.Status() == transport.StatusConnected {
		c.setState(StateConnected, nil)
	}
}

func (c *Controller) onTransportStatus(st transport.Status, err error) {
	c.mu.Lock()
	if !c.live {
		c.mu.Unlock()
		return
	}
	backfill := ""
	var next State
	switch st {
	case transport.StatusConnected:
		if c.lost {
			backfill = c.conversationID
		}
		c.lost = false
		next = StateConnected
	case transport.StatusDisconnected:
		if c.state == StateConnected {
			c.lost = true
		}
		if err == nil {
			c.mu.Unlock()
			return
		}
		next = StateConnectFailed
	default:
		next = StateConnecting
	}
	c.mu.Unlock()

	c.setState(next, err)
	if backfill != "" {
		go c.backfill(c.background(), backfill)
	}
}

// backfill reloads the active conversation after a reconnect so messages
// missed while offline show up
func (c *Controller) backfill(parent context.Context, conversationID string) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()
	if _, err := c.store.Load(ctx, conversationID); err != nil && !errors.Is(err, store.ErrStaleLoad) {
		zap.S().Warnw("backfill after reconnect failed", "conversationId", conversationID, "error", err)
	}
	if err := c.directory.Refresh(ctx); err != nil {
		zap.S().Debugw("directory refresh after reconnect failed", "error", err)
	}
}

func (c *Controller) refreshDirectory(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()
	if err := c.directory.Refresh(ctx); err != nil {
		zap.S().Warnw("directory refresh failed", "error", err)
	}
}

func (c *Controller) background() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bg
}

func (c *Controller) setState(s State, err error) {
	c.mu.Lock()
	changed := c.state != s || c.err != err
	c.state = s
	c.err = err
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	observers := append([]func(Status){}, c.observers...)
	c.mu.Unlock()
	if len(observers) == 0 {
		return
	}
	st := c.Status()
	for _, fn := range observers {
		fn(st)
	}
}
