// Package directory keeps the conversations visible to the current identity
// along with their previews and unread counts
package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/models"
)

// ErrNotCustomer is returned by Bootstrap for staff identities
var ErrNotCustomer = errors.New("directory: bootstrap is only available to customers")

// ErrStaleList is returned by List when Reset ran while the fetch was in
// flight; the fetched conversations are dropped
var ErrStaleList = errors.New("directory: list superseded by reset")

// BootstrapError means the backend did not hand back a routable conversation.
// It is fatal for the chat session.
type BootstrapError struct {
	Missing []string
	Err     error
}

func (e *BootstrapError) Error() string {
	if e.Err != nil {
		return "conversation bootstrap failed: " + e.Err.Error()
	}
	return fmt.Sprintf("conversation bootstrap failed: response is missing %s", strings.Join(e.Missing, ", "))
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// Backend is the part of the REST collaborator the directory uses
type Backend interface {
	StartConversation(ctx context.Context) (models.Conversation, error)
	Conversations(ctx context.Context) ([]models.Conversation, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// Directory is safe for concurrent use
type Directory struct {
	identity models.Identity
	backend  Backend

	mu        sync.Mutex
	order     []string
	byID      map[string]*models.Conversation
	open      string
	epoch     uint64
	observers []func([]models.Conversation)
}

// New returns an empty directory for identity
func New(identity models.Identity, backend Backend) *Directory {
	return &Directory{
		identity: identity,
		backend:  backend,
		byID:     make(map[string]*models.Conversation),
	}
}

// Observe registers fn to receive a snapshot after every change
func (d *Directory) Observe(fn func([]models.Conversation)) {
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

// List fetches the conversations from the backend and replaces the local
// set. The conversation currently open keeps a zero unread count.
func (d *Directory) List(ctx context.Context) ([]models.Conversation, error) {
	d.mu.Lock()
	epoch := d.epoch
	d.mu.Unlock()

	convs, err := d.backend.Conversations(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to list conversations")
	}

	d.mu.Lock()
	if d.epoch != epoch {
		d.mu.Unlock()
		zap.S().Debug("dropping conversation list fetched before reset")
		return nil, ErrStaleList
	}
	d.order = d.order[:0]
	d.byID = make(map[string]*models.Conversation, len(convs))
	for i := range convs {
		c := convs[i]
		if _, dup := d.byID[c.ID]; dup {
			continue
		}
		if c.ID == d.open {
			c.UnreadCount = 0
		}
		d.order = append(d.order, c.ID)
		d.byID[c.ID] = &c
	}
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.publish(snap)
	return snap, nil
}

// Refresh re-fetches the list, discarding the result
func (d *Directory) Refresh(ctx context.Context) error {
	_, err := d.List(ctx)
	return err
}

// Bootstrap asks the backend to create the customer's conversation and
// assign a staff member. Nothing is registered unless the response carries
// both the conversation id and the staff account id.
func (d *Directory) Bootstrap(ctx context.Context) (models.Conversation, error) {
	if d.identity.Role.IsStaff() {
		return models.Conversation{}, ErrNotCustomer
	}
	conv, err := d.backend.StartConversation(ctx)
	if err != nil {
		return models.Conversation{}, &BootstrapError{Err: err}
	}

	var missing []string
	if conv.ID == "" {
		missing = append(missing, "conversationId")
	}
	if conv.CounterpartAccountID == "" {
		missing = append(missing, "staffAccountId")
	}
	if len(missing) > 0 {
		zap.S().Errorw("conversation bootstrap rejected", "missing", missing)
		return models.Conversation{}, &BootstrapError{Missing: missing}
	}

	d.mu.Lock()
	if _, ok := d.byID[conv.ID]; !ok {
		d.order = append(d.order, conv.ID)
	}
	c := conv
	d.byID[conv.ID] = &c
	snap := d.snapshotLocked()
	d.mu.Unlock()

	zap.S().Infow("conversation bootstrapped", "conversationId", conv.ID, "staffAccountId", conv.CounterpartAccountID)
	d.publish(snap)
	return conv, nil
}

// Snapshot returns a copy of the conversations in server order
func (d *Directory) Snapshot() []models.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Get returns a conversation by id
func (d *Directory) Get(id string) (models.Conversation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.byID[id]
	if !ok {
		return models.Conversation{}, false
	}
	return *c, true
}

// SetOpen records which conversation the user is looking at
func (d *Directory) SetOpen(id string) {
	d.mu.Lock()
	d.open = id
	d.mu.Unlock()
}

// RecordInbound updates preview and unread count for an incoming message.
// Unread only grows for messages from someone else in a conversation that is
// not open. It reports whether the conversation is known.
func (d *Directory) RecordInbound(msg models.Message) bool {
	d.mu.Lock()
	c, ok := d.byID[msg.ConversationID]
	if !ok {
		d.mu.Unlock()
		return false
	}
	d.touchLocked(c, msg)
	if msg.SenderID != d.identity.AccountID && msg.ConversationID != d.open {
		c.UnreadCount++
	}
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.publish(snap)
	return true
}

// RecordOutbound updates the preview after the current identity sent msg
func (d *Directory) RecordOutbound(msg models.Message) {
	d.mu.Lock()
	c, ok := d.byID[msg.ConversationID]
	if !ok {
		d.mu.Unlock()
		return
	}
	d.touchLocked(c, msg)
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.publish(snap)
}

// MarkRead zeroes the unread count locally, then tells the backend. A
// backend failure is logged and otherwise ignored.
func (d *Directory) MarkRead(ctx context.Context, id string) {
	d.mu.Lock()
	c, ok := d.byID[id]
	if ok {
		c.UnreadCount = 0
	}
	snap := d.snapshotLocked()
	d.mu.Unlock()

	if ok {
		d.publish(snap)
	}
	if err := d.backend.MarkRead(ctx, id); err != nil {
		zap.S().Warnw("failed to persist read state", "conversationId", id, "error", err)
	}
}

// Reset forgets every conversation
func (d *Directory) Reset() {
	d.mu.Lock()
	d.order = nil
	d.byID = make(map[string]*models.Conversation)
	d.open = ""
	d.epoch++
	d.mu.Unlock()

	d.publish(nil)
}

func (d *Directory) touchLocked(c *models.Conversation, msg models.Message) {
	if msg.Content != "" {
		c.LastMessagePreview = msg.Content
	}
	if !msg.Timestamp.IsZero() {
		c.LastMessageTime = msg.Timestamp
	}
}

func (d *Directory) snapshotLocked() []models.Conversation {
	out := make([]models.Conversation, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.byID[id])
	}
	return out
}

func (d *Directory) publish(snap []models.Conversation) {
	d.mu.Lock()
	observers := append([]func([]models.Conversation){}, d.observers...)
	d.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
}
