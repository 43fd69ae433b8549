// Package store holds the message log of the active conversation
package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/metrics"
	"github.com/linesmerrill/evchat/models"
)

// ErrStaleLoad is returned by Load when the active conversation changed
// while the history request was in flight
var ErrStaleLoad = errors.New("store: conversation changed during load")

// ErrUnknownMessage is returned by Edit and Delete for ids not in the log
var ErrUnknownMessage = errors.New("store: message not in log")

// HistoryFetcher loads the history of a conversation
type HistoryFetcher interface {
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// EventKind describes a change to the log
type EventKind string

const (
	EventReset    EventKind = "reset"
	EventLoaded   EventKind = "loaded"
	EventAppended EventKind = "appended"
	EventReplaced EventKind = "replaced"
	EventEdited   EventKind = "edited"
	EventDeleted  EventKind = "deleted"
)

// Event is published to observers after each change
type Event struct {
	Kind           EventKind       `json:"kind"`
	ConversationID string          `json:"conversationId"`
	Message        *models.Message `json:"message,omitempty"`
	// PreviousID is the temporary id of a reconciled pending entry
	PreviousID string `json:"previousId,omitempty"`
}

// Store is the ordered, deduplicated log of one conversation. Insertion
// order is display order and is never changed after load.
type Store struct {
	fetcher HistoryFetcher

	mu        sync.Mutex
	active    string
	log       []models.Message
	seq       int64
	observers []func(Event)
}

// New returns an empty store
func New(fetcher HistoryFetcher) *Store {
	return &Store{fetcher: fetcher}
}

// Observe registers fn for change events
func (s *Store) Observe(fn func(Event)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Active returns the conversation the log belongs to
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Activate switches the log to conversationID. Switching to another
// conversation clears the log.
func (s *Store) Activate(conversationID string) {
	s.mu.Lock()
	if s.active == conversationID {
		s.mu.Unlock()
		return
	}
	s.active = conversationID
	s.log = nil
	s.mu.Unlock()

	s.publish(Event{Kind: EventReset, ConversationID: conversationID})
}

// Load activates conversationID and replaces the log with its history,
// ordered by timestamp. When another conversation was activated before the
// response arrived the result is discarded and ErrStaleLoad returned.
func (s *Store) Load(ctx context.Context, conversationID string) ([]models.Message, error) {
	s.Activate(conversationID)

	history, err := s.fetcher.Messages(ctx, conversationID)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load history of %s", conversationID)
	}

	s.mu.Lock()
	if s.active != conversationID {
		active := s.active
		s.mu.Unlock()
		metrics.StaleLoadsDiscarded.Inc()
		zap.S().Infow("discarding stale history load", "conversationId", conversationID, "active", active)
		return nil, ErrStaleLoad
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	seen := make(map[string]bool, len(history))
	log := make([]models.Message, 0, len(history))
	for _, m := range history {
		if m.ID != "" {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
		}
		log = append(log, m)
	}
	// entries ingested while the fetch was in flight and sends still waiting
	// for their echo survive a reload, after the history in their own order
	history = log
	for _, m := range s.log {
		switch {
		case m.Pending || m.ID == "":
			if !s.confirmedBy(m, history) {
				log = append(log, m)
			}
		case !seen[m.ID]:
			seen[m.ID] = true
			log = append(log, m)
		}
	}
	s.log = log
	out := s.copyLocked()
	s.mu.Unlock()

	s.publish(Event{Kind: EventLoaded, ConversationID: conversationID})
	return out, nil
}

// Ingest adds a server message at the tail. Messages for another
// conversation and ids already in the log are ignored. A pending entry from
// the same sender with the same content is replaced in place by the server
// copy. It reports whether the log changed.
func (s *Store) Ingest(msg models.Message) bool {
	s.mu.Lock()
	if s.active == "" || (msg.ConversationID != "" && msg.ConversationID != s.active) {
		s.mu.Unlock()
		return false
	}
	if msg.ConversationID == "" {
		msg.ConversationID = s.active
	}
	msg.Pending = false

	if msg.ID != "" && s.indexLocked(msg.ID) >= 0 {
		s.mu.Unlock()
		metrics.DuplicatesDropped.Inc()
		zap.S().Debugw("dropping duplicate message", "id", msg.ID, "conversationId", msg.ConversationID)
		return false
	}

	for i, m := range s.log {
		if m.Pending && m.SenderID == msg.SenderID && m.Content == msg.Content {
			previous := m.ID
			if msg.Timestamp.IsZero() {
				msg.Timestamp = m.Timestamp
			}
			s.log[i] = msg
			s.mu.Unlock()
			metrics.OptimisticReconciled.Inc()
			s.publish(Event{Kind: EventReplaced, ConversationID: msg.ConversationID, Message: &msg, PreviousID: previous})
			return true
		}
	}

	s.log = append(s.log, msg)
	s.mu.Unlock()
	metrics.MessagesIngested.Inc()
	s.publish(Event{Kind: EventAppended, ConversationID: msg.ConversationID, Message: &msg})
	return true
}

// AppendOptimistic appends a pending local entry and returns its temporary id
func (s *Store) AppendOptimistic(content, senderID, receiverID, conversationID string) string {
	s.mu.Lock()
	if conversationID != s.active {
		s.mu.Unlock()
		return ""
	}
	s.seq++
	msg := models.Message{
		ID:             "local-" + strconv.FormatInt(s.seq, 10),
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		Timestamp:      time.Now().UTC(),
		Pending:        true,
	}
	s.log = append(s.log, msg)
	s.mu.Unlock()

	s.publish(Event{Kind: EventAppended, ConversationID: conversationID, Message: &msg})
	return msg.ID
}

// Confirm replaces the pending entry tempID with the server copy, e.g. after
// a REST send returned the stored message
func (s *Store) Confirm(tempID string, msg models.Message) bool {
	s.mu.Lock()
	i := s.indexLocked(tempID)
	if i < 0 || !s.log[i].Pending {
		s.mu.Unlock()
		return false
	}
	if msg.ID == "" {
		msg.ID = tempID
	}
	if existing := s.indexLocked(msg.ID); existing >= 0 && existing != i {
		// the echo won the race
		s.log = append(s.log[:i], s.log[i+1:]...)
		s.mu.Unlock()
		s.publish(Event{Kind: EventDeleted, ConversationID: s.Active(), Message: &models.Message{ID: tempID}})
		return true
	}
	merged := s.log[i]
	merged.ID = msg.ID
	merged.Pending = false
	if !msg.Timestamp.IsZero() {
		merged.Timestamp = msg.Timestamp
	}
	if msg.SenderID != "" {
		merged.SenderID = msg.SenderID
	}
	s.log[i] = merged
	s.mu.Unlock()

	metrics.OptimisticReconciled.Inc()
	s.publish(Event{Kind: EventReplaced, ConversationID: merged.ConversationID, Message: &merged, PreviousID: tempID})
	return true
}

// Edit changes the content of a message in place and flags it edited
func (s *Store) Edit(messageID, content string) (models.Message, error) {
	s.mu.Lock()
	i := s.indexLocked(messageID)
	if i < 0 {
		s.mu.Unlock()
		return models.Message{}, ErrUnknownMessage
	}
	s.log[i].Content = content
	s.log[i].Edited = true
	msg := s.log[i]
	s.mu.Unlock()

	s.publish(Event{Kind: EventEdited, ConversationID: msg.ConversationID, Message: &msg})
	return msg, nil
}

// Delete removes a message from the log
func (s *Store) Delete(messageID string) (models.Message, error) {
	s.mu.Lock()
	i := s.indexLocked(messageID)
	if i < 0 {
		s.mu.Unlock()
		return models.Message{}, ErrUnknownMessage
	}
	msg := s.log[i]
	s.log = append(s.log[:i], s.log[i+1:]...)
	s.mu.Unlock()

	s.publish(Event{Kind: EventDeleted, ConversationID: msg.ConversationID, Message: &msg})
	return msg, nil
}

// Messages returns a copy of the log
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Get returns a message by id
func (s *Store) Get(messageID string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(messageID); i >= 0 {
		return s.log[i], true
	}
	return models.Message{}, false
}

// Len returns the number of entries in the log
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}

// Clear empties the log and forgets the active conversation
func (s *Store) Clear() {
	s.mu.Lock()
	s.active = ""
	s.log = nil
	s.mu.Unlock()

	s.publish(Event{Kind: EventReset})
}

// IsLocalID reports whether id is a temporary id handed out by
// AppendOptimistic
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, "local-")
}

func (s *Store) confirmedBy(pending models.Message, log []models.Message) bool {
	for _, m := range log {
		if m.SenderID == pending.SenderID && m.Content == pending.Content && !m.Timestamp.Before(pending.Timestamp.Add(-time.Minute)) {
			return true
		}
	}
	return false
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.log {
		if s.log[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) copyLocked() []models.Message {
	return append([]models.Message(nil), s.log...)
}

func (s *Store) publish(e Event) {
	s.mu.Lock()
	observers := append([]func(Event){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(e)
	}
}
