package models

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ErrMalformedPayload is returned when a frame or response body is not JSON
var ErrMalformedPayload = errors.New("malformed chat payload")

// The backend is not consistent across endpoints: some respond in camelCase,
// some in snake_case and some nest the parties in sub-objects. Each field
// lists its known spellings in priority order.
var (
	messageIDPaths       = []string{"id", "messageId", "message_id", "_id"}
	conversationIDPaths  = []string{"conversationId", "conversation_id", "conversation.id", "conversation.conversationId", "chatId", "chat_id"}
	senderIDPaths        = []string{"senderId", "sender_id", "sender.accountId", "sender.account_id", "sender.id", "fromAccountId"}
	receiverIDPaths      = []string{"receiverId", "receiver_id", "receiver.accountId", "receiver.account_id", "receiver.id", "toAccountId"}
	contentPaths         = []string{"content", "message", "text", "body"}
	messageTimePaths     = []string{"timestamp", "sentAt", "sent_at", "createdAt", "created_at"}
	editedPaths          = []string{"edited", "editedFlag", "isEdited", "is_edited"}
	conversationOwnPaths = []string{"conversationId", "conversation_id", "id", "_id"}

	// staff record ids (staffId, staff.id) are deliberately absent: messages
	// are addressed to accounts
	staffAccountPaths = []string{"staffAccountId", "staff_account_id", "staff.accountId", "staff.account_id", "staff.account.id", "assignedStaff.accountId", "assigned_staff.account_id", "counterpartAccountId"}
	staffNamePaths    = []string{"staffName", "staff_name", "staff.fullName", "staff.full_name", "staff.name", "assignedStaff.fullName"}

	// customerId and customer_id name the customer profile, not the account
	customerAccountPaths = []string{"customerAccountId", "customer_account_id", "customer.accountId", "customer.account_id", "customer.account.id", "counterpartAccountId"}
	customerNamePaths    = []string{"customerName", "customer_name", "customer.fullName", "customer.full_name", "customer.name"}

	previewPaths     = []string{"lastMessagePreview", "last_message_preview", "lastMessage", "last_message"}
	previewTimePaths = []string{"lastMessageTime", "last_message_time", "lastMessageAt", "last_message_at", "lastMessage.timestamp", "last_message.timestamp", "updatedAt", "updated_at"}
	unreadPaths      = []string{"unreadCount", "unread_count", "unread"}

	listWrapperPaths = []string{"data", "content", "items", "result", "data.content"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// DecodeMessage parses an inbound frame body into a Message
func DecodeMessage(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return Message{}, ErrMalformedPayload
	}
	return MessageFromJSON(gjson.ParseBytes(data)), nil
}

// MessageFromJSON maps any of the known message shapes onto Message
func MessageFromJSON(r gjson.Result) Message {
	return Message{
		ID:             firstString(r, messageIDPaths...),
		ConversationID: firstString(r, conversationIDPaths...),
		SenderID:       firstString(r, senderIDPaths...),
		ReceiverID:     firstString(r, receiverIDPaths...),
		Content:        firstString(r, contentPaths...),
		Timestamp:      firstTime(r, messageTimePaths...),
		Edited:         firstBool(r, editedPaths...),
	}
}

// ConversationFromJSON maps a conversation payload onto Conversation. The
// viewer's role decides which party is the counterpart.
func ConversationFromJSON(r gjson.Result, viewer Role) Conversation {
	c := Conversation{
		ID:              firstString(r, conversationOwnPaths...),
		LastMessageTime: firstTime(r, previewTimePaths...),
		UnreadCount:     int(firstInt(r, unreadPaths...)),
	}
	if viewer.IsStaff() {
		c.CounterpartAccountID = firstString(r, customerAccountPaths...)
		c.CounterpartName = firstString(r, customerNamePaths...)
	} else {
		c.CounterpartAccountID = firstString(r, staffAccountPaths...)
		c.CounterpartName = firstString(r, staffNamePaths...)
	}
	for _, p := range previewPaths {
		v := r.Get(p)
		if v.IsObject() {
			v = v.Get("content")
		}
		if s := strings.TrimSpace(v.String()); v.Exists() && s != "" {
			c.LastMessagePreview = s
			break
		}
	}
	return c
}

// ListFromJSON returns the elements of a list response, which may be a bare
// array or wrapped under one of the usual envelope keys
func ListFromJSON(data []byte, keys ...string) ([]gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedPayload
	}
	r := gjson.ParseBytes(data)
	if r.IsArray() {
		return r.Array(), nil
	}
	for _, k := range append(keys, listWrapperPaths...) {
		if v := r.Get(k); v.IsArray() {
			return v.Array(), nil
		}
	}
	return nil, nil
}

// ObjectFromJSON returns the object of a single-entity response, unwrapping
// a "data" envelope when present
func ObjectFromJSON(data []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, ErrMalformedPayload
	}
	r := gjson.ParseBytes(data)
	if d := r.Get("data"); d.IsObject() {
		return d, nil
	}
	return r, nil
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := r.Get(p)
		if !v.Exists() || v.Type == gjson.Null || v.IsObject() || v.IsArray() {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(r gjson.Result, paths ...string) int64 {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v.Int()
		}
	}
	return 0
}

func firstBool(r gjson.Result, paths ...string) bool {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v.Bool()
		}
	}
	return false
}

func firstTime(r gjson.Result, paths ...string) time.Time {
	for _, p := range paths {
		if t := timeFrom(r.Get(p)); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func timeFrom(v gjson.Result) time.Time {
	switch {
	case v.Type == gjson.Number:
		n := v.Int()
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	case v.Type == gjson.String:
		s := strings.TrimSpace(v.String())
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	case v.IsArray():
		// [year, month, day, hour, minute, second, nanos]
		parts := v.Array()
		if len(parts) < 3 {
			return time.Time{}
		}
		f := make([]int, 7)
		for i := 0; i < len(parts) && i < 7; i++ {
			f[i] = int(parts[i].Int())
		}
		return time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], f[6], time.UTC)
	}
	return time.Time{}
}
