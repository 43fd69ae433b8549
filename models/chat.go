package models

import "time"

// Conversation holds one customer to staff thread as shown in the inbox
type Conversation struct {
	ID string `json:"conversationId"`
	// CounterpartAccountID is always an account id. For a customer it is the
	// assigned staff member's account, never their staff record id.
	CounterpartAccountID string    `json:"counterpartAccountId"`
	CounterpartName      string    `json:"counterpartName,omitempty"`
	LastMessagePreview   string    `json:"lastMessagePreview,omitempty"`
	LastMessageTime      time.Time `json:"lastMessageTime,omitempty"`
	UnreadCount          int       `json:"unreadCount"`
}

// Message holds a single chat entry
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Edited         bool      `json:"edited,omitempty"`
	// Pending marks a local entry that has not been confirmed by the server
	Pending bool `json:"pending,omitempty"`
}

// OutboundMessage is the payload published to the send destination and
// posted to the REST fallback
type OutboundMessage struct {
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversationId,omitempty"`
}

// EditMessageRequest is the body of an edit call
type EditMessageRequest struct {
	Content string `json:"content"`
}

// HealthCheckResponse returns the health check response duh
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
