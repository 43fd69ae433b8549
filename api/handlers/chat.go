package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/linesmerrill/evchat/api"
	"github.com/linesmerrill/evchat/chat"
	"github.com/linesmerrill/evchat/chatapi"
	"github.com/linesmerrill/evchat/config"
	"github.com/linesmerrill/evchat/directory"
	"github.com/linesmerrill/evchat/models"
	"github.com/linesmerrill/evchat/session"
)

// Chat exposes the chat controller over HTTP
type Chat struct {
	Service ChatService
}

type contentRequest struct {
	Content string `json:"content"`
}

// StatusHandler returns the controller and transport state
func (c Chat) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Service.Status())
}

// OpenHandler opens the chat widget, bootstrapping a conversation for customers
func (c Chat) OpenHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithCallTimeout(r.Context())
	defer cancel()
	if err := c.Service.Open(ctx); err != nil {
		config.ErrorStatus("failed to open chat", statusFor(err), w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Service.Status())
}

// CloseHandler closes the widget
func (c Chat) CloseHandler(w http.ResponseWriter, r *http.Request) {
	c.Service.Close()
	writeJSON(w, http.StatusOK, c.Service.Status())
}

// LogoutHandler tears the chat session down
func (c Chat) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	c.Service.Teardown()
	w.WriteHeader(http.StatusNoContent)
}

// ConversationsHandler lists conversations, re-fetching them with ?refresh=true
func (c Chat) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		ctx, cancel := api.WithCallTimeout(r.Context())
		defer cancel()
		if err := c.Service.Refresh(ctx); err != nil {
			config.ErrorStatus("failed to refresh conversations", statusFor(err), w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, c.Service.Conversations())
}

// SelectConversationHandler makes a conversation the active one
func (c Chat) SelectConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["conversation_id"]
	ctx, cancel := api.WithCallTimeout(r.Context())
	defer cancel()
	if err := c.Service.Select(ctx, conversationID); err != nil {
		config.ErrorStatus("failed to select conversation", statusFor(err), w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Service.Messages())
}

// MessagesHandler returns the log of the active conversation
func (c Chat) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Service.Messages())
}

// SendMessageHandler sends a message to the active conversation
func (c Chat) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	ctx, cancel := api.WithCallTimeout(r.Context())
	defer cancel()
	msg, err := c.Service.Send(ctx, req.Content)
	if err != nil {
		config.ErrorStatus("failed to send message", statusFor(err), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// EditMessageHandler edits a message
func (c Chat) EditMessageHandler(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["message_id"]
	var req models.EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	ctx, cancel := api.WithCallTimeout(r.Context())
	defer cancel()
	msg, err := c.Service.Edit(ctx, messageID, req.Content)
	if err != nil {
		config.ErrorStatus("failed to edit message", statusFor(err), w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// DeleteMessageHandler deletes a message
func (c Chat) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["message_id"]
	if strings.TrimSpace(messageID) == "" {
		config.ErrorStatus("missing message id", http.StatusBadRequest, w, errors.New("empty id"))
		return
	}
	ctx, cancel := api.WithCallTimeout(r.Context())
	defer cancel()
	if err := c.Service.Delete(ctx, messageID); err != nil {
		config.ErrorStatus("failed to delete message", statusFor(err), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	var bootErr *directory.BootstrapError
	var sendErr *chat.SendError
	var apiErr *chatapi.APIError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrNoConversation), errors.Is(err, chat.ErrNoReceiver), errors.Is(err, directory.ErrNotCustomer):
		return http.StatusConflict
	case errors.Is(err, chat.ErrUnknownConversation), errors.Is(err, chat.ErrUnknownMessage):
		return http.StatusNotFound
	case errors.Is(err, chatapi.ErrUnauthorized), errors.Is(err, session.ErrNoCredential):
		return http.StatusUnauthorized
	case errors.Is(err, chat.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.As(err, &sendErr), errors.As(err, &bootErr), errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
