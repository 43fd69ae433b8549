package chatapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/evchat/chatapi"
	"github.com/linesmerrill/evchat/models"
	"github.com/linesmerrill/evchat/session"
)

type backend struct {
	router *mux.Router
	server *httptest.Server
	auth   []string
}

func newBackend(t *testing.T) *backend {
	b := &backend{router: mux.NewRouter()}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		b.router.ServeHTTP(w, r)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) handle(path, method string, fn http.HandlerFunc) {
	b.router.HandleFunc("/api"+path, fn).Methods(method)
}

func (b *backend) client(role models.Role) *chatapi.Client {
	return chatapi.New(b.server.URL+"/api/", session.StaticToken("tok"), role, b.server.Client())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestStartConversation(t *testing.T) {
	b := newBackend(t)
	b.handle("/chat/conversation/start", http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"conversationId":"C1","staffId":77,"staffAccountId":"S9","staffName":"Minh"}}`)
	})

	conv, err := b.client(models.RoleCustomer).StartConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "C1", conv.ID)
	assert.Equal(t, "S9", conv.CounterpartAccountID)
	assert.Equal(t, "Minh", conv.CounterpartName)
	assert.Equal(t, []string{"Bearer tok"}, b.auth)
}

func TestStartConversationWithoutAccountID(t *testing.T) {
	b := newBackend(t)
	b.handle("/chat/conversation/start", http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"conversation_id":"C1","staff":{"id":77}}`)
	})

	conv, err := b.client(models.RoleCustomer).StartConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "C1", conv.ID)
	assert.Empty(t, conv.CounterpartAccountID)
}

func TestConversationsNormalizesShapes(t *testing.T) {
	b := newBackend(t)
	b.handle("/chat/conversations", http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"conversations":[
			{"conversationId":"C1","customerAccountId":"U1","unreadCount":2},
			{"conversation_id":"C2","customer":{"account_id":"U2","full_name":"Lan"},"last_message":{"content":"hello"}},
			{"customerAccountId":"U3"}
		]}`)
	})

	convs, err := b.client(models.RoleStaff).Conversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "U1", convs[0].CounterpartAccountID)
	assert.Equal(t, 2, convs[0].UnreadCount)
	assert.Equal(t, "C2", convs[1].ID)
	assert.Equal(t, "U2", convs[1].CounterpartAccountID)
	assert.Equal(t, "Lan", convs[1].CounterpartName)
	assert.Equal(t, "hello", convs[1].LastMessagePreview)
}

func TestMessagesFillsConversationID(t *testing.T) {
	b := newBackend(t)
	b.handle("/chat/conversation/{id}/messages", http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "C1", mux.Vars(r)["id"])
		writeJSON(w, http.StatusOK, `[{"id":1,"senderId":"U1","content":"a"},{"message_id":"2","sender_id":"S9","content":"b"}]`)
	})

	msgs, err := b.client(models.RoleCustomer).Messages(context.Background(), "C1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "C1", msgs[0].ConversationID)
	assert.Equal(t, "2", msgs[1].ID)
	assert.Equal(t, "S9", msgs[1].SenderID)
}

func TestSendMessageFallsBackToLegacyPath(t *testing.T) {
	b := newBackend(t)
	var got models.OutboundMessage
	b.handle("/chat/message", http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, `{"id":"m7","senderId":"U1","conversationId":"C1"}`)
	})

	sent, err := b.client(models.RoleCustomer).SendMessage(context.Background(), models.OutboundMessage{
		ReceiverID: "S9", Content: "hi", ConversationID: "C1",
	})
	require.NoError(t, err)
	assert.Equal(t, "m7", sent.ID)
	assert.Equal(t, "U1", sent.SenderID)
	assert.Equal(t, "hi", sent.Content)
	assert.Equal(t, "S9", got.ReceiverID)
	assert.Len(t, b.auth, 2)
}

func TestSendMessageDoesNotRetryOtherErrors(t *testing.T) {
	b := newBackend(t)
	b.handle("/chat/send", http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"message":"receiver not found"}`)
	})

	_, err := b.client(models.RoleCustomer).SendMessage(context.Background(), models.OutboundMessage{ReceiverID: "X", Content: "hi"})
	var apiErr *chatapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "receiver not found", apiErr.Message)
	assert.Len(t, b.auth, 1)
}

func TestUnauthorized(t *testing.T) {
	b := newBackend(t)
	b.handle("/chat/conversations", http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := b.client(models.RoleStaff).Conversations(context.Background())
	assert.ErrorIs(t, err, chatapi.ErrUnauthorized)
}

func TestMissingCredential(t *testing.T) {
	b := newBackend(t)
	c := chatapi.New(b.server.URL+"/api", session.StaticToken(""), models.RoleCustomer, nil)

	err := c.MarkRead(context.Background(), "C1")
	assert.ErrorIs(t, err, session.ErrNoCredential)
	assert.Empty(t, b.auth)
}

func TestEditDeleteMarkRead(t *testing.T) {
	b := newBackend(t)
	var calls []string
	record := func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}
	b.handle("/chat/message/{id}", http.MethodPut, record)
	b.handle("/chat/message/{id}", http.MethodDelete, record)
	b.handle("/chat/conversation/{id}/read", http.MethodPut, record)

	c := b.client(models.RoleStaff)
	require.NoError(t, c.EditMessage(context.Background(), "m1", "fixed"))
	require.NoError(t, c.DeleteMessage(context.Background(), "m1"))
	require.NoError(t, c.MarkRead(context.Background(), "C1"))
	assert.Equal(t, []string{
		"PUT /api/chat/message/m1",
		"DELETE /api/chat/message/m1",
		"PUT /api/chat/conversation/C1/read",
	}, calls)
}
