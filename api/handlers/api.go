package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linesmerrill/evchat/api"
	"github.com/linesmerrill/evchat/chat"
	"github.com/linesmerrill/evchat/config"
	"github.com/linesmerrill/evchat/models"
)

// ChatService is the chat controller as seen by the local API
type ChatService interface {
	Status() chat.Status
	Open(ctx context.Context) error
	Close()
	Teardown()
	Refresh(ctx context.Context) error
	Select(ctx context.Context, conversationID string) error
	Conversations() []models.Conversation
	Messages() []models.Message
	Send(ctx context.Context, content string) (models.Message, error)
	Edit(ctx context.Context, messageID, content string) (models.Message, error)
	Delete(ctx context.Context, messageID string) error
}

// App stores the router and chat controller, so it can be reused
type App struct {
	Router *mux.Router
	Config config.Config
	Chat   ChatService
	Hub    *EventHub
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	guard := api.NewGuard(a.Config.LocalAPIToken)
	if a.Hub == nil {
		a.Hub = NewEventHub()
	}
	c := Chat{Service: a.Chat}

	r := mux.NewRouter()
	r.Use(api.MetricsMiddleware)

	// healthchex
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.Handle("/ws/events", guard.Middleware(http.HandlerFunc(a.Hub.HandleWebSocket))).Methods("GET")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(2 * a.timeout()))

	apiCreate.Handle("/auth/logout", guard.Middleware(http.HandlerFunc(guard.RevokeToken))).Methods("DELETE")

	apiCreate.Handle("/chat/status", guard.Middleware(http.HandlerFunc(c.StatusHandler))).Methods("GET")
	apiCreate.Handle("/chat/open", guard.Middleware(http.HandlerFunc(c.OpenHandler))).Methods("POST")
	apiCreate.Handle("/chat/close", guard.Middleware(http.HandlerFunc(c.CloseHandler))).Methods("POST")
	apiCreate.Handle("/chat/session", guard.Middleware(http.HandlerFunc(c.LogoutHandler))).Methods("DELETE")
	apiCreate.Handle("/chat/conversations", guard.Middleware(http.HandlerFunc(c.ConversationsHandler))).Methods("GET")
	apiCreate.Handle("/chat/conversations/{conversation_id}/select", guard.Middleware(http.HandlerFunc(c.SelectConversationHandler))).Methods("POST")
	apiCreate.Handle("/chat/messages", guard.Middleware(http.HandlerFunc(c.MessagesHandler))).Methods("GET")
	apiCreate.Handle("/chat/messages", guard.Middleware(http.HandlerFunc(c.SendMessageHandler))).Methods("POST")
	apiCreate.Handle("/chat/messages/{message_id}", guard.Middleware(http.HandlerFunc(c.EditMessageHandler))).Methods("PUT")
	apiCreate.Handle("/chat/messages/{message_id}", guard.Middleware(http.HandlerFunc(c.DeleteMessageHandler))).Methods("DELETE")

	return r
}

// Initialize builds the router
func (a *App) Initialize() {
	a.Router = a.New()
}

func (a *App) timeout() time.Duration {
	if a.Config.HTTPTimeout > 0 {
		return a.Config.HTTPTimeout
	}
	return api.CallTimeout
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `{"alive": true}`)
}
