package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/chat"
	"github.com/linesmerrill/evchat/chatapi"
	"github.com/linesmerrill/evchat/config"
	"github.com/linesmerrill/evchat/session"
	"github.com/linesmerrill/evchat/transport"
)

// AgentFlags are shared by every command that talks to the chat backend
type AgentFlags struct {
	Token          string
	ConversationID string
	Wait           time.Duration
}

// NewAgentFlags returns the defaults
func NewAgentFlags() *AgentFlags {
	return &AgentFlags{Wait: 5 * time.Second}
}

// BindFlags registers the flags on fs
func (f *AgentFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Token, "token", f.Token, "bearer token, overrides CHAT_TOKEN")
	fs.StringVar(&f.ConversationID, "conversation", f.ConversationID, "conversation to select (staff only)")
	fs.DurationVar(&f.Wait, "wait", f.Wait, "how long to wait for the live connection")
}

type agent struct {
	cfg        *config.Config
	session    *session.Session
	client     *chatapi.Client
	transport  *transport.Session
	controller *chat.Controller
}

func newAgent(cfg *config.Config, token string) (*agent, error) {
	if token == "" {
		token = cfg.Token
	}
	if cfg.APIURL == "" || cfg.WSURL == "" {
		return nil, errors.New("CHAT_API_URL and CHAT_WS_URL must be set")
	}
	sess, err := session.FromToken(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build session")
	}

	client := chatapi.New(cfg.APIURL, sess, sess.Identity.Role, &http.Client{Timeout: cfg.HTTPTimeout})

	opts := transport.DefaultOptions(cfg.WSURL)
	opts.SendDestination = cfg.SendDestination
	opts.TopicPrefix = cfg.TopicPrefix
	opts.ReconnectDelay = cfg.ReconnectDelay
	opts.HeartBeat = cfg.HeartBeat
	opts.Resubscribe = cfg.Resubscribe
	t := transport.New(opts)

	zap.S().Infow("chat agent ready",
		"account", sess.Identity.AccountID,
		"role", sess.Identity.Role,
		"api", cfg.APIURL,
		"ws", cfg.WSURL)

	return &agent{
		cfg:        cfg,
		session:    sess,
		client:     client,
		transport:  t,
		controller: chat.New(sess, client, t),
	}, nil
}

// open opens the widget and, for staff, selects conversationID
func (a *agent) open(ctx context.Context, conversationID string) error {
	if err := a.controller.Open(ctx); err != nil {
		return err
	}
	if conversationID != "" && a.session.Identity.Role.IsStaff() {
		return a.controller.Select(ctx, conversationID)
	}
	return nil
}

// waitConnected blocks until the controller is connected, fails or d passes
func (a *agent) waitConnected(d time.Duration) chat.State {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		st := a.controller.Status().State
		if st == chat.StateConnected || st == chat.StateConnectFailed {
			return st
		}
		time.Sleep(50 * time.Millisecond)
	}
	return a.controller.Status().State
}
