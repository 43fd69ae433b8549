// Package chatapi is the client for the shop backend's chat REST endpoints
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/models"
	"github.com/linesmerrill/evchat/session"
)

// ErrUnauthorized means the credential was rejected and the session layer
// has to re-authenticate
var ErrUnauthorized = errors.New("chatapi: unauthorized")

// APIError is a non-2xx response from the backend
type APIError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Client calls the chat endpoints under baseURL, e.g. https://shop.example/api
type Client struct {
	baseURL string
	creds   session.CredentialProvider
	viewer  models.Role
	http    *http.Client
}

// New returns a client. viewer decides which party of a conversation
// payload is the counterpart.
func New(baseURL string, creds session.CredentialProvider, viewer models.Role, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		viewer:  viewer,
		http:    httpClient,
	}
}

// StartConversation asks the backend to assign a staff member and returns
// the customer's conversation. Missing fields are left empty for the caller
// to reject.
func (c *Client) StartConversation(ctx context.Context) (models.Conversation, error) {
	body, err := c.do(ctx, http.MethodPost, "/chat/conversation/start", struct{}{})
	if err != nil {
		return models.Conversation{}, err
	}
	r, err := models.ObjectFromJSON(body)
	if err != nil {
		return models.Conversation{}, err
	}
	return models.ConversationFromJSON(r, c.viewer), nil
}

// Conversations lists the conversations visible to the current identity
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	body, err := c.do(ctx, http.MethodGet, "/chat/conversations", nil)
	if err != nil {
		return nil, err
	}
	items, err := models.ListFromJSON(body, "conversations")
	if err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(items))
	for _, item := range items {
		conv := models.ConversationFromJSON(item, c.viewer)
		if conv.ID == "" {
			zap.S().Debugw("skipping conversation without id", "raw", item.Raw)
			continue
		}
		out = append(out, conv)
	}
	return out, nil
}

// Messages returns the history of a conversation in server order
func (c *Client) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	body, err := c.do(ctx, http.MethodGet, "/chat/conversation/"+url.PathEscape(conversationID)+"/messages", nil)
	if err != nil {
		return nil, err
	}
	items, err := models.ListFromJSON(body, "messages")
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(items))
	for _, item := range items {
		m := models.MessageFromJSON(item)
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		out = append(out, m)
	}
	return out, nil
}

// MarkRead persists the read state of a conversation
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	_, err := c.do(ctx, http.MethodPut, "/chat/conversation/"+url.PathEscape(conversationID)+"/read", nil)
	return err
}

// SendMessage posts a message over REST. Older deployments only expose
// /chat/message, so a 404 or 405 from /chat/send is retried there once.
func (c *Client) SendMessage(ctx context.Context, msg models.OutboundMessage) (models.Message, error) {
	body, err := c.do(ctx, http.MethodPost, "/chat/send", msg)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusMethodNotAllowed) {
		zap.S().Debugw("send endpoint unavailable, trying legacy path", "status", apiErr.Status)
		body, err = c.do(ctx, http.MethodPost, "/chat/message", msg)
	}
	if err != nil {
		return models.Message{}, err
	}

	sent := models.Message{
		ConversationID: msg.ConversationID,
		ReceiverID:     msg.ReceiverID,
		Content:        msg.Content,
		Timestamp:      msg.Timestamp,
	}
	if r, err := models.ObjectFromJSON(body); err == nil && r.IsObject() {
		decoded := models.MessageFromJSON(r)
		if decoded.ID != "" {
			sent.ID = decoded.ID
			sent.SenderID = decoded.SenderID
			if !decoded.Timestamp.IsZero() {
				sent.Timestamp = decoded.Timestamp
			}
			if decoded.ConversationID != "" {
				sent.ConversationID = decoded.ConversationID
			}
		}
	}
	return sent, nil
}

// EditMessage replaces the content of a message
func (c *Client) EditMessage(ctx context.Context, messageID, content string) error {
	_, err := c.do(ctx, http.MethodPut, "/chat/message/"+url.PathEscape(messageID), models.EditMessageRequest{Content: content})
	return err
}

// DeleteMessage removes a message
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/chat/message/"+url.PathEscape(messageID), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	token, err := c.creds.Token()
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s %s response", method, path)
	}
	zap.S().Debugw("chat api call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &APIError{
			Status:  resp.StatusCode,
			Method:  method,
			Path:    path,
			Message: errorMessage(body),
		}
	}
	return body, nil
}

func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, p := range []string{"message", "error", "response.message", "response.error"} {
		if v := gjson.GetBytes(body, p); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
