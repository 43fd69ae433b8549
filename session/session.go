// Package session carries the authenticated identity and credential that the
// chat core is constructed with. Nothing here reads ambient storage: the
// caller decides where the token comes from.
package session

import (
	"strconv"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/linesmerrill/evchat/models"
)

// ErrNoCredential is returned when no bearer token is available
var ErrNoCredential = errors.New("no credential available")

// CredentialProvider supplies the bearer credential for REST calls and the
// transport handshake
type CredentialProvider interface {
	Token() (string, error)
}

// StaticToken is a CredentialProvider backed by a fixed token
type StaticToken string

// Token returns the token or ErrNoCredential when empty
func (t StaticToken) Token() (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", ErrNoCredential
	}
	return string(t), nil
}

// Session is the explicitly passed session context
type Session struct {
	Identity models.Identity

	mu    sync.RWMutex
	creds CredentialProvider
}

// New creates a session for identity authenticating with creds
func New(identity models.Identity, creds CredentialProvider) *Session {
	return &Session{Identity: identity, creds: creds}
}

// Token returns the current bearer credential
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	creds := s.creds
	s.mu.RUnlock()
	if creds == nil {
		return "", ErrNoCredential
	}
	return creds.Token()
}

// SetCredentials swaps the credential provider, e.g. after a re-login
func (s *Session) SetCredentials(creds CredentialProvider) {
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
}

// FromToken builds a session whose identity is read from the bearer token's
// claims. The signature is not verified here: the backend is the authority,
// the client only needs to know who it is.
func FromToken(token string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoCredential
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, "failed to parse credential claims")
	}

	identity := models.Identity{
		AccountID: claimString(claims, "accountId", "account_id", "userId", "user_id", "sub"),
		Name:      claimString(claims, "name", "fullName", "full_name", "email"),
		Role:      models.ParseRole(claimRole(claims)),
	}
	if identity.AccountID == "" {
		return nil, errors.New("credential carries no account id")
	}
	return New(identity, StaticToken(token)), nil
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func claimRole(claims jwt.MapClaims) string {
	if r := claimString(claims, "role"); r != "" {
		return r
	}
	for _, k := range []string{"roles", "authorities"} {
		if list, ok := claims[k].([]interface{}); ok && len(list) > 0 {
			if s, ok := list[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
