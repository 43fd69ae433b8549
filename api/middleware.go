package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"
)

// Guard authenticates callers of the local agent API with a bearer token
type Guard struct {
	authenticator auth.Authenticator
	cache         store.Cache
	enabled       bool
}

// NewGuard sets up go-guardian with token as the only accepted bearer
// credential. An empty token disables authentication.
func NewGuard(token string) *Guard {
	g := &Guard{
		authenticator: auth.New(),
		cache:         store.NewFIFO(context.Background(), time.Hour*24*365*100), // 100 years ttl
		enabled:       token != "",
	}
	tokenStrategy := bearer.New(bearer.NoOpAuthenticate, g.cache)
	g.authenticator.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)

	if !g.enabled {
		zap.S().Warn("LOCAL_API_TOKEN is not set, the local API is unauthenticated")
		return g
	}
	agent := auth.NewDefaultUser("local-agent", "1", nil, nil)
	if err := auth.Append(tokenStrategy, token, agent, nil); err != nil {
		zap.S().Errorw("failed to register local api token", "error", err)
	}
	return g
}

// Middleware adds some basic header authentication around accessing the routes.
// Websocket clients that cannot set headers may pass ?access_token=.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.enabled {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") == "" {
			if t := r.URL.Query().Get("access_token"); t != "" {
				r.Header.Set("Authorization", "Bearer "+t)
			}
		}
		user, err := g.authenticator.Authenticate(r)
		if err != nil {
			zap.S().Errorw("unauthorized",
				"url", r.URL)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		zap.S().Debugw("authenticated", "user", user.UserName())
		next.ServeHTTP(w, r)
	})
}

// RevokeToken revokes the caller's token
func (g *Guard) RevokeToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	reqToken := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if reqToken == "" {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "missing token"}`))
		return
	}
	tokenStrategy := g.authenticator.Strategy(bearer.CachedStrategyKey)
	if err := auth.Revoke(tokenStrategy, reqToken, r); err != nil {
		zap.S().Warnw("failed to revoke token", "error", err)
	}
	json.NewEncoder(w).Encode(map[string]bool{"revoked": true})
}
