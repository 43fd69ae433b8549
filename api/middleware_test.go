package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(RequestID(r.Context())))
})

func TestGuardAcceptsConfiguredToken(t *testing.T) {
	g := NewGuard("secret")
	h := g.Middleware(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/ws/events?access_token=secret", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGuardRejectsOtherTokens(t *testing.T) {
	h := NewGuard("secret").Middleware(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/status", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/chat/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGuardDisabledWithoutToken(t *testing.T) {
	rr := httptest.NewRecorder()
	NewGuard("").Middleware(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRevokeToken(t *testing.T) {
	g := NewGuard("secret")
	h := g.Middleware(okHandler)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	g.RevokeToken(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/chat/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMetricsMiddlewareSetsRequestID(t *testing.T) {
	rr := httptest.NewRecorder()
	MetricsMiddleware(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/chat/status", nil))

	id := rr.Header().Get("X-Request-Id")
	assert.NotEmpty(t, id)
	assert.Equal(t, id, rr.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/status", nil)
	req.Header.Set("X-Request-Id", "abc")
	rr = httptest.NewRecorder()
	MetricsMiddleware(okHandler).ServeHTTP(rr, req)
	assert.Equal(t, "abc", rr.Body.String())
}

func TestTimeoutMiddleware(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
		w.Write([]byte("late"))
	})
	rr := httptest.NewRecorder()
	TimeoutMiddleware(20*time.Millisecond)(slow).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
	assert.NotContains(t, rr.Body.String(), "late")

	rr = httptest.NewRecorder()
	TimeoutMiddleware(time.Second)(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
