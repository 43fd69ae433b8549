package api

import (
	"context"
	"time"
)

// CallTimeout bounds a single backend call made on behalf of a request
const CallTimeout = 10 * time.Second

type requestIDKey struct{}

// WithCallTimeout creates a context with the backend call timeout
func WithCallTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, CallTimeout)
}

// WithRequestID stores the request id in ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored by RequestMiddleware
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
