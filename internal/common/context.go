package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyBackend   contextKey = "backend"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithBackend records the backend a request committed to.
func WithBackend(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ContextKeyBackend, name)
}

func BackendFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(ContextKeyBackend).(string); ok {
		return name
	}
	return ""
}
