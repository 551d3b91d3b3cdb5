// Package logging carries request-scoped identifiers (trace ID, user ID)
// through context and offers helpers for request logging.
package logging

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/halogen-labs/halogen/pkg/logger"
)

type contextKey string

const (
	// TraceIDKey holds the per-request trace identifier.
	TraceIDKey contextKey = "trace_id"
	// UserIDKey holds the authenticated user's ID.
	UserIDKey contextKey = "user_id"
	// SessionTokenKey holds the session token the request authenticated with.
	SessionTokenKey contextKey = "session_token"
)

// NewTraceID generates a fresh trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores a trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace ID from the context, or "".
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID stores the authenticated user ID in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID returns the authenticated user ID from the context, or "".
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionToken stores the session token in the context.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, SessionTokenKey, token)
}

// GetSessionToken returns the session token from the context, or "".
func GetSessionToken(ctx context.Context) string {
	if v, ok := ctx.Value(SessionTokenKey).(string); ok {
		return v
	}
	return ""
}

// LogRequest emits one line per handled HTTP request.
func LogRequest(log *logger.Logger, ctx context.Context, method, path string, status int, duration time.Duration) {
	log.WithFields(map[string]interface{}{
		"trace_id": GetTraceID(ctx),
		"user_id":  GetUserID(ctx),
		"method":   method,
		"path":     path,
		"status":   status,
		"duration": duration.String(),
	}).Info("request handled")
}
