package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"coursebase.org/internal/auth"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and actor context.
// Administrative handlers call it after every successful mutation.
func LogEvent(ctx context.Context, event string, fields map[string]string) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zfields := make([]zap.Field, 0, len(fields)+3)
	zfields = append(zfields, zap.String("type", "audit"), zap.String("event", event))
	if rid := requestIDFromContext(ctx); rid != "" {
		zfields = append(zfields, zap.String("request_id", rid))
	}
	if actorID, ok := auth.UserIDFromContext(ctx); ok {
		zfields = append(zfields, zap.String("actor_id", actorID))
	}
	for k, v := range fields {
		zfields = append(zfields, zap.String(k, v))
	}
	zap.L().Info(event, zfields...)
	return nil
}
