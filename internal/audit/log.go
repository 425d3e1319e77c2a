package audit

import (
	"context"
	"errors"
	"strings"

	"learnhub.dev/internal/obs"
	"learnhub.dev/internal/security"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and identity context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}

	e := obs.Logger().Info().
		Str("type", "audit").
		Str("event", event)
	if rid := RequestIDFromContext(ctx); rid != "" {
		e = e.Str("request_id", rid)
	}
	if identity, ok := security.IdentityFromContext(ctx); ok {
		e = e.Str("identity_id", identity.ID)
	}
	e.Interface("fields", copyFields).Send()
	return nil
}
