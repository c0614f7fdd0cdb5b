package audit

import (
	"context"
	"errors"
	"strings"

	"folio.org/internal/auth"
	"folio.org/internal/obs"
	"folio.org/internal/workflow"
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

// RequestIDFromContext extracts the request id if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	l := obs.Logger()
	e := l.Info().Str("type", "audit").Str("event", event)
	if rid := RequestIDFromContext(ctx); rid != "" {
		e = e.Str("request_id", rid)
	}
	if actor, ok := auth.ActorFromContext(ctx); ok {
		e = e.Str("actor_id", actor.ID).Str("actor_role", string(actor.Role))
	}
	if fields == nil {
		fields = map[string]any{}
	}
	e.Interface("fields", fields).Send()
	return nil
}

// Notifier records every committed transition in the audit log.
type Notifier struct{}

var _ workflow.Notifier = Notifier{}

func (Notifier) Notify(ctx context.Context, evt workflow.Event) error {
	rec := evt.Record
	fields := map[string]any{
		"document_id": rec.DocumentID,
		"sequence":    rec.Sequence,
		"from":        string(rec.FromStatus),
		"to":          string(rec.ToStatus),
		"actor_id":    rec.ActorID,
		"owner_id":    evt.OwnerID,
		"adviser_id":  evt.AdviserID,
	}
	if rec.Reason != "" {
		fields["reason"] = rec.Reason
	}
	return LogEvent(ctx, "document.transition", fields)
}
