package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sameieportalen.no/internal/auth"
	"sameieportalen.no/internal/ids"
	"sameieportalen.no/internal/obs"
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

// RequestIDFromContext extracts the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Entry is one recorded audit event.
type Entry struct {
	ID         string
	OccurredAt time.Time
	Actor      string
	Event      string
	Fields     map[string]any
	RequestID  string
}

// Store persists audit entries.
type Store interface {
	AppendAudit(ctx context.Context, e Entry) error
}

// Logger writes audit events as structured log lines and, when a store is
// configured, appends them to durable storage.
type Logger struct {
	store Store
	log   *logrus.Logger
	now   func() time.Time
}

// NewLogger returns a Logger. store may be nil for log-only auditing.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, log: obs.Logger(), now: time.Now}
}

// LogEvent records event enriched with request and caller context.
func (l *Logger) LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	e := Entry{
		ID:         ids.New(),
		OccurredAt: l.now().UTC(),
		Event:      event,
		Fields:     make(map[string]any, len(fields)),
		RequestID:  RequestIDFromContext(ctx),
	}
	if actor, ok := auth.UserIDFromContext(ctx); ok {
		e.Actor = actor
	}
	for k, v := range fields {
		e.Fields[k] = v
	}

	l.log.WithFields(logrus.Fields{
		"type":       "audit",
		"audit_id":   e.ID,
		"event":      e.Event,
		"actor":      e.Actor,
		"request_id": e.RequestID,
		"fields":     e.Fields,
	}).Info("audit")

	if l.store == nil {
		return nil
	}
	if err := l.store.AppendAudit(ctx, e); err != nil {
		return fmt.Errorf("audit: persist %s: %w", event, err)
	}
	return nil
}
