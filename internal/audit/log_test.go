package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"sameieportalen.no/internal/auth"
	"sameieportalen.no/internal/obs"
)

type memoryStore struct {
	entries []Entry
	err     error
}

func (m *memoryStore) AppendAudit(_ context.Context, e Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestLogEvent(t *testing.T) {
	buf := captureLog(t)
	store := &memoryStore{}
	l := NewLogger(store)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithUser(ctx, "Jane@X.org")

	if err := l.LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v (%q)", err, buf.String())
	}
	if entry["type"] != "audit" || entry["event"] != "audit.test" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["actor"] != "jane@x.org" {
		t.Fatalf("unexpected actor: %v", entry["actor"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}

	if len(store.entries) != 1 {
		t.Fatalf("expected one stored entry, got %d", len(store.entries))
	}
	stored := store.entries[0]
	if stored.ID == "" || stored.Actor != "jane@x.org" || stored.RequestID != "req-123" {
		t.Fatalf("unexpected stored entry: %+v", stored)
	}
}

func TestLogEventRequiresName(t *testing.T) {
	captureLog(t)
	if err := NewLogger(nil).LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

func TestLogEventStoreFailure(t *testing.T) {
	captureLog(t)
	boom := errors.New("disk full")
	err := NewLogger(&memoryStore{err: boom}).LogEvent(context.Background(), "x", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
