package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"folio.org/internal/auth"
	"folio.org/internal/obs"
	"folio.org/internal/workflow"
)

func captureEntry(t *testing.T, fn func()) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	fn()

	line := buf.Bytes()
	if len(line) == 0 {
		t.Fatal("expected log output")
	}
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	return entry
}

func TestLogEvent(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithActor(ctx, workflow.Actor{ID: "user-42", Role: workflow.RoleAdmin})

	entry := captureEntry(t, func() {
		if err := LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
			t.Fatalf("LogEvent failed: %v", err)
		}
	})
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "audit.test" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["actor_id"] != "user-42" || entry["actor_role"] != "admin" {
		t.Fatalf("unexpected actor: %v / %v", entry["actor_id"], entry["actor_role"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), " ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

func TestNotifierWritesTransition(t *testing.T) {
	evt := workflow.Event{
		Record: workflow.TransitionRecord{
			DocumentID: "D1",
			Sequence:   3,
			FromStatus: workflow.StatusUnderReview,
			ToStatus:   workflow.StatusNeedsRevision,
			ActorID:    "F1",
			Reason:     "cite sources",
		},
		OwnerID:   "S1",
		AdviserID: "F1",
	}
	entry := captureEntry(t, func() {
		if err := (Notifier{}).Notify(context.Background(), evt); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	})
	if entry["event"] != "document.transition" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	fields := entry["fields"].(map[string]any)
	if fields["to"] != "needs_revision" || fields["reason"] != "cite sources" || fields["sequence"] != float64(3) {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
