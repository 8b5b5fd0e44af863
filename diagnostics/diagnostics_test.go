package diagnostics

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/accountguard/logger"
)

func TestRedact(t *testing.T) {
	in := map[string]any{
		"username":      "alice",
		"password":      "hunter2",
		"recoveryToken": "abc",
		"mnemonic":      "ember harbor ...",
		"api_key":       "k-123",
		"attempt":       3,
	}
	out := Redact(in)

	if out["username"] != "alice" || out["attempt"] != 3 {
		t.Error("non-sensitive fields must pass through")
	}
	for _, key := range []string{"password", "recoveryToken", "mnemonic", "api_key"} {
		if out[key] != "[REDACTED]" {
			t.Errorf("%s: expected redaction, got %v", key, out[key])
		}
	}
	if in["password"] != "hunter2" {
		t.Error("Redact must not mutate its input")
	}
}

func TestRedact_Nil(t *testing.T) {
	if Redact(nil) != nil {
		t.Error("nil context stays nil")
	}
}

func TestLogSink_ReportReturnsID(t *testing.T) {
	sink := NewLogSink(logger.Nop())
	id := sink.Report(context.Background(), LevelError, "storage", "STORAGE_UNAVAILABLE",
		"write failed", map[string]any{"path": "/tmp/x"}, "Please retry.")
	if id == "" {
		t.Fatal("report id must not be empty")
	}
	other := sink.Report(context.Background(), LevelInfo, "auth", "", "ok", nil, "")
	if other == id {
		t.Error("report ids must be unique")
	}
}

func TestSessionStore_BeginEndGet(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{})

	sess := store.Begin("login")
	if sess.Status != SessionActive {
		t.Fatalf("expected active session, got %s", sess.Status)
	}
	sess.AddWarning("software tier in use")
	sess.AddError("credential mismatch")

	got, ok := store.Get(sess.ID)
	if !ok || got != sess {
		t.Fatal("session must be retrievable by id")
	}

	store.End(sess, SessionFailed)
	if sess.Status != SessionFailed || sess.EndedAt.IsZero() {
		t.Errorf("end must set status and timestamp, got %s", sess.Status)
	}

	// Ending again keeps the original terminal status.
	store.End(sess, SessionCompleted)
	if sess.Status != SessionFailed {
		t.Error("a finished session must not change status")
	}
}

func TestSessionStore_Sweep(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{
		MaxAge:          30 * time.Minute,
		CompletedMaxAge: 5 * time.Minute,
	})

	active := store.Begin("register")
	finished := store.Begin("login")
	store.End(finished, SessionCompleted)
	stale := store.Begin("recover")
	stale.StartedAt = time.Now().UTC().Add(-time.Hour)

	// Immediately: only the hour-old session is past MaxAge.
	if removed := store.Sweep(time.Now().UTC()); removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if _, ok := store.Get(stale.ID); ok {
		t.Error("stale session must be evicted")
	}

	// Ten minutes later the finished session is past CompletedMaxAge while
	// the active one is retained.
	later := time.Now().UTC().Add(10 * time.Minute)
	if removed := store.Sweep(later); removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if _, ok := store.Get(finished.ID); ok {
		t.Error("finished session must be evicted after its retention window")
	}
	if _, ok := store.Get(active.ID); !ok {
		t.Error("active session inside MaxAge must be retained")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{SweepInterval: 10 * time.Millisecond})
	sw := NewSweeper(store, logger.Nop())

	if err := sw.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if h := sw.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("running sweeper must report healthy, got %s", h.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sw.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if h := sw.Health(context.Background()); h.Status != "unhealthy" {
		t.Errorf("stopped sweeper must report unhealthy, got %s", h.Status)
	}
	// Stop is idempotent.
	if err := sw.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
