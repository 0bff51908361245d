package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeSender struct {
	name  string
	err   error
	calls []string
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	f.calls = append(f.calls, title)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierEventFilter(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventTradeExecuted}, testLogger())
	ctx := context.Background()

	if err := n.Notify(ctx, EventTradeExecuted, "executed", "ok"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(ctx, EventTradeFailed, "failed", "nope"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(sender.calls) != 1 || sender.calls[0] != "executed" {
		t.Fatalf("calls = %v, want [executed]", sender.calls)
	}
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	if err := n.Notify(context.Background(), EventHalt, "halt", "stop"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(sender.calls))
	}
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventTradeExecuted}, testLogger())

	// A rollback failure must reach the operator even when the configured
	// event list does not include it.
	if err := n.NotifyAll(context.Background(), EventRollbackFailed, "compensation failed", "unmatched"); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(sender.calls))
	}
}

func TestNotifierContinuesPastFailingSender(t *testing.T) {
	broken := &fakeSender{name: "broken", err: errors.New("boom")}
	healthy := &fakeSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testLogger())

	err := n.NotifyAll(context.Background(), EventHalt, "title", "message")
	if err == nil {
		t.Fatal("error from failing sender was swallowed")
	}
	if len(healthy.calls) != 1 {
		t.Fatal("healthy sender was skipped after a failure")
	}
}

func TestNotifierNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	if err := n.NotifyAll(context.Background(), EventHalt, "title", "message"); err != nil {
		t.Fatalf("NotifyAll with no senders: %v", err)
	}
}
