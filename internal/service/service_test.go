package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"portalmail/internal/config"
)

func serviceFixture(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		Domain:        "example-school.de",
		DataDir:       dir,
		HistoryDBPath: filepath.Join(dir, "history.db"),
		SentMailbox:   "INBOX/Sent",
		NotifyMode:    "off",
	}
	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func TestScheduleReplaceValidatesLines(t *testing.T) {
	svc := serviceFixture(t)

	good := "Europe/Berlin | 01-01-2030_-_10-00-00 | john.doe | Hello | plaintext/greeting.txt | once\n"
	if err := svc.ScheduleReplace(good); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
	got, err := svc.ScheduleShow()
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if got != good {
		t.Fatalf("schedule content mismatch: %q", got)
	}

	if err := svc.ScheduleReplace("garbage line\n"); err == nil {
		t.Fatalf("malformed schedule must be rejected")
	}
	got, err = svc.ScheduleShow()
	if err != nil {
		t.Fatalf("show after rejected replace: %v", err)
	}
	if got != good {
		t.Fatalf("rejected replace must leave the schedule untouched, got %q", got)
	}
}

func TestSendRequiresRecipient(t *testing.T) {
	svc := serviceFixture(t)
	err := svc.Send(context.Background(), "plaintext", "", "Hi", "Hello", nil)
	if !errors.Is(err, ErrInvalidSend) {
		t.Fatalf("expected ErrInvalidSend, got %v", err)
	}
}

func TestSendWithoutUsername(t *testing.T) {
	svc := serviceFixture(t)
	err := svc.Send(context.Background(), "plaintext", "john.doe", "Hi", "Hello", nil)
	if !errors.Is(err, ErrNoUsername) {
		t.Fatalf("expected ErrNoUsername, got %v", err)
	}
}

func TestHistoryEmptyOnFreshStore(t *testing.T) {
	svc := serviceFixture(t)
	rows, err := svc.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}
