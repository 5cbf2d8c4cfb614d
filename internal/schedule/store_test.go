package schedule

import (
	"os"
	"path/filepath"
	"testing"
)

func storeFixture(t *testing.T) (*Store, string, string) {
	t.Helper()
	dir := t.TempDir()
	schedule := filepath.Join(dir, "schedule.txt")
	quarantine := filepath.Join(dir, "failed.txt")
	return NewStore(schedule, quarantine), schedule, quarantine
}

func TestLoadMissingFile(t *testing.T) {
	st, _, _ := storeFixture(t)
	lines, err := st.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if lines != nil {
		t.Fatalf("expected no lines, got %v", lines)
	}
}

func TestLoadSkipsBlankLines(t *testing.T) {
	st, schedule, _ := storeFixture(t)
	content := "a | b\n\n  \nc | d\n"
	if err := os.WriteFile(schedule, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines, err := st.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "a | b" || lines[1] != "c | d" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestRewriteCommitReplacesFile(t *testing.T) {
	st, schedule, _ := storeFixture(t)
	if err := os.WriteFile(schedule, []byte("old line\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rw, err := st.BeginRewrite()
	if err != nil {
		t.Fatalf("begin rewrite: %v", err)
	}
	if err := rw.WriteLine("new line"); err != nil {
		t.Fatalf("write line: %v", err)
	}
	if err := rw.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b, err := os.ReadFile(schedule)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "new line\n" {
		t.Fatalf("unexpected schedule content: %q", b)
	}
	if _, err := os.Stat(schedule + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file should be gone after commit")
	}
}

func TestRewriteDiscardLeavesOriginal(t *testing.T) {
	st, schedule, _ := storeFixture(t)
	if err := os.WriteFile(schedule, []byte("old line\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rw, err := st.BeginRewrite()
	if err != nil {
		t.Fatalf("begin rewrite: %v", err)
	}
	if err := rw.WriteLine("half written"); err != nil {
		t.Fatalf("write line: %v", err)
	}
	rw.Discard()
	b, err := os.ReadFile(schedule)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "old line\n" {
		t.Fatalf("discard must leave the original untouched, got %q", b)
	}
	if _, err := os.Stat(schedule + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file should be removed on discard")
	}
}

func TestDiscardAfterCommitIsNoop(t *testing.T) {
	st, schedule, _ := storeFixture(t)
	rw, err := st.BeginRewrite()
	if err != nil {
		t.Fatalf("begin rewrite: %v", err)
	}
	if err := rw.WriteLine("kept"); err != nil {
		t.Fatalf("write line: %v", err)
	}
	if err := rw.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	rw.Discard()
	b, err := os.ReadFile(schedule)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "kept\n" {
		t.Fatalf("discard after commit must not remove the schedule, got %q", b)
	}
}

func TestQuarantineAppends(t *testing.T) {
	st, _, quarantine := storeFixture(t)
	if err := st.Quarantine("first bad line"); err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	if err := st.Quarantine("second bad line"); err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	b, err := os.ReadFile(quarantine)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "first bad line\nsecond bad line\n" {
		t.Fatalf("quarantine must append verbatim, got %q", b)
	}
}

func TestReplaceWritesAtomically(t *testing.T) {
	st, schedule, _ := storeFixture(t)
	if err := st.Replace("one | line\n\ntwo | line\n"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	b, err := os.ReadFile(schedule)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "one | line\ntwo | line\n" {
		t.Fatalf("unexpected schedule content: %q", b)
	}
}
