package schedule

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store owns the schedule file and its quarantine side file. The schedule is
// never held in memory between passes; each pass reads it anew and replaces
// it atomically.
type Store struct {
	schedulePath   string
	quarantinePath string
}

func NewStore(schedulePath, quarantinePath string) *Store {
	return &Store{schedulePath: schedulePath, quarantinePath: quarantinePath}
}

// Load returns the raw entry lines in file order, blank lines skipped. A
// missing schedule file simply yields no entries.
func (s *Store) Load() ([]string, error) {
	f, err := os.Open(s.schedulePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open schedule: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	return lines, nil
}

// ReadRaw returns the schedule file verbatim for editing surfaces.
func (s *Store) ReadRaw() (string, error) {
	b, err := os.ReadFile(s.schedulePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read schedule: %w", err)
	}
	return string(b), nil
}

// Replace swaps the whole schedule for the given text, using the same
// write-then-rename discipline as a rewrite pass.
func (s *Store) Replace(content string) error {
	rw, err := s.BeginRewrite()
	if err != nil {
		return err
	}
	defer rw.Discard()
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := rw.WriteLine(strings.TrimRight(line, "\r")); err != nil {
			return err
		}
	}
	return rw.Commit()
}

// Rewrite is a scoped writable replacement for the schedule file. Nothing
// touches the live schedule until Commit renames the finished temporary over
// it, so a crash mid-pass leaves the original intact.
type Rewrite struct {
	f       *os.File
	w       *bufio.Writer
	tmpPath string
	dest    string
	done    bool
}

// BeginRewrite opens the temporary replacement file next to the schedule.
func (s *Store) BeginRewrite() (*Rewrite, error) {
	if err := os.MkdirAll(filepath.Dir(s.schedulePath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir schedule dir: %w", err)
	}
	tmp := s.schedulePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create schedule rewrite: %w", err)
	}
	return &Rewrite{f: f, w: bufio.NewWriter(f), tmpPath: tmp, dest: s.schedulePath}, nil
}

func (r *Rewrite) WriteLine(line string) error {
	if _, err := r.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write schedule rewrite: %w", err)
	}
	return nil
}

// Commit flushes, closes and renames the replacement over the schedule.
func (r *Rewrite) Commit() error {
	if r.done {
		return nil
	}
	r.done = true
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		return fmt.Errorf("flush schedule rewrite: %w", err)
	}
	if err := r.f.Sync(); err != nil {
		_ = r.f.Close()
		return fmt.Errorf("sync schedule rewrite: %w", err)
	}
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close schedule rewrite: %w", err)
	}
	if err := os.Rename(r.tmpPath, r.dest); err != nil {
		return fmt.Errorf("replace schedule: %w", err)
	}
	return nil
}

// Discard drops an uncommitted rewrite and leaves the schedule untouched.
// Calling it after Commit is a no-op, so it is safe to defer.
func (r *Rewrite) Discard() {
	if r.done {
		return
	}
	r.done = true
	_ = r.f.Close()
	_ = os.Remove(r.tmpPath)
}

// Quarantine appends the raw line verbatim to the failure log. The file is
// append-only; it is never truncated or rewritten.
func (s *Store) Quarantine(line string) error {
	if err := os.MkdirAll(filepath.Dir(s.quarantinePath), 0o755); err != nil {
		return fmt.Errorf("mkdir quarantine dir: %w", err)
	}
	f, err := os.OpenFile(s.quarantinePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open quarantine: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append quarantine: %w", err)
	}
	return nil
}
