package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS dispatches (
	id TEXT PRIMARY KEY,
	sent_at TIMESTAMP NOT NULL,
	recipient TEXT NOT NULL,
	subject TEXT NOT NULL,
	template TEXT NOT NULL,
	recurrence TEXT NOT NULL,
	outcome TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dispatches_sent_at ON dispatches(sent_at);
`

// Dispatch is one recorded outcome of a schedule pass.
type Dispatch struct {
	ID         string    `json:"id"`
	SentAt     time.Time `json:"sent_at"`
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject"`
	Template   string    `json:"template"`
	Recurrence string    `json:"recurrence"`
	Outcome    string    `json:"outcome"`
}

type Store struct {
	db *sql.DB
}

// Open creates or opens the dispatch history database at path and
// applies the schema. Re-applying is safe on an existing database.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil && !isDuplicateErr(err) {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func isDuplicateErr(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func (s *Store) Close() error { return s.db.Close() }

// RecordDispatch satisfies the dispatcher's Recorder interface.
func (s *Store) RecordDispatch(recipient, subject, template, recurrence, outcome string) error {
	_, err := s.db.Exec(
		`INSERT INTO dispatches(id,sent_at,recipient,subject,template,recurrence,outcome) VALUES(?,?,?,?,?,?,?)`,
		uuid.NewString(), time.Now().UTC(), recipient, subject, template, recurrence, outcome,
	)
	return err
}

// List returns the most recent dispatches, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Dispatch, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,sent_at,recipient,subject,template,recurrence,outcome FROM dispatches ORDER BY sent_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Dispatch
	for rows.Next() {
		var d Dispatch
		if err := rows.Scan(&d.ID, &d.SentAt, &d.Recipient, &d.Subject, &d.Template, &d.Recurrence, &d.Outcome); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
