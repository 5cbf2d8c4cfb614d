package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"portalmail/internal/auth"
	"portalmail/internal/config"
	"portalmail/internal/history"
	"portalmail/internal/mail"
	"portalmail/internal/notify"
	"portalmail/internal/schedule"
)

var (
	ErrNoUsername  = errors.New("PORTAL_USERNAME is not set")
	ErrNotFound    = errors.New("not found")
	ErrInvalidSend = errors.New("invalid send request")
)

// MessageSummary is the list view of one mailbox message.
type MessageSummary struct {
	ID      uint32 `json:"id"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
}

// Service owns the long-lived resources of one portal account: the
// schedule file, the dispatch history database and a lazily opened
// mailbox session. The mailbox session is a single IMAP connection
// with one selected-mailbox state, so every method that touches it
// holds mu for its whole duration.
type Service struct {
	cfg      config.Config
	notifier notify.Notifier
	hist     *history.Store
	sched    *schedule.Store

	mu      sync.Mutex
	session *mail.Session
	builder *mail.Builder
}

func New(cfg config.Config) (*Service, error) {
	hist, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &Service{
		cfg:      cfg,
		notifier: notify.New(cfg),
		hist:     hist,
		sched:    schedule.NewStore(cfg.SchedulePath(), cfg.QuarantinePath()),
	}, nil
}

// Close logs out of the mailbox session if one was opened and closes
// the history database.
func (s *Service) Close() {
	s.mu.Lock()
	if s.session != nil {
		s.session.Shutdown()
		s.session = nil
	}
	s.mu.Unlock()
	_ = s.hist.Close()
}

// connect opens the mailbox session on first use. Callers hold mu.
func (s *Service) connect() (*mail.Session, error) {
	if s.session != nil {
		return s.session, nil
	}
	username := strings.TrimSpace(s.cfg.Username)
	if username == "" {
		return nil, ErrNoUsername
	}
	password, err := auth.Password(username)
	if err != nil {
		return nil, err
	}
	sess, err := mail.Dial(s.cfg, username, password)
	if err != nil {
		return nil, err
	}
	s.session = sess
	return sess, nil
}

func (s *Service) ensureBuilder() (*mail.Builder, error) {
	if s.builder != nil {
		return s.builder, nil
	}
	username := strings.TrimSpace(s.cfg.Username)
	if username == "" {
		return nil, ErrNoUsername
	}
	b, err := mail.NewBuilder(s.cfg, username)
	if err != nil {
		return nil, err
	}
	s.builder = b
	return b, nil
}

func (s *Service) Mailboxes(ctx context.Context) ([]mail.Mailbox, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.connect()
	if err != nil {
		return nil, err
	}
	return sess.Mailboxes(), nil
}

// Unread lists unread messages in the mailbox, newest first.
func (s *Service) Unread(ctx context.Context, mailbox string, limit int) ([]MessageSummary, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.connect()
	if err != nil {
		return nil, err
	}
	return summarize(sess, mailbox, sess.UnreadIDs(mailbox, limit)), nil
}

// Messages lists all messages in the mailbox, newest first.
func (s *Service) Messages(ctx context.Context, mailbox string, limit int) ([]MessageSummary, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.connect()
	if err != nil {
		return nil, err
	}
	return summarize(sess, mailbox, sess.AllIDs(mailbox, limit)), nil
}

func summarize(sess *mail.Session, mailbox string, ids []uint32) []MessageSummary {
	out := make([]MessageSummary, 0, len(ids))
	for _, id := range ids {
		sum, ok := sess.FetchSummary(mailbox, id)
		if !ok {
			continue
		}
		out = append(out, MessageSummary{ID: id, Subject: sum.Subject, Sender: sum.Sender})
	}
	return out
}

// Read fetches the full content of one message.
func (s *Service) Read(ctx context.Context, mailbox string, id uint32) (mail.MailContent, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.connect()
	if err != nil {
		return mail.MailContent{}, err
	}
	content, ok := sess.FetchFull(mailbox, id)
	if !ok {
		return mail.MailContent{}, ErrNotFound
	}
	return content, nil
}

// SaveAttachments writes all attachments of one message into dir and
// returns how many files were written.
func (s *Service) SaveAttachments(ctx context.Context, mailbox string, id uint32, dir string) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.connect()
	if err != nil {
		return 0, err
	}
	return sess.DownloadAttachments(mailbox, id, dir)
}

// MarkRead toggles the seen flag on one message.
func (s *Service) MarkRead(ctx context.Context, mailbox string, id uint32, read bool) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.connect()
	if err != nil {
		return err
	}
	return sess.SetFlag(mailbox, id, "seen", read)
}

// Send assembles and transmits one message to a portal user.
func (s *Service) Send(ctx context.Context, kind, toUser, subject, body string, attachments []string) error {
	_ = ctx
	if strings.TrimSpace(toUser) == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidSend)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.ensureBuilder()
	if err != nil {
		return err
	}
	msg, err := b.Build(kind, toUser, subject, body, attachments)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSend, err)
	}
	sess, err := s.connect()
	if err != nil {
		return err
	}
	return sess.Send(msg)
}

// Notify forwards a notification through the configured backend.
func (s *Service) Notify(title, message, icon string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(title, message, s.iconPath(icon))
}

// SendTemplate assembles a message from a stored body template and
// transmits it.
func (s *Service) SendTemplate(ctx context.Context, kind, toUser, subject, template string, subs map[string]string, attachments []string) error {
	_ = ctx
	if strings.TrimSpace(toUser) == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidSend)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.ensureBuilder()
	if err != nil {
		return err
	}
	msg, err := b.BuildFromTemplate(kind, toUser, subject, template, subs, attachments)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSend, err)
	}
	sess, err := s.connect()
	if err != nil {
		return err
	}
	return sess.Send(msg)
}

// ScheduleShow returns the raw schedule file content.
func (s *Service) ScheduleShow() (string, error) {
	return s.sched.ReadRaw()
}

// ScheduleReplace overwrites the schedule file. Every line must parse
// so that editing mistakes surface immediately instead of landing in
// quarantine on the next pass.
func (s *Service) ScheduleReplace(content string) error {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, err := schedule.ParseEntry(line); err != nil {
			return fmt.Errorf("line %q: %w", line, err)
		}
	}
	if err := s.sched.Replace(content); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.Notify("Schedule changed", "The mail schedule has been updated.", s.iconPath("schedule.ico"))
	}
	return nil
}

// RunSchedule performs one dispatch pass over the schedule file.
func (s *Service) RunSchedule(ctx context.Context) (schedule.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.ensureBuilder()
	if err != nil {
		return schedule.Report{}, err
	}
	sess, err := s.connect()
	if err != nil {
		return schedule.Report{}, err
	}
	d := schedule.NewDispatcher(s.sched, b, sess, s.notifier, s.hist, s.cfg.NotifyIconDir)
	return d.Run(ctx)
}

// History returns the most recent recorded dispatch outcomes.
func (s *Service) History(ctx context.Context, limit int) ([]history.Dispatch, error) {
	return s.hist.List(ctx, limit)
}

func (s *Service) iconPath(name string) string {
	return filepath.Join(s.cfg.NotifyIconDir, name)
}
