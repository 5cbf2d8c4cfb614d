package mail

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"portalmail/internal/config"
)

// Session holds one authenticated IMAP connection for the inbound side and
// one SMTP connection for the outbound side, plus the current mailbox
// selection. It is not safe for concurrent use; callers serialize access.
type Session struct {
	cfg      config.Config
	username string

	imap *imapclient.Client
	smtp *smtp.Client

	sel struct {
		name     string
		readonly bool
		active   bool
		messages uint32
	}
}

// Dial connects and logs in on both protocols. A rejected login on either
// side wraps ErrAuthFailed; any connection already opened is torn down again.
func Dial(cfg config.Config, username, password string) (*Session, error) {
	s := &Session{cfg: cfg, username: username}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	tlsConfig := &tls.Config{ServerName: cfg.Domain, InsecureSkipVerify: cfg.InsecureSkipVerify}

	imapAddr := net.JoinHostPort(cfg.Domain, strconv.Itoa(cfg.IMAPPort))
	cli, err := imapclient.DialWithDialer(dialer, imapAddr)
	if err != nil {
		return nil, fmt.Errorf("dial imap: %w", err)
	}
	if cfg.IMAPStartTLS {
		if err := cli.StartTLS(tlsConfig); err != nil {
			_ = cli.Logout()
			return nil, fmt.Errorf("imap starttls: %w", err)
		}
	}
	if err := cli.Login(username, password); err != nil {
		_ = cli.Logout()
		return nil, wrapAuthFailed(err)
	}
	s.imap = cli

	smtpAddr := net.JoinHostPort(cfg.Domain, strconv.Itoa(cfg.SMTPPort))
	conn, err := dialer.Dial("tcp", smtpAddr)
	if err != nil {
		_ = cli.Logout()
		return nil, fmt.Errorf("dial smtp: %w", err)
	}
	sc, err := smtp.NewClient(conn, cfg.Domain)
	if err != nil {
		_ = conn.Close()
		_ = cli.Logout()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}
	if cfg.SMTPStartTLS {
		if ok, _ := sc.Extension("STARTTLS"); ok {
			if err := sc.StartTLS(tlsConfig); err != nil {
				_ = sc.Close()
				_ = cli.Logout()
				return nil, fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if ok, _ := sc.Extension("AUTH"); ok {
		auth := smtp.PlainAuth("", username, password, cfg.Domain)
		if err := sc.Auth(auth); err != nil {
			_ = sc.Close()
			_ = cli.Logout()
			return nil, wrapAuthFailed(err)
		}
	}
	s.smtp = sc
	return s, nil
}

// Address is the full mail address of the authenticated user.
func (s *Session) Address() string {
	return s.username + "@" + s.cfg.Domain
}

// ensureSelected switches the current selection only when the requested
// (mailbox, mode) pair differs from the cached one. A prior selection is
// closed first; at most one selection is ever open.
func (s *Session) ensureSelected(mailbox string, readonly bool) error {
	if s.sel.active && s.sel.name == mailbox && s.sel.readonly == readonly {
		return nil
	}
	if s.sel.active {
		s.closeSelection()
	}
	status, err := s.imap.Select(mailbox, readonly)
	if err != nil {
		return fmt.Errorf("select %q: %w", mailbox, err)
	}
	s.sel.name = mailbox
	s.sel.readonly = readonly
	s.sel.active = true
	s.sel.messages = status.Messages
	return nil
}

func (s *Session) closeSelection() {
	if !s.sel.active {
		return
	}
	// UNSELECT never expunges; fall back to CLOSE where the server lacks it.
	if err := s.imap.Unselect(); err != nil {
		_ = s.imap.Close()
	}
	s.sel.active = false
}

// Mailboxes lists every mailbox visible to the session. Protocol failures
// are logged and yield an empty list.
func (s *Session) Mailboxes() []Mailbox {
	s.closeSelection()
	ch := make(chan *imap.MailboxInfo, 32)
	done := make(chan error, 1)
	go func() {
		done <- s.imap.List("", "*", ch)
	}()

	var out []Mailbox
	for info := range ch {
		out = append(out, Mailbox{Flags: info.Attributes, Delimiter: info.Delimiter, Name: info.Name})
	}
	if err := <-done; err != nil {
		log.Printf("mail: list mailboxes: %v", err)
		return nil
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == "INBOX" {
			return true
		}
		if out[j].Name == "INBOX" {
			return false
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// UnreadIDs returns the ids of unseen messages in mailbox, most recent
// first, capped at limit (0 means no cap).
func (s *Session) UnreadIDs(mailbox string, limit int) []uint32 {
	if err := s.ensureSelected(mailbox, true); err != nil {
		log.Printf("mail: unread ids: %v", err)
		return nil
	}
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := s.imap.Search(criteria)
	if err != nil {
		log.Printf("mail: search unseen in %q: %v", mailbox, err)
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return capIDs(ids, limit)
}

// AllIDs returns descending message ids for mailbox, synthesized from the
// message count reported by the selection, capped at limit (0 means no cap).
func (s *Session) AllIDs(mailbox string, limit int) []uint32 {
	if err := s.ensureSelected(mailbox, true); err != nil {
		log.Printf("mail: all ids: %v", err)
		return nil
	}
	return synthesizeIDs(s.sel.messages, limit)
}

// FetchSummary reads only the envelope of one message.
func (s *Session) FetchSummary(mailbox string, id uint32) (MailSummary, bool) {
	if err := s.ensureSelected(mailbox, true); err != nil {
		log.Printf("mail: fetch summary: %v", err)
		return MailSummary{}, false
	}
	seq := new(imap.SeqSet)
	seq.AddNum(id)
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.imap.Fetch(seq, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()
	msg := <-messages
	if err := <-done; err != nil {
		log.Printf("mail: fetch envelope %d in %q: %v", id, mailbox, err)
		return MailSummary{}, false
	}
	if msg == nil || msg.Envelope == nil {
		return MailSummary{}, false
	}
	return MailSummary{Subject: msg.Envelope.Subject, Sender: envelopeFirstAddress(msg.Envelope.From)}, true
}

// FetchFull reads the whole message and decomposes it.
func (s *Session) FetchFull(mailbox string, id uint32) (MailContent, bool) {
	raw, ok := s.fetchRaw(mailbox, id)
	if !ok {
		return MailContent{}, false
	}
	content, err := DecodeContent(raw)
	if err != nil {
		log.Printf("mail: decode message %d in %q: %v", id, mailbox, err)
		return MailContent{}, false
	}
	return content, true
}

// DownloadAttachments stores every attachment of the message into dir.
func (s *Session) DownloadAttachments(mailbox string, id uint32, dir string) (int, error) {
	raw, ok := s.fetchRaw(mailbox, id)
	if !ok {
		return 0, fmt.Errorf("message %d not available in %q", id, mailbox)
	}
	return SaveAttachments(raw, dir)
}

func (s *Session) fetchRaw(mailbox string, id uint32) ([]byte, bool) {
	if err := s.ensureSelected(mailbox, true); err != nil {
		log.Printf("mail: fetch: %v", err)
		return nil, false
	}
	seq := new(imap.SeqSet)
	seq.AddNum(id)
	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.imap.Fetch(seq, []imap.FetchItem{section.FetchItem()}, messages)
	}()
	msg := <-messages
	if err := <-done; err != nil {
		log.Printf("mail: fetch message %d in %q: %v", id, mailbox, err)
		return nil, false
	}
	if msg == nil {
		return nil, false
	}
	body := msg.GetBody(section)
	if body == nil {
		log.Printf("mail: no body returned for message %d in %q", id, mailbox)
		return nil, false
	}
	raw := new(bytes.Buffer)
	if _, err := raw.ReadFrom(body); err != nil {
		log.Printf("mail: read message %d in %q: %v", id, mailbox, err)
		return nil, false
	}
	return raw.Bytes(), true
}

// SetFlag adds or removes one flag on a message. This is the only inbound
// operation that needs a read-write selection.
func (s *Session) SetFlag(mailbox string, id uint32, flag string, on bool) error {
	if err := s.ensureSelected(mailbox, false); err != nil {
		return err
	}
	seq := new(imap.SeqSet)
	seq.AddNum(id)
	op := imap.FlagsOp(imap.AddFlags)
	if !on {
		op = imap.FlagsOp(imap.RemoveFlags)
	}
	item := imap.FormatFlagsOp(op, true)
	return s.imap.Store(seq, item, []interface{}{canonicalFlag(flag)}, nil)
}

// Send transmits the message over SMTP, then appends a copy to the sent
// folder. The append is best-effort: its failure is logged and never
// un-sends the message.
func (s *Session) Send(msg *OutboundMessage) error {
	raw, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("render message: %w", err)
	}
	if err := s.smtp.Mail(msg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	// A failure past MAIL leaves the transaction open on the persistent
	// connection; RSET it so the next send does not hit a nested-MAIL 503.
	for _, rcpt := range msg.Rcpt() {
		if err := s.smtp.Rcpt(rcpt); err != nil {
			_ = s.smtp.Reset()
			return fmt.Errorf("smtp rcpt %q: %w", rcpt, err)
		}
	}
	wc, err := s.smtp.Data()
	if err != nil {
		_ = s.smtp.Reset()
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write(raw); err != nil {
		_ = wc.Close()
		_ = s.smtp.Reset()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		_ = s.smtp.Reset()
		return fmt.Errorf("smtp close: %w", err)
	}

	if err := s.appendToSent(raw); err != nil {
		log.Printf("mail: append to %q: %v", s.cfg.SentMailbox, err)
	}
	return nil
}

func (s *Session) appendToSent(raw []byte) error {
	return s.imap.Append(s.cfg.SentMailbox, []string{imap.SeenFlag}, time.Now(), bytes.NewBuffer(raw))
}

// Shutdown closes any open selection, logs out of IMAP and quits SMTP.
func (s *Session) Shutdown() {
	if s.imap != nil {
		s.closeSelection()
		if err := s.imap.Logout(); err != nil {
			log.Printf("mail: imap logout: %v", err)
		}
		s.imap = nil
	}
	if s.smtp != nil {
		if err := s.smtp.Quit(); err != nil {
			log.Printf("mail: smtp quit: %v", err)
		}
		s.smtp = nil
	}
}

func synthesizeIDs(count uint32, limit int) []uint32 {
	n := int(count)
	if limit > 0 && limit < n {
		n = limit
	}
	ids := make([]uint32, 0, n)
	for id := count; id > count-uint32(n); id-- {
		ids = append(ids, id)
	}
	return ids
}

func capIDs(ids []uint32, limit int) []uint32 {
	if limit > 0 && len(ids) > limit {
		return ids[:limit]
	}
	return ids
}

func envelopeFirstAddress(addrs []*imap.Address) string {
	if len(addrs) == 0 || addrs[0] == nil {
		return ""
	}
	if addrs[0].PersonalName != "" {
		return fmt.Sprintf("%s <%s>", addrs[0].PersonalName, addrs[0].Address())
	}
	return addrs[0].Address()
}

func canonicalFlag(v string) string {
	switch v {
	case "seen", `\seen`, imap.SeenFlag:
		return imap.SeenFlag
	case "answered", `\answered`, imap.AnsweredFlag:
		return imap.AnsweredFlag
	case "flagged", `\flagged`, imap.FlaggedFlag:
		return imap.FlaggedFlag
	case "deleted", `\deleted`, imap.DeletedFlag:
		return imap.DeletedFlag
	case "draft", `\draft`, imap.DraftFlag:
		return imap.DraftFlag
	default:
		return v
	}
}
