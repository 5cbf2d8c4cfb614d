package mail

import (
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"

	"portalmail/internal/config"
)

// sessionFixture backs a Session with an in-process IMAP server holding the
// memory backend's stock account (user "username", one message in INBOX).
func sessionFixture(t *testing.T) *Session {
	t.Helper()
	srv := server.New(memory.New())
	srv.AllowInsecureAuth = true
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	cli, err := imapclient.Dial(ln.Addr().String())
	if err != nil {
		t.Fatalf("dial imap: %v", err)
	}
	if err := cli.Login("username", "password"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return &Session{
		cfg:      config.Config{Domain: "example-school.de", SentMailbox: "INBOX"},
		username: "username",
		imap:     cli,
	}
}

func fetchFlags(t *testing.T, s *Session, mailbox string, id uint32) []string {
	t.Helper()
	if err := s.ensureSelected(mailbox, true); err != nil {
		t.Fatalf("select for flag fetch: %v", err)
	}
	seq := new(imap.SeqSet)
	seq.AddNum(id)
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.imap.Fetch(seq, []imap.FetchItem{imap.FetchFlags}, messages)
	}()
	msg := <-messages
	if err := <-done; err != nil {
		t.Fatalf("fetch flags: %v", err)
	}
	if msg == nil {
		t.Fatalf("no message %d in %q", id, mailbox)
	}
	return msg.Flags
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func TestSetFlagTogglesSeen(t *testing.T) {
	s := sessionFixture(t)

	// The stock message starts out seen; clear the flag first.
	if err := s.SetFlag("INBOX", 1, "seen", false); err != nil {
		t.Fatalf("remove seen: %v", err)
	}
	if flags := fetchFlags(t, s, "INBOX", 1); hasFlag(flags, imap.SeenFlag) {
		t.Fatalf("seen flag should be removed, got %v", flags)
	}
	if ids := s.UnreadIDs("INBOX", 0); len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("message should show as unread, got %v", ids)
	}

	if err := s.SetFlag("INBOX", 1, "seen", true); err != nil {
		t.Fatalf("add seen: %v", err)
	}
	if flags := fetchFlags(t, s, "INBOX", 1); !hasFlag(flags, imap.SeenFlag) {
		t.Fatalf("seen flag should be set, got %v", flags)
	}
	if ids := s.UnreadIDs("INBOX", 0); len(ids) != 0 {
		t.Fatalf("no message should show as unread, got %v", ids)
	}
}

// smtpStub speaks just enough RFC 5321 to enforce transaction nesting: a
// second MAIL before DATA or RSET answers 503, and any RCPT naming
// offline.user answers 550.
func smtpStub(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tc := textproto.NewConn(conn)
		_ = tc.PrintfLine("220 stub ready")
		inTransaction := false
		for {
			line, err := tc.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch verb {
			case "EHLO", "HELO":
				_ = tc.PrintfLine("250 stub")
			case "MAIL":
				if inTransaction {
					_ = tc.PrintfLine("503 nested MAIL command")
				} else {
					inTransaction = true
					_ = tc.PrintfLine("250 ok")
				}
			case "RCPT":
				if strings.Contains(line, "offline.user") {
					_ = tc.PrintfLine("550 mailbox unavailable")
				} else {
					_ = tc.PrintfLine("250 ok")
				}
			case "DATA":
				_ = tc.PrintfLine("354 go ahead")
				_, _ = io.Copy(io.Discard, tc.DotReader())
				inTransaction = false
				_ = tc.PrintfLine("250 queued")
			case "RSET":
				inTransaction = false
				_ = tc.PrintfLine("250 ok")
			case "QUIT":
				_ = tc.PrintfLine("221 bye")
				return
			default:
				_ = tc.PrintfLine("250 ok")
			}
		}
	}()
	return ln.Addr().String()
}

func TestSendAfterRecipientFailure(t *testing.T) {
	s := sessionFixture(t)
	conn, err := net.Dial("tcp", smtpStub(t))
	if err != nil {
		t.Fatalf("dial smtp stub: %v", err)
	}
	sc, err := smtp.NewClient(conn, "stub")
	if err != nil {
		t.Fatalf("smtp handshake: %v", err)
	}
	s.smtp = sc

	bad := &OutboundMessage{
		From:    "jane.doe@example-school.de",
		To:      "offline.user@example-school.de",
		Subject: "First",
		Date:    time.Now(),
		Kind:    KindPlaintext,
		Body:    "hello",
	}
	if err := s.Send(bad); err == nil {
		t.Fatalf("expected rcpt rejection")
	}

	good := &OutboundMessage{
		From:    "jane.doe@example-school.de",
		To:      "john.doe@example-school.de",
		Subject: "Second",
		Date:    time.Now(),
		Kind:    KindPlaintext,
		Body:    "hello again",
	}
	if err := s.Send(good); err != nil {
		t.Fatalf("send after failed recipient must succeed, got: %v", err)
	}
}
