package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"portalmail/internal/api"
	"portalmail/internal/auth"
	"portalmail/internal/config"
	"portalmail/internal/mail"
	"portalmail/internal/service"
	"portalmail/internal/version"
)

const usage = `usage: portalmail <command> [flags]

commands:
  login      store the portal password in the system keyring
  logout     remove the stored portal password
  unread     list unread messages
  mails      list messages
  read       show one message, optionally saving attachments
  send       send a mail to a portal user
  schedule   show the schedule or run one dispatch pass
  serve      run the local HTTP API
  version    print version information
`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "version":
		info := version.Current()
		fmt.Printf("portalmail %s (%s)\n", info.Version, info.Commit)
		return
	case "login":
		runLogin(args)
		return
	case "logout":
		runLogout(args)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	svc, err := service.New(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer svc.Close()

	switch cmd {
	case "unread":
		runList(svc, args, true)
	case "mails":
		runList(svc, args, false)
	case "read":
		runRead(svc, args)
	case "send":
		runSend(svc, args)
	case "schedule":
		runSchedule(svc, args)
	case "serve":
		runServe(cfg, svc)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func fatal(err error) {
	switch {
	case errors.Is(err, auth.ErrNoCredentials):
		log.Fatalf("no stored password; run: portalmail login")
	case errors.Is(err, service.ErrNoUsername):
		log.Fatalf("PORTAL_USERNAME is not set; add it to .env")
	case errors.Is(err, mail.ErrAuthFailed):
		log.Fatalf("login rejected; check username and stored password")
	default:
		log.Fatalf("%v", err)
	}
}

func runLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	user := fs.String("user", os.Getenv("PORTAL_USERNAME"), "portal username")
	_ = fs.Parse(args)
	if strings.TrimSpace(*user) == "" {
		log.Fatalf("login: -user or PORTAL_USERNAME is required")
	}
	fmt.Fprintf(os.Stderr, "password for %s: ", *user)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		log.Fatalf("read password: %v", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		log.Fatalf("login: empty password")
	}
	if err := auth.StorePassword(*user, password); err != nil {
		log.Fatalf("store password: %v", err)
	}
	fmt.Printf("stored password for %s\n", *user)
}

func runLogout(args []string) {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	user := fs.String("user", os.Getenv("PORTAL_USERNAME"), "portal username")
	_ = fs.Parse(args)
	if strings.TrimSpace(*user) == "" {
		log.Fatalf("logout: -user or PORTAL_USERNAME is required")
	}
	if err := auth.DeletePassword(*user); err != nil {
		log.Fatalf("delete password: %v", err)
	}
	fmt.Printf("removed stored password for %s\n", *user)
}

func runList(svc *service.Service, args []string, unreadOnly bool) {
	name := "mails"
	if unreadOnly {
		name = "unread"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	mailbox := fs.String("mailbox", "INBOX", "mailbox to list")
	limit := fs.Int("limit", 25, "maximum number of messages")
	_ = fs.Parse(args)

	ctx := context.Background()
	var (
		msgs []service.MessageSummary
		err  error
	)
	if unreadOnly {
		msgs, err = svc.Unread(ctx, *mailbox, *limit)
	} else {
		msgs, err = svc.Messages(ctx, *mailbox, *limit)
	}
	if err != nil {
		fatal(err)
	}
	if len(msgs) == 0 {
		fmt.Printf("no messages in %s\n", *mailbox)
		return
	}
	for _, m := range msgs {
		fmt.Printf("%6d  %-30s  %s\n", m.ID, m.Sender, m.Subject)
	}
	if unreadOnly {
		svc.Notify("Unread mail",
			fmt.Sprintf("You have %d unread mail(s) in %s.", len(msgs), *mailbox), "mail.ico")
	}
}

func runRead(svc *service.Service, args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	mailbox := fs.String("mailbox", "INBOX", "mailbox holding the message")
	id := fs.Uint("id", 0, "message id as shown by unread/mails")
	save := fs.String("save", "", "directory to save attachments into")
	_ = fs.Parse(args)
	if *id == 0 {
		log.Fatalf("read: -id is required")
	}

	ctx := context.Background()
	content, err := svc.Read(ctx, *mailbox, uint32(*id))
	if err != nil {
		fatal(err)
	}

	fmt.Printf("From:    %s\n", content.Sender)
	fmt.Printf("To:      %s\n", content.Recipient)
	fmt.Printf("Date:    %s\n", content.Date.Format("2006-01-02 15:04:05"))
	fmt.Printf("Subject: %s\n", content.Subject)
	for _, a := range content.Attachments {
		fmt.Printf("Attachment: %s (%s)\n", a.Filename, a.ContentType)
	}
	fmt.Println()
	if content.Body.Plaintext != "" {
		fmt.Println(content.Body.Plaintext)
	} else if content.Body.HTML != "" {
		fmt.Println(content.Body.HTML)
	}

	if *save != "" {
		n, err := svc.SaveAttachments(ctx, *mailbox, uint32(*id), *save)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("saved %d attachment(s) to %s\n", n, *save)
	}
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runSend(svc *service.Service, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	to := fs.String("to", "", "recipient portal username, e.g. john.doe")
	kind := fs.String("kind", mail.KindPlaintext, "content kind: plaintext or html")
	subject := fs.String("subject", "", "mail subject")
	body := fs.String("body", "", "mail body text")
	template := fs.String("template", "", "body template file name instead of -body")
	var attach stringList
	fs.Var(&attach, "attach", "attachment file path, repeatable")
	_ = fs.Parse(args)

	// With neither -body nor -template the body comes from stdin.
	if *template == "" && *body == "" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("read body from stdin: %v", err)
		}
		*body = string(raw)
	}

	ctx := context.Background()
	var err error
	if *template != "" {
		err = svc.SendTemplate(ctx, *kind, *to, *subject, *template, nil, attach)
	} else {
		err = svc.Send(ctx, *kind, *to, *subject, *body, attach)
	}
	if err != nil {
		fatal(err)
	}
	fmt.Printf("sent %q to %s\n", *subject, *to)
}

func runSchedule(svc *service.Service, args []string) {
	if len(args) < 1 {
		log.Fatalf("schedule: expected subcommand show or run")
	}
	switch args[0] {
	case "show":
		content, err := svc.ScheduleShow()
		if err != nil {
			fatal(err)
		}
		if strings.TrimSpace(content) == "" {
			fmt.Println("schedule is empty")
			return
		}
		fmt.Print(content)
	case "run":
		report, err := svc.RunSchedule(context.Background())
		if err != nil {
			fatal(err)
		}
		fmt.Println(report.String())
	default:
		log.Fatalf("schedule: unknown subcommand %q", args[0])
	}
}

func runServe(cfg config.Config, svc *service.Service) {
	r := api.NewRouter(cfg, svc)
	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}
	log.Printf("listening on %s", cfg.ListenAddr)
	if err := hsrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server: %v", err)
	}
}
