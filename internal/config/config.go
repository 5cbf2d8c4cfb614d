package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every setting the components need. It is built once at
// startup and handed to constructors; nothing reads the environment after
// Load returns.
type Config struct {
	Domain string

	IMAPPort           int
	IMAPStartTLS       bool
	SMTPPort           int
	SMTPStartTLS       bool
	InsecureSkipVerify bool
	DialTimeout        time.Duration

	SentMailbox string

	DataDir       string
	HistoryDBPath string

	Username string

	ListenAddr               string
	CORSAllowedOrigins       []string
	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int

	NotifyMode    string
	NotifyCommand string
	NotifyIconDir string
}

func Load() (Config, error) {
	// Settings may live in a local .env file; a missing file is fine.
	_ = godotenv.Load()

	cfg := Config{
		Domain:                   env("PORTAL_DOMAIN", ""),
		IMAPPort:                 envInt("IMAP_PORT", 143),
		IMAPStartTLS:             envBool("IMAP_STARTTLS", true),
		SMTPPort:                 envInt("SMTP_PORT", 587),
		SMTPStartTLS:             envBool("SMTP_STARTTLS", true),
		InsecureSkipVerify:       envBool("MAIL_INSECURE_SKIP_VERIFY", false),
		DialTimeout:              time.Duration(envInt("MAIL_DIAL_TIMEOUT_SEC", 10)) * time.Second,
		SentMailbox:              env("SENT_MAILBOX", "INBOX/Sent"),
		DataDir:                  env("DATA_DIR", "./data"),
		HistoryDBPath:            env("HISTORY_DB_PATH", "./data/history.db"),
		Username:                 env("PORTAL_USERNAME", ""),
		ListenAddr:               env("LISTEN_ADDR", "127.0.0.1:8422"),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 10),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 60),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
		NotifyMode:               strings.ToLower(env("NOTIFY_MODE", "log")),
		NotifyCommand:            env("NOTIFY_COMMAND", "notify-send"),
		NotifyIconDir:            env("NOTIFY_ICON_DIR", "./assets/icon"),
	}

	if strings.TrimSpace(cfg.Domain) == "" {
		return Config{}, fmt.Errorf("PORTAL_DOMAIN is required")
	}
	if cfg.IMAPPort <= 0 || cfg.SMTPPort <= 0 {
		return Config{}, fmt.Errorf("invalid mail host port")
	}
	switch cfg.NotifyMode {
	case "log", "command", "off":
	default:
		return Config{}, fmt.Errorf("NOTIFY_MODE must be one of: log, command, off")
	}
	// The HTTP API carries no authentication of its own, so it may only
	// bind to loopback addresses.
	if !isLocalListen(cfg.ListenAddr) {
		return Config{}, fmt.Errorf("LISTEN_ADDR must be a loopback address")
	}
	return cfg, nil
}

// SchedulePath is the active schedule file edited by the user.
func (c Config) SchedulePath() string {
	return filepath.Join(c.DataDir, "mail", "schedule", "schedule.txt")
}

// QuarantinePath collects schedule lines that failed validation or sending.
func (c Config) QuarantinePath() string {
	return filepath.Join(c.DataDir, "mail", "schedule", "failed.txt")
}

// TemplatePath locates a mail body template of the given content kind.
func (c Config) TemplatePath(kind, name string) string {
	return filepath.Join(c.DataDir, "mail", "template", kind, name)
}

// ExtensionPath locates a preamble or epilogue file for a content kind.
func (c Config) ExtensionPath(kind, name string) string {
	return filepath.Join(c.DataDir, "mail", "extension", kind, name)
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLocalListen(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	return strings.Contains(a, "127.0.0.1") || strings.Contains(a, "localhost") || strings.Contains(a, "[::1]")
}
