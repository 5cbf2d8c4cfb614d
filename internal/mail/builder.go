package mail

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"portalmail/internal/config"
)

// Builder assembles outbound messages for one authenticated user. The
// preambles and epilogues are loaded once at construction and wrap every
// body of the matching content kind.
type Builder struct {
	cfg      config.Config
	from     string
	preamble map[string]string
	epilogue map[string]string
}

// NewBuilder loads the plaintext and HTML preamble/epilogue files and
// resolves the sender address from the username and the configured domain.
func NewBuilder(cfg config.Config, username string) (*Builder, error) {
	b := &Builder{
		cfg:      cfg,
		from:     username + "@" + cfg.Domain,
		preamble: make(map[string]string, 2),
		epilogue: make(map[string]string, 2),
	}
	stamp := time.Now().Format("2006-01-02 | 15-04")
	for kind, names := range map[string][2]string{
		KindPlaintext: {"preamble.txt", "epilogue.txt"},
		KindHTML:      {"preamble.html", "epilogue.html"},
	} {
		pre, err := loadExtension(cfg.ExtensionPath(kind, names[0]), stamp)
		if err != nil {
			return nil, err
		}
		epi, err := loadExtension(cfg.ExtensionPath(kind, names[1]), stamp)
		if err != nil {
			return nil, err
		}
		b.preamble[kind] = pre
		b.epilogue[kind] = epi
	}
	return b, nil
}

func loadExtension(path, stamp string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing extension files simply leave the body unwrapped.
			return "", nil
		}
		return "", fmt.Errorf("load mail extension: %w", err)
	}
	return safeSubstitute(string(raw), map[string]string{"TIMESTAMP": stamp}), nil
}

// Build wraps body with the preamble/epilogue of the requested kind and
// attaches the given files. Recipient is a bare portal username; the full
// address is always formed with the configured domain, so no foreign address
// can be produced here.
func (b *Builder) Build(kind, toUser, subject, body string, attachments []string) (*OutboundMessage, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("unknown content kind %q", kind)
	}
	msg := &OutboundMessage{
		From:      b.from,
		To:        toUser + "@" + b.cfg.Domain,
		Subject:   subject,
		Date:      time.Now(),
		MessageID: fmt.Sprintf("<%s@%s>", uuid.NewString(), b.cfg.Domain),
		Kind:      kind,
		Body:      b.preamble[kind] + body + b.epilogue[kind],
	}
	for _, path := range attachments {
		att, err := loadAttachment(path)
		if err != nil {
			return nil, err
		}
		msg.Attachments = append(msg.Attachments, att)
	}
	return msg, nil
}

// BuildPlain builds a plaintext message from a literal body.
func (b *Builder) BuildPlain(toUser, subject, body string, attachments []string) (*OutboundMessage, error) {
	return b.Build(KindPlaintext, toUser, subject, body, attachments)
}

// BuildHTML builds an HTML message from a literal body.
func (b *Builder) BuildHTML(toUser, subject, body string, attachments []string) (*OutboundMessage, error) {
	return b.Build(KindHTML, toUser, subject, body, attachments)
}

// BuildFromTemplate loads a stored template of the given kind and substitutes
// the provided mapping into it. Keys missing from the mapping stay verbatim
// in the body.
func (b *Builder) BuildFromTemplate(kind, toUser, subject, template string, subs map[string]string, attachments []string) (*OutboundMessage, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("unknown content kind %q", kind)
	}
	raw, err := os.ReadFile(b.cfg.TemplatePath(kind, template))
	if err != nil {
		return nil, fmt.Errorf("load mail template %q: %w", template, err)
	}
	return b.Build(kind, toUser, subject, safeSubstitute(string(raw), subs), attachments)
}

func loadAttachment(path string) (OutboundAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return OutboundAttachment{}, fmt.Errorf("load attachment: %w", err)
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return OutboundAttachment{
		Filename:    filepath.Base(path),
		ContentType: ct,
		Data:        data,
	}, nil
}

var substRx = regexp.MustCompile(`\$(\$|\{[A-Za-z_][A-Za-z0-9_]*\}|[A-Za-z_][A-Za-z0-9_]*)`)

// safeSubstitute replaces $KEY and ${KEY} placeholders from subs, leaves
// unknown placeholders untouched and turns $$ into a literal dollar sign.
func safeSubstitute(s string, subs map[string]string) string {
	return substRx.ReplaceAllStringFunc(s, func(tok string) string {
		name := tok[1:]
		if name == "$" {
			return "$"
		}
		if name[0] == '{' {
			name = name[1 : len(name)-1]
		}
		if v, ok := subs[name]; ok {
			return v
		}
		return tok
	})
}
