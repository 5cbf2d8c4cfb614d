package mail

import "time"

// Content kinds a schedule entry or compose call may request. Anything else
// is invalid and must never reach the outbound path.
const (
	KindPlaintext = "plaintext"
	KindHTML      = "html"
)

// ValidKind reports whether kind is one of the recognized content kinds.
func ValidKind(kind string) bool {
	return kind == KindPlaintext || kind == KindHTML
}

type Mailbox struct {
	Flags     []string `json:"flags"`
	Delimiter string   `json:"delimiter"`
	Name      string   `json:"name"`
}

// MailSummary is the lightweight list-view projection, derived from headers
// only.
type MailSummary struct {
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
}

type Body struct {
	Plaintext string `json:"plaintext"`
	HTML      string `json:"html"`
}

type AttachmentInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// MailContent is the full projection of a fetched message.
type MailContent struct {
	Date        time.Time        `json:"date"`
	Subject     string           `json:"subject"`
	Sender      string           `json:"sender"`
	Recipient   string           `json:"recipient"`
	Body        Body             `json:"body"`
	Attachments []AttachmentInfo `json:"attachments"`
}

type OutboundAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// OutboundMessage is an assembled MIME tree, built fresh per send and never
// persisted. It carries exactly one body of the declared kind.
type OutboundMessage struct {
	From        string
	To          string
	Subject     string
	Date        time.Time
	MessageID   string
	Kind        string
	Body        string
	Attachments []OutboundAttachment
}
