package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

// Bytes renders the message as an RFC 822 multipart/mixed tree: one
// quoted-printable body part of the declared kind followed by base64
// attachment parts.
func (m *OutboundMessage) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Date: %s\r\n", m.Date.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	if m.MessageID != "" {
		fmt.Fprintf(&buf, "Message-ID: %s\r\n", m.MessageID)
	}
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n", mixed.Boundary())
	fmt.Fprintf(&buf, "\r\n")

	bodyType := "text/plain"
	if m.Kind == KindHTML {
		bodyType = "text/html"
	}
	bodyHeader := make(textproto.MIMEHeader)
	bodyHeader.Set("Content-Type", bodyType+"; charset=utf-8")
	bodyHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	p, err := mixed.CreatePart(bodyHeader)
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(p)
	if _, err := io.WriteString(qp, m.Body); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	for _, a := range m.Attachments {
		h := make(textproto.MIMEHeader)
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", fmt.Sprintf("%s; name=%q", ct, a.Filename))
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
		h.Set("Content-ID", fmt.Sprintf("<%s>", a.Filename))
		h.Set("Content-Transfer-Encoding", "base64")
		w, err := mixed.CreatePart(h)
		if err != nil {
			return nil, err
		}
		enc := base64.NewEncoder(base64.StdEncoding, &lineWrapper{w: w})
		if _, err := enc.Write(a.Data); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// lineWrapper folds base64 output into CRLF-terminated 76-column lines.
type lineWrapper struct {
	w   io.Writer
	col int
}

func (l *lineWrapper) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		room := 76 - l.col
		chunk := p
		if len(chunk) > room {
			chunk = chunk[:room]
		}
		n, err := l.w.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		l.col += n
		p = p[n:]
		if l.col == 76 {
			if _, err := io.WriteString(l.w, "\r\n"); err != nil {
				return written, err
			}
			l.col = 0
		}
	}
	return written, nil
}

// Rcpt lists the envelope recipients for the SMTP transaction.
func (m *OutboundMessage) Rcpt() []string {
	return []string{strings.TrimSpace(m.To)}
}
