package mail

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gomail "github.com/emersion/go-message/mail"
)

const maxBodyBytes = 1 << 20 // 1 MiB per body part

// DecodeContent decomposes a raw RFC 822 message into header fields and
// separated plaintext/HTML bodies plus attachment metadata. Multiple inline
// parts of the same type concatenate; attachment parts are excluded from the
// body accumulators.
func DecodeContent(raw []byte) (MailContent, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return MailContent{}, fmt.Errorf("read message: %w", err)
	}

	var content MailContent
	if date, err := mr.Header.Date(); err == nil {
		content.Date = date
	}
	if subject, err := mr.Header.Subject(); err == nil {
		content.Subject = subject
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		content.Sender = from[0].String()
	}
	if to, err := mr.Header.AddressList("To"); err == nil && len(to) > 0 {
		content.Recipient = to[0].String()
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			ct, params, _ := h.ContentType()
			switch {
			case strings.HasPrefix(ct, "text/plain") || ct == "":
				body, _ := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
				content.Body.Plaintext += string(body)
			case strings.HasPrefix(ct, "text/html"):
				body, _ := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
				content.Body.HTML += string(body)
			default:
				// A lone non-text part without attachment disposition is
				// still an attachment as far as the caller is concerned.
				content.Attachments = append(content.Attachments, AttachmentInfo{
					Filename:    params["name"],
					ContentType: ct,
				})
			}
		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			if ct == "" {
				ct = "application/octet-stream"
			}
			content.Attachments = append(content.Attachments, AttachmentInfo{
				Filename:    filename,
				ContentType: ct,
			})
		}
	}

	return content, nil
}

// SaveAttachments writes every attachment-disposition part of raw into dir
// and returns how many files were written.
func SaveAttachments(raw []byte, dir string) (int, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("read message: %w", err)
	}
	count := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		h, ok := part.Header.(*gomail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, _ := h.Filename()
		if filename == "" {
			filename = fmt.Sprintf("attachment-%d", count+1)
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			return count, fmt.Errorf("read attachment %q: %w", filename, err)
		}
		// filepath.Base keeps a hostile filename from escaping dir.
		target := filepath.Join(dir, filepath.Base(filename))
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return count, fmt.Errorf("write attachment %q: %w", filename, err)
		}
		count++
	}
	return count, nil
}
