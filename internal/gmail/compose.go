package gmail

import (
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Compose renders msg as an RFC 5322 plain-text message.
//
// Replies are marked Auto-Submitted: auto-replied (RFC 3834) so that other
// responders do not answer them.
func Compose(msg *EmailMessage, now time.Time) ([]byte, error) {
	if sanitizeHeader(msg.To) == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	to, err := formatAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	subject := sanitizeHeader(msg.Subject)
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return nil, fmt.Errorf("body is required")
	}

	var from, fromAddr string
	if sanitizeHeader(msg.From) != "" {
		a, err := mail.ParseAddress(sanitizeHeader(msg.From))
		if err != nil {
			return nil, fmt.Errorf("invalid sender: %w", err)
		}
		from, fromAddr = renderAddress(a), a.Address
	}

	var b strings.Builder

	if from != "" {
		writeHeader(&b, "From", from)
	}
	writeHeader(&b, "To", to)
	writeHeader(&b, "Subject", encodeRFC2047(subject))
	writeHeader(&b, "Date", now.Format(time.RFC1123Z))
	writeHeader(&b, "Message-ID", newMessageID(fromAddr))

	if inReplyTo := normalizeMessageID(msg.InReplyTo); inReplyTo != "" {
		writeHeader(&b, "In-Reply-To", inReplyTo)
	}
	if refs := normalizeReferences(msg.References); refs != "" {
		writeHeader(&b, "References", refs)
	}

	writeHeader(&b, "Auto-Submitted", "auto-replied")
	writeHeader(&b, "MIME-Version", "1.0")
	writeHeader(&b, "Content-Type", "text/plain; charset=\"UTF-8\"")
	writeHeader(&b, "Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(normalizeBody(msg.Body))
	b.WriteString("\r\n")

	return []byte(b.String()), nil
}

func writeHeader(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// formatAddress parses a single mailbox and renders it as an ASCII header
// value. Non-ASCII display names are Q-encoded.
func formatAddress(value string) (string, error) {
	a, err := mail.ParseAddress(sanitizeHeader(value))
	if err != nil {
		return "", err
	}
	return renderAddress(a), nil
}

func renderAddress(a *mail.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return a.String()
}

// encodeRFC2047 encodes a string using RFC 2047 MIME encoding for email headers.
// ASCII-only strings are returned unchanged.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

// sanitizeHeader strips line breaks so a header value cannot inject headers.
func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}

// normalizeBody converts any line ending style to CRLF.
func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	body = strings.TrimSpace(body)
	return strings.ReplaceAll(body, "\n", "\r\n")
}

func normalizeMessageID(value string) string {
	value = sanitizeHeader(value)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "<") && strings.HasSuffix(value, ">") {
		return value
	}
	return "<" + strings.Trim(value, "<>") + ">"
}

func normalizeReferences(refs []string) string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if n := normalizeMessageID(r); n != "" {
			out = append(out, n)
		}
	}
	return strings.Join(out, " ")
}

func newMessageID(addr string) string {
	domain := "awayreply.local"
	if at := strings.LastIndex(addr, "@"); at >= 0 && at < len(addr)-1 {
		domain = addr[at+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
