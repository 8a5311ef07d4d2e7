package gmail

import (
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// MessageRef identifies a message returned by a list call.
type MessageRef struct {
	ID       string
	ThreadID string
}

// Header is a single message header as returned by the API.
type Header struct {
	Name  string
	Value string
}

// Message is a message fetched with format=full. Only the parts the
// responder inspects are kept.
type Message struct {
	ID       string
	ThreadID string
	LabelIDs []string
	Headers  []Header
	Snippet  string
}

// Header returns the value of the first header with the given name.
// Names are compared case-insensitively.
func (m *Message) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HasHeader reports whether a header with the given name is present,
// regardless of its value.
func (m *Message) HasHeader(name string) bool {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}

// HasLabel reports whether the message carries the label ID.
func (m *Message) HasLabel(labelID string) bool {
	for _, l := range m.LabelIDs {
		if l == labelID {
			return true
		}
	}
	return false
}

// Profile is the authenticated mailbox profile.
type Profile struct {
	EmailAddress  string
	MessagesTotal int64
	ThreadsTotal  int64
}

// EmailMessage is an outgoing plain-text message.
type EmailMessage struct {
	From    string
	To      string
	Subject string
	Body    string

	// InReplyTo and References thread the message under the original.
	InReplyTo  string
	References []string

	// ThreadID places the message in an existing thread (API transport only).
	ThreadID string
}

// NewReply builds the auto-reply for orig, addressed to its From header.
func NewReply(orig *Message, subject, body string) *EmailMessage {
	msg := &EmailMessage{
		To:       orig.Header("From"),
		Subject:  subject,
		Body:     body,
		ThreadID: orig.ThreadID,
	}

	if id := orig.Header("Message-ID"); id != "" {
		msg.InReplyTo = id
		msg.References = append(strings.Fields(orig.Header("References")), id)
	}

	return msg
}

func fromAPIMessage(m *gmail.Message) *Message {
	msg := &Message{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		LabelIDs: m.LabelIds,
		Snippet:  m.Snippet,
	}
	if m.Payload != nil {
		msg.Headers = make([]Header, 0, len(m.Payload.Headers))
		for _, h := range m.Payload.Headers {
			msg.Headers = append(msg.Headers, Header{Name: h.Name, Value: h.Value})
		}
	}
	return msg
}
