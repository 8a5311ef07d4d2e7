package responder

import (
	"strings"

	"github.com/teemow/awayreply/internal/gmail"
)

// Decision is the verdict for one fetched message.
type Decision string

const (
	// DecisionReply means the auto-reply should be sent.
	DecisionReply Decision = "reply"

	// DecisionAlreadyReplied means the message is itself a reply.
	DecisionAlreadyReplied Decision = "already_replied"

	// DecisionAlreadyLabeled means the thread was handled by an earlier cycle.
	DecisionAlreadyLabeled Decision = "already_labeled"

	// DecisionNoSender means there is nobody to reply to.
	DecisionNoSender Decision = "no_sender"
)

// Decide reports whether msg should get an auto-reply.
//
// A message carrying an In-Reply-To header is treated as already replied to.
// With skipLabeled, a message that already has labelID was handled in an
// earlier cycle.
func Decide(msg *gmail.Message, labelID string, skipLabeled bool) Decision {
	if msg.HasHeader("In-Reply-To") {
		return DecisionAlreadyReplied
	}
	if skipLabeled && labelID != "" && msg.HasLabel(labelID) {
		return DecisionAlreadyLabeled
	}
	if strings.TrimSpace(msg.Header("From")) == "" {
		return DecisionNoSender
	}
	return DecisionReply
}
