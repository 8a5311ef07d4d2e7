package google

import (
	"fmt"

	gmail "google.golang.org/api/gmail/v1"
)

// Send transports. The transport decides which Gmail scope is requested.
const (
	// TransportSMTP sends replies through smtp.gmail.com with SASL OAUTHBEARER.
	TransportSMTP = "smtp"

	// TransportAPI sends replies through the Gmail users.messages.send endpoint.
	TransportAPI = "api"
)

// ScopesFor returns the OAuth scopes needed for the given send transport.
//
// gmail.modify covers listing, reading, labelling and messages.send.
// SMTP OAUTHBEARER is only accepted for the full https://mail.google.com/
// scope, which also includes modify.
func ScopesFor(transport string) ([]string, error) {
	switch transport {
	case TransportAPI, "":
		return []string{gmail.GmailModifyScope}, nil
	case TransportSMTP:
		return []string{gmail.MailGoogleComScope}, nil
	default:
		return nil, fmt.Errorf("unknown send transport %q, must be one of: api, smtp", transport)
	}
}
