// Package mailer delivers replies over SMTP to smtp.gmail.com, authenticated
// with SASL OAUTHBEARER using the mailbox's OAuth access token.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/teemow/awayreply/internal/gmail"
	"github.com/teemow/awayreply/internal/instrumentation"
)

// DefaultAddr is Gmail's implicit-TLS submission endpoint.
const DefaultAddr = "smtp.gmail.com:465"

// Client is the part of an SMTP client session used to deliver one message.
// *smtp.Client satisfies it.
type Client interface {
	Auth(a sasl.Client) error
	SendMail(from string, to []string, r io.Reader) error
	Quit() error
	Close() error
}

// DialFunc opens an SMTP session to addr.
type DialFunc func(ctx context.Context, addr string) (Client, error)

// Options configures a Sender.
type Options struct {
	// Addr is host:port of the SMTP server. Defaults to DefaultAddr.
	Addr string

	// From is the mailbox address; it is both the envelope sender and the
	// OAUTHBEARER authorization identity.
	From string

	// Tokens supplies the access token for each session.
	Tokens oauth2.TokenSource

	// Dial overrides how sessions are opened. Defaults to implicit TLS.
	Dial DialFunc

	// Metrics records delivery counts and durations. May be nil.
	Metrics *instrumentation.Metrics
}

// Sender sends messages over SMTP, one session per message.
type Sender struct {
	addr    string
	host    string
	port    int
	from    string
	tokens  oauth2.TokenSource
	dial    DialFunc
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// New validates opts and returns a Sender.
func New(opts Options) (*Sender, error) {
	if opts.From == "" {
		return nil, errors.New("sender address is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("token source is required")
	}

	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP port %q: %w", portStr, err)
	}

	dial := opts.Dial
	if dial == nil {
		dial = dialTLS
	}

	return &Sender{
		addr:    addr,
		host:    host,
		port:    port,
		from:    opts.From,
		tokens:  opts.Tokens,
		dial:    dial,
		metrics: opts.Metrics,
		now:     time.Now,
	}, nil
}

// Send composes msg and delivers it to its recipient.
func (s *Sender) Send(ctx context.Context, msg *gmail.EmailMessage) (err error) {
	start := time.Now()
	ctx, span := instrumentation.StartSpan(ctx, "smtp.send",
		attribute.String(instrumentation.SpanAttrTransport, instrumentation.TransportSMTP))
	defer func() {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		s.metrics.RecordSend(context.WithoutCancel(ctx), instrumentation.TransportSMTP, status, time.Since(start))
		instrumentation.FinishSpan(span, err)
	}()

	return s.send(ctx, msg)
}

func (s *Sender) send(ctx context.Context, msg *gmail.EmailMessage) error {
	rcpt, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}

	out := *msg
	out.From = s.from
	raw, err := gmail.Compose(&out, s.now())
	if err != nil {
		return err
	}

	tok, err := s.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	c, err := s.dial(ctx, s.addr)
	if err != nil {
		return fmt.Errorf("SMTP dial %s failed: %w", s.addr, err)
	}
	defer c.Close()

	auth := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: s.from,
		Token:    tok.AccessToken,
		Host:     s.host,
		Port:     s.port,
	})
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth failed: %w", err)
	}

	if err := c.SendMail(s.from, []string{rcpt.Address}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("SMTP send failed: %w", err)
	}

	if err := c.Quit(); err != nil {
		return fmt.Errorf("SMTP quit failed: %w", err)
	}
	return nil
}

// dialTLS opens an implicit-TLS session. The context deadline, if any,
// bounds the whole session.
func dialTLS(ctx context.Context, addr string) (Client, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	d := &tls.Dialer{Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	return smtp.NewClient(conn), nil
}
