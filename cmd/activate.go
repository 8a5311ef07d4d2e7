package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/api/option"

	"github.com/teemow/awayreply/internal/gmail"
	"github.com/teemow/awayreply/internal/google"
	"github.com/teemow/awayreply/internal/instrumentation"
	"github.com/teemow/awayreply/internal/logging"
	"github.com/teemow/awayreply/internal/mailer"
	"github.com/teemow/awayreply/internal/responder"
)

// activator turns a fresh credential into a running autoresponder: it
// resolves the mailbox address and label, builds the sender and starts the
// scheduler.
type activator struct {
	cfg     ServeConfig
	creds   *google.Credentials
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	// Test hooks.
	apiOpts []option.ClientOption
	dial    mailer.DialFunc

	mu        sync.Mutex
	scheduler *responder.Scheduler
}

func newActivator(cfg ServeConfig, creds *google.Credentials, metrics *instrumentation.Metrics, logger *slog.Logger) *activator {
	return &activator{
		cfg:     cfg,
		creds:   creds,
		metrics: metrics,
		logger:  logger,
	}
}

// activate implements server.ActivateFunc. ctx is the server-lifetime context
// and stops the scheduler when canceled.
func (a *activator) activate(ctx context.Context) error {
	logger := logging.WithOperation(a.logger, "activate")

	client, err := gmail.NewClient(ctx, a.creds.HTTPClient(), gmail.ClientOptions{
		QuotaUnitsPerSecond: a.cfg.QuotaUnitsPerSecond,
		Metrics:             a.metrics,
	}, a.apiOpts...)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()

	profile, err := client.Profile(callCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve mailbox address: %w", err)
	}

	labelID, err := client.EnsureLabel(callCtx, a.cfg.Label)
	if err != nil {
		return fmt.Errorf("failed to resolve label %q: %w", a.cfg.Label, err)
	}

	sender, err := a.newSender(client, profile.EmailAddress)
	if err != nil {
		return err
	}

	svc := responder.NewService(client, sender, a.cfg.responderConfig(labelID), a.logger, a.metrics)
	scheduler := responder.NewScheduler(a.cfg.interval(), func(ctx context.Context) {
		svc.RunCycle(ctx)
	}, a.logger)
	scheduler.Start(ctx)

	a.mu.Lock()
	a.scheduler = scheduler
	a.mu.Unlock()

	logger.Info("autoresponder active",
		logging.UserHash(profile.EmailAddress),
		slog.String("label_id", labelID),
		slog.String("transport", a.cfg.Transport))
	return nil
}

func (a *activator) newSender(client *gmail.Client, from string) (responder.Sender, error) {
	switch a.cfg.Transport {
	case google.TransportSMTP:
		s, err := mailer.New(mailer.Options{
			Addr:    a.cfg.SMTPAddr,
			From:    from,
			Tokens:  a.creds,
			Dial:    a.dial,
			Metrics: a.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SMTP sender: %w", err)
		}
		return s, nil
	default:
		return gmail.NewAPISender(client, from), nil
	}
}

// done returns a channel closed when the scheduler has stopped, or nil if
// polling never started.
func (a *activator) done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scheduler == nil {
		return nil
	}
	return a.scheduler.Done()
}
