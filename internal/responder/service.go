package responder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/awayreply/internal/gmail"
	"github.com/teemow/awayreply/internal/instrumentation"
	"github.com/teemow/awayreply/internal/logging"
)

// Defaults for Config.
const (
	DefaultSubject     = "NOT Available"
	DefaultBody        = "Thank you for your email. I am currently out of office and will not be able to respond to your message. I will get back to you as soon as possible after my return."
	DefaultLabel       = "Vacation Autoresponse"
	DefaultQuery       = "is:inbox"
	DefaultPageSize    = 10
	DefaultCallTimeout = 30 * time.Second
	DefaultConcurrency = 4
)

// Mailbox is the set of Gmail operations a cycle performs.
type Mailbox interface {
	ListMessages(ctx context.Context, query string, maxResults int64) ([]gmail.MessageRef, error)
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
	AddThreadLabels(ctx context.Context, threadID string, labelIDs ...string) error
}

// Sender delivers a reply.
type Sender interface {
	Send(ctx context.Context, msg *gmail.EmailMessage) error
}

// Config controls a Service. Zero values are replaced by the defaults,
// except SkipLabeled which is taken as given.
type Config struct {
	Query    string
	PageSize int64

	// LabelID is the resolved ID of the label applied to every handled thread.
	LabelID string

	Subject string
	Body    string

	// SkipLabeled suppresses replies to messages that already carry LabelID.
	SkipLabeled bool

	// CallTimeout bounds each remote call.
	CallTimeout time.Duration

	// Concurrency is the number of messages processed in parallel.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.Query == "" {
		c.Query = DefaultQuery
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Subject == "" {
		c.Subject = DefaultSubject
	}
	if c.Body == "" {
		c.Body = DefaultBody
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// Message outcomes, as recorded in metrics and CycleStats.
const (
	OutcomeReplied        = "replied"
	OutcomeSendError      = "send_error"
	OutcomeFetchError     = "fetch_error"
	OutcomeAlreadyReplied = string(DecisionAlreadyReplied)
	OutcomeAlreadyLabeled = string(DecisionAlreadyLabeled)
	OutcomeNoSender       = string(DecisionNoSender)
)

// CycleStats summarizes one cycle.
type CycleStats struct {
	Listed      int
	FetchErrors int
	Replied     int
	SendErrors  int
	Skipped     int
	Labeled     int
	LabelErrors int

	// ListErr is set when the list call failed and the cycle ended early.
	ListErr error
}

// Service runs poll-decide-reply-label cycles against one mailbox.
type Service struct {
	mailbox Mailbox
	sender  Sender
	cfg     Config
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewService creates a Service. logger and metrics may be nil.
func NewService(mailbox Mailbox, sender Sender, cfg Config, logger *slog.Logger, metrics *instrumentation.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		mailbox: mailbox,
		sender:  sender,
		cfg:     cfg.withDefaults(),
		logger:  logging.WithComponent(logger, "responder"),
		metrics: metrics,
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

type messageResult struct {
	outcome    string
	labeled    bool
	labelError bool
}

// RunCycle performs one cycle and waits for all per-message work to finish.
// Errors are logged and counted, never returned.
func (s *Service) RunCycle(ctx context.Context) CycleStats {
	start := time.Now()
	ctx, span := instrumentation.StartSpan(ctx, "responder.cycle")
	logger := logging.WithOperation(s.logger, "responder.cycle")

	var stats CycleStats

	listCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	refs, err := s.mailbox.ListMessages(listCtx, s.cfg.Query, s.cfg.PageSize)
	cancel()
	if err != nil {
		stats.ListErr = err
		logger.Error("failed to list messages", logging.Err(err))
		s.finishCycle(ctx, start, instrumentation.CycleResultListError)
		instrumentation.FinishSpan(span, err)
		return stats
	}

	stats.Listed = len(refs)
	span.SetAttributes(attribute.Int("autoreply.listed", len(refs)))
	if len(refs) == 0 {
		logger.Debug("no messages found")
		s.finishCycle(ctx, start, instrumentation.CycleResultOK)
		instrumentation.FinishSpan(span, nil)
		return stats
	}

	results := make([]messageResult, len(refs))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			results[i] = s.handleMessage(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch r.outcome {
		case OutcomeFetchError:
			stats.FetchErrors++
		case OutcomeReplied:
			stats.Replied++
		case OutcomeSendError:
			stats.SendErrors++
		default:
			stats.Skipped++
		}
		if r.labeled {
			stats.Labeled++
		}
		if r.labelError {
			stats.LabelErrors++
		}
	}

	result := instrumentation.CycleResultOK
	if errors.Is(ctx.Err(), context.Canceled) {
		result = instrumentation.CycleResultCanceled
	}
	s.finishCycle(ctx, start, result)
	instrumentation.FinishSpan(span, nil)

	logger.Info("cycle finished",
		slog.Int("listed", stats.Listed),
		slog.Int("replied", stats.Replied),
		slog.Int("skipped", stats.Skipped),
		slog.Int("fetch_errors", stats.FetchErrors),
		slog.Int("send_errors", stats.SendErrors),
		slog.Int("label_errors", stats.LabelErrors),
		slog.Duration(logging.KeyDuration, time.Since(start)))

	return stats
}

func (s *Service) finishCycle(ctx context.Context, start time.Time, result string) {
	s.metrics.RecordCycle(context.WithoutCancel(ctx), result, time.Since(start))
}

// handleMessage runs fetch, decide, send and label for one message, in order.
func (s *Service) handleMessage(ctx context.Context, ref gmail.MessageRef) messageResult {
	ctx, span := instrumentation.StartSpan(ctx, "responder.message",
		attribute.String(instrumentation.SpanAttrMessageID, ref.ID),
		attribute.String(instrumentation.SpanAttrThreadID, ref.ThreadID))
	defer span.End()

	logger := s.logger.With(logging.MessageID(ref.ID), logging.ThreadID(ref.ThreadID))
	var res messageResult

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	msg, err := s.mailbox.GetMessage(fetchCtx, ref.ID)
	cancel()
	if err != nil {
		logger.Warn("failed to fetch message, skipping", logging.Err(err))
		instrumentation.SetSpanError(span, err)
		res.outcome = OutcomeFetchError
		s.metrics.RecordMessage(ctx, res.outcome)
		return res
	}

	decision := Decide(msg, s.cfg.LabelID, s.cfg.SkipLabeled)
	span.SetAttributes(attribute.String(instrumentation.SpanAttrDecision, string(decision)))

	if decision == DecisionReply {
		reply := gmail.NewReply(msg, s.cfg.Subject, s.cfg.Body)

		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		err := s.sender.Send(sendCtx, reply)
		cancel()
		if err != nil {
			logger.Error("failed to send autoreply",
				logging.Domain(reply.To),
				logging.TraceID(instrumentation.GetTraceID(ctx)),
				logging.Err(err))
			instrumentation.SetSpanError(span, err)
			res.outcome = OutcomeSendError
		} else {
			logger.Info("autoreply sent", logging.UserHash(reply.To), logging.Domain(reply.To))
			res.outcome = OutcomeReplied
		}
	} else {
		logger.Debug("not replying", logging.Status(logging.StatusSkipped), slog.String("decision", string(decision)))
		res.outcome = string(decision)
	}
	s.metrics.RecordMessage(ctx, res.outcome)

	threadID := msg.ThreadID
	if threadID == "" {
		threadID = ref.ThreadID
	}

	labelCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	err = s.mailbox.AddThreadLabels(labelCtx, threadID, s.cfg.LabelID)
	cancel()
	if err != nil {
		logger.Error("failed to label thread", logging.Err(err))
		instrumentation.SetSpanError(span, err)
		res.labelError = true
		return res
	}
	res.labeled = true
	logger.Debug("thread labeled")

	return res
}
