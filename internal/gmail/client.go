package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/awayreply/internal/instrumentation"
)

// Quota units charged per method.
// See https://developers.google.com/gmail/api/reference/quota
const (
	quotaUnitsMessagesList  = 5
	quotaUnitsMessagesGet   = 5
	quotaUnitsThreadsModify = 10
	quotaUnitsMessagesSend  = 100
	quotaUnitsLabelsList    = 1
	quotaUnitsLabelsCreate  = 5
	quotaUnitsGetProfile    = 1

	quotaPacingFraction = 0.8
)

// DefaultQuotaUnitsPerSecond is Gmail's per-user quota.
const DefaultQuotaUnitsPerSecond = 250

// ErrMessageNotFound is returned when a listed message no longer exists.
var ErrMessageNotFound = errors.New("gmail message not found")

// ClientOptions configures a Client.
type ClientOptions struct {
	// QuotaUnitsPerSecond is the per-user quota the client paces itself
	// against. Calls are spaced to stay at 80% of it. Defaults to 250.
	QuotaUnitsPerSecond float64

	Metrics *instrumentation.Metrics
}

// Client wraps the Gmail Users service for the authenticated mailbox ("me").
type Client struct {
	svc     *gmail.UsersService
	limiter *rate.Limiter
	metrics *instrumentation.Metrics
}

// NewClient creates a Gmail client that authenticates through httpClient.
// Extra API options (e.g. option.WithEndpoint) are applied after it.
func NewClient(ctx context.Context, httpClient *http.Client, opts ClientOptions, apiOpts ...option.ClientOption) (*Client, error) {
	all := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, apiOpts...)
	svc, err := gmail.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	quota := opts.QuotaUnitsPerSecond
	if quota <= 0 {
		quota = DefaultQuotaUnitsPerSecond
	}
	// The burst must admit the most expensive single call.
	burst := max(int(quota), quotaUnitsMessagesSend)

	return &Client{
		svc:     svc.Users,
		limiter: rate.NewLimiter(rate.Limit(quota*quotaPacingFraction), burst),
		metrics: opts.Metrics,
	}, nil
}

// do paces, traces and measures a single API call.
func (c *Client) do(ctx context.Context, op string, units int, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := instrumentation.StartGmailSpan(ctx, op, attrs...)
	start := time.Now()

	err := c.limiter.WaitN(ctx, units)
	if err == nil {
		err = fn(ctx)
	}

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGmailAPIOperation(ctx, op, status, time.Since(start))
	instrumentation.FinishSpan(span, err)

	return err
}

// ListMessages returns the first page of messages matching query.
func (c *Client) ListMessages(ctx context.Context, query string, maxResults int64) ([]MessageRef, error) {
	var res *gmail.ListMessagesResponse
	err := c.do(ctx, "list", quotaUnitsMessagesList, func(ctx context.Context) error {
		var err error
		res, err = c.svc.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	refs := make([]MessageRef, 0, len(res.Messages))
	for _, m := range res.Messages {
		refs = append(refs, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return refs, nil
}

// GetMessage fetches a message with format=full.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	var res *gmail.Message
	err := c.do(ctx, "get", quotaUnitsMessagesGet, func(ctx context.Context) error {
		var err error
		res, err = c.svc.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return err
	}, attribute.String(instrumentation.SpanAttrMessageID, id))
	if err != nil {
		if isNotFound(err) {
			err = ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return fromAPIMessage(res), nil
}

// AddThreadLabels adds labels to every message in a thread.
func (c *Client) AddThreadLabels(ctx context.Context, threadID string, labelIDs ...string) error {
	err := c.do(ctx, "modify", quotaUnitsThreadsModify, func(ctx context.Context) error {
		_, err := c.svc.Threads.Modify("me", threadID, &gmail.ModifyThreadRequest{
			AddLabelIds: labelIDs,
		}).Context(ctx).Do()
		return err
	}, attribute.String(instrumentation.SpanAttrThreadID, threadID))
	if err != nil {
		return fmt.Errorf("failed to label thread %s: %w", threadID, err)
	}
	return nil
}

// EnsureLabel resolves a label name (or ID) to a label ID, creating a user
// label with that name when none exists.
func (c *Client) EnsureLabel(ctx context.Context, nameOrID string) (string, error) {
	var labels []*gmail.Label
	err := c.do(ctx, "labels.list", quotaUnitsLabelsList, func(ctx context.Context) error {
		res, err := c.svc.Labels.List("me").Context(ctx).Do()
		if err != nil {
			return err
		}
		labels = res.Labels
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}

	for _, l := range labels {
		if l.Id == nameOrID {
			return l.Id, nil
		}
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, nameOrID) {
			return l.Id, nil
		}
	}

	var created *gmail.Label
	err = c.do(ctx, "labels.create", quotaUnitsLabelsCreate, func(ctx context.Context) error {
		var err error
		created, err = c.svc.Labels.Create("me", &gmail.Label{
			Name:                  nameOrID,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create label %q: %w", nameOrID, err)
	}
	return created.Id, nil
}

// Profile returns the mailbox profile of the authenticated user.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var res *gmail.Profile
	err := c.do(ctx, "profile", quotaUnitsGetProfile, func(ctx context.Context) error {
		var err error
		res, err = c.svc.GetProfile("me").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &Profile{
		EmailAddress:  res.EmailAddress,
		MessagesTotal: res.MessagesTotal,
		ThreadsTotal:  res.ThreadsTotal,
	}, nil
}

// SendRaw sends an RFC 5322 message, optionally inside threadID,
// and returns the ID of the sent message.
func (c *Client) SendRaw(ctx context.Context, raw []byte, threadID string) (string, error) {
	var sent *gmail.Message
	err := c.do(ctx, "send", quotaUnitsMessagesSend, func(ctx context.Context) error {
		var err error
		sent, err = c.svc.Messages.Send("me", &gmail.Message{
			Raw:      base64.URLEncoding.EncodeToString(raw),
			ThreadId: threadID,
		}).Context(ctx).Do()
		return err
	}, attribute.String(instrumentation.SpanAttrThreadID, threadID))
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return sent.Id, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
