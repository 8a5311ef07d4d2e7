package gmail

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/awayreply/internal/instrumentation"
)

// APISender delivers replies through users.messages.send.
type APISender struct {
	client *Client
	from   string
	now    func() time.Time
}

// NewAPISender creates a sender that sends as from.
func NewAPISender(client *Client, from string) *APISender {
	return &APISender{client: client, from: from, now: time.Now}
}

// Send composes msg and sends it in its original thread.
func (s *APISender) Send(ctx context.Context, msg *EmailMessage) (err error) {
	start := time.Now()
	ctx, span := instrumentation.StartSpan(ctx, "api.send",
		attribute.String(instrumentation.SpanAttrTransport, instrumentation.TransportAPI))
	defer func() {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		s.client.metrics.RecordSend(context.WithoutCancel(ctx), instrumentation.TransportAPI, status, time.Since(start))
		instrumentation.FinishSpan(span, err)
	}()

	out := *msg
	out.From = s.from

	raw, err := Compose(&out, s.now())
	if err != nil {
		return err
	}

	_, err = s.client.SendRaw(ctx, raw, msg.ThreadID)
	return err
}
