package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newManualMetrics returns a Metrics recorder backed by a manual reader so
// tests can inspect the recorded data points.
func newManualMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

// counterValue sums the data points of the named counter that carry the attribute.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string, attr attribute.KeyValue) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestMetrics_RecordCycle(t *testing.T) {
	m, reader := newManualMetrics(t)
	ctx := context.Background()

	m.RecordCycle(ctx, CycleResultOK, 2*time.Second)
	m.RecordCycle(ctx, CycleResultOK, time.Second)
	m.RecordCycle(ctx, CycleResultListError, 10*time.Millisecond)

	assert.Equal(t, int64(2), counterValue(t, reader, "autoreply_cycles_total", attribute.String(attrResult, CycleResultOK)))
	assert.Equal(t, int64(1), counterValue(t, reader, "autoreply_cycles_total", attribute.String(attrResult, CycleResultListError)))
}

func TestMetrics_RecordMessage(t *testing.T) {
	m, reader := newManualMetrics(t)
	ctx := context.Background()

	m.RecordMessage(ctx, "replied")
	m.RecordMessage(ctx, "already_replied")
	m.RecordMessage(ctx, "replied")

	assert.Equal(t, int64(2), counterValue(t, reader, "autoreply_messages_total", attribute.String(attrOutcome, "replied")))
	assert.Equal(t, int64(1), counterValue(t, reader, "autoreply_messages_total", attribute.String(attrOutcome, "already_replied")))
}

func TestMetrics_RecordGmailAPIOperation(t *testing.T) {
	m, reader := newManualMetrics(t)
	ctx := context.Background()

	m.RecordGmailAPIOperation(ctx, "list", StatusSuccess, 200*time.Millisecond)
	m.RecordGmailAPIOperation(ctx, "modify", StatusError, 50*time.Millisecond)

	assert.Equal(t, int64(1), counterValue(t, reader, "gmail_api_operations_total", attribute.String(attrOperation, "list")))
	assert.Equal(t, int64(1), counterValue(t, reader, "gmail_api_operations_total", attribute.String(attrStatus, StatusError)))
	assert.Equal(t, int64(2), counterValue(t, reader, "gmail_api_operations_total", attribute.String(attrService, ServiceGmail)))
}

func TestMetrics_RecordSend(t *testing.T) {
	m, reader := newManualMetrics(t)
	ctx := context.Background()

	m.RecordSend(ctx, TransportSMTP, StatusSuccess, 300*time.Millisecond)
	m.RecordSend(ctx, TransportSMTP, StatusError, time.Second)
	m.RecordSend(ctx, TransportAPI, StatusSuccess, 100*time.Millisecond)

	assert.Equal(t, int64(2), counterValue(t, reader, "autoreply_sends_total", attribute.String(attrTransport, TransportSMTP)))
	assert.Equal(t, int64(1), counterValue(t, reader, "autoreply_sends_total", attribute.String(attrStatus, StatusError)))
	assert.Equal(t, int64(1), counterValue(t, reader, "autoreply_sends_total", attribute.String(attrTransport, TransportAPI)))
}

func TestMetrics_RecordOAuth(t *testing.T) {
	m, reader := newManualMetrics(t)
	ctx := context.Background()

	m.RecordOAuthAuth(ctx, OAuthResultSuccess)
	m.RecordOAuthAuth(ctx, OAuthResultFailure)
	m.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)

	assert.Equal(t, int64(1), counterValue(t, reader, "oauth_auth_total", attribute.String(attrResult, OAuthResultFailure)))
	assert.Equal(t, int64(1), counterValue(t, reader, "oauth_token_refresh_total", attribute.String(attrResult, OAuthResultSuccess)))
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m, reader := newManualMetrics(t)
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
	m.RecordHTTPRequest(ctx, "GET", "/oauth2callback", 500, time.Millisecond)

	assert.Equal(t, int64(1), counterValue(t, reader, "http_requests_total", attribute.String(attrStatus, "500")))
	assert.Equal(t, int64(1), counterValue(t, reader, "http_requests_total", attribute.String(attrPath, "/")))
}

func TestMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
		nilMetrics.RecordGmailAPIOperation(ctx, "get", StatusSuccess, time.Millisecond)
		nilMetrics.RecordOAuthAuth(ctx, OAuthResultSuccess)
		nilMetrics.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
		nilMetrics.RecordCycle(ctx, CycleResultOK, time.Second)
		nilMetrics.RecordMessage(ctx, "replied")
		nilMetrics.RecordSend(ctx, TransportSMTP, StatusSuccess, time.Second)
	})

	zero := &Metrics{}
	assert.NotPanics(t, func() {
		zero.RecordCycle(ctx, CycleResultOK, time.Second)
		zero.RecordMessage(ctx, "replied")
	})
}
