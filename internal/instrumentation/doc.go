// Package instrumentation provides OpenTelemetry instrumentation for awayreply.
//
// It covers:
//   - OpenTelemetry metrics for HTTP requests, OAuth operations, Gmail API calls
//     and poll cycles
//   - Tracing for poll cycles, per-message handling and Gmail API calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Gmail API Metrics:
//   - gmail_api_operations_total: Counter of Gmail API operations by operation and status
//   - gmail_api_operation_duration_seconds: Histogram of Gmail API operation durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of authorization code exchanges by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// Autoreply Metrics:
//   - autoreply_cycles_total: Counter of poll cycles by result
//   - autoreply_cycle_duration_seconds: Histogram of poll cycle durations
//   - autoreply_messages_total: Counter of handled messages by outcome
//
// # Tracing
//
// Spans are created for:
//   - Poll cycles (responder.cycle)
//   - Per-message handling (responder.message)
//   - Gmail API calls (gmail.<operation>)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_EXPORTER_OTLP_INSECURE: Use plain HTTP for OTLP (default: false)
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_METRIC_EXPORT_INTERVAL: Push interval for otlp/stdout metrics (default: 10s)
//   - OTEL_SERVICE_NAME: Service name (default: awayreply)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordGmailAPIOperation(ctx, "list", instrumentation.StatusSuccess, time.Since(start))
//	recorder.RecordCycle(ctx, instrumentation.CycleResultOK, time.Since(start))
package instrumentation
