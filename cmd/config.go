package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/awayreply/internal/gmail"
	"github.com/teemow/awayreply/internal/google"
	"github.com/teemow/awayreply/internal/instrumentation"
	"github.com/teemow/awayreply/internal/logging"
	"github.com/teemow/awayreply/internal/mailer"
	"github.com/teemow/awayreply/internal/responder"
	"github.com/teemow/awayreply/internal/server"
)

// DefaultPort is the port of the OAuth callback server.
const DefaultPort = 3000

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string

	// Exporter is the OpenTelemetry metrics exporter: prometheus, otlp or stdout.
	// The metrics server can only serve the prometheus exporter.
	Exporter string
}

// ServeConfig is the complete configuration of the serve command.
type ServeConfig struct {
	ClientID     string
	ClientSecret string

	// Port is the listen port of the OAuth callback server.
	Port int

	// RedirectURL defaults to http://localhost:<Port>/oauth2callback.
	RedirectURL string

	// Transport selects how replies are sent: smtp or api.
	Transport string
	SMTPAddr  string

	Subject string
	Body    string
	Label   string

	Query    string
	PageSize int64

	IntervalMin time.Duration
	IntervalMax time.Duration

	CallTimeout time.Duration
	Concurrency int
	SkipLabeled bool

	QuotaUnitsPerSecond float64

	LogLevel  string
	LogFormat string

	Metrics MetricsConfig
}

// envBindings maps serve flags to their environment variable fallbacks.
var envBindings = []struct {
	flag string
	env  string
}{
	{"client-id", "CLIENT_ID"},
	{"client-secret", "CLIENT_SECRET"},
	{"port", "PORT"},
	{"redirect-url", "REDIRECT_URL"},
	{"send-transport", "SEND_TRANSPORT"},
	{"smtp-addr", "SMTP_ADDR"},
	{"subject", "AUTOREPLY_SUBJECT"},
	{"body", "AUTOREPLY_BODY"},
	{"label", "AUTOREPLY_LABEL"},
	{"query", "POLL_QUERY"},
	{"page-size", "POLL_PAGE_SIZE"},
	{"interval-min", "POLL_INTERVAL_MIN"},
	{"interval-max", "POLL_INTERVAL_MAX"},
	{"call-timeout", "CALL_TIMEOUT"},
	{"concurrency", "POLL_CONCURRENCY"},
	{"skip-labeled", "SKIP_LABELED"},
	{"quota-units", "GMAIL_QUOTA_UNITS_PER_SECOND"},
	{"log-level", "LOG_LEVEL"},
	{"log-format", "LOG_FORMAT"},
	{"metrics-enabled", "METRICS_ENABLED"},
	{"metrics-addr", "METRICS_ADDR"},
	{"metrics-exporter", "METRICS_EXPORTER"},
}

// registerServeFlags binds every ServeConfig field to a flag on cmd.
func registerServeFlags(cmd *cobra.Command, cfg *ServeConfig) {
	f := cmd.Flags()
	f.StringVar(&cfg.ClientID, "client-id", "", "Google OAuth client ID. Can also use CLIENT_ID env var.")
	f.StringVar(&cfg.ClientSecret, "client-secret", "", "Google OAuth client secret. Can also use CLIENT_SECRET env var.")
	f.IntVar(&cfg.Port, "port", DefaultPort, "Port of the OAuth callback server. Can also use PORT env var.")
	f.StringVar(&cfg.RedirectURL, "redirect-url", "", "OAuth redirect URL (default http://localhost:<port>/oauth2callback). Can also use REDIRECT_URL env var.")
	f.StringVar(&cfg.Transport, "send-transport", google.TransportAPI, "How replies are sent: api or smtp. Can also use SEND_TRANSPORT env var.")
	f.StringVar(&cfg.SMTPAddr, "smtp-addr", mailer.DefaultAddr, "SMTP server for the smtp transport (implicit TLS). Can also use SMTP_ADDR env var.")
	f.StringVar(&cfg.Subject, "subject", responder.DefaultSubject, "Subject of the reply. Can also use AUTOREPLY_SUBJECT env var.")
	f.StringVar(&cfg.Body, "body", responder.DefaultBody, "Plain text body of the reply. Can also use AUTOREPLY_BODY env var.")
	f.StringVar(&cfg.Label, "label", responder.DefaultLabel, "Label name or ID applied to handled threads. Can also use AUTOREPLY_LABEL env var.")
	f.StringVar(&cfg.Query, "query", responder.DefaultQuery, "Gmail search query for each poll. Can also use POLL_QUERY env var.")
	f.Int64Var(&cfg.PageSize, "page-size", responder.DefaultPageSize, "Messages listed per poll. Can also use POLL_PAGE_SIZE env var.")
	f.DurationVar(&cfg.IntervalMin, "interval-min", responder.DefaultInterval.Min, "Minimum delay between polls. Can also use POLL_INTERVAL_MIN env var.")
	f.DurationVar(&cfg.IntervalMax, "interval-max", responder.DefaultInterval.Max, "Maximum delay between polls (exclusive). Can also use POLL_INTERVAL_MAX env var.")
	f.DurationVar(&cfg.CallTimeout, "call-timeout", responder.DefaultCallTimeout, "Timeout of each Gmail or SMTP call. Can also use CALL_TIMEOUT env var.")
	f.IntVar(&cfg.Concurrency, "concurrency", responder.DefaultConcurrency, "Messages processed in parallel within a poll. Can also use POLL_CONCURRENCY env var.")
	f.BoolVar(&cfg.SkipLabeled, "skip-labeled", true, "Do not reply to messages that already carry the label. Can also use SKIP_LABELED env var.")
	f.Float64Var(&cfg.QuotaUnitsPerSecond, "quota-units", gmail.DefaultQuotaUnitsPerSecond, "Gmail per-user quota units per second to pace against. Can also use GMAIL_QUOTA_UNITS_PER_SECOND env var.")
	f.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error. Can also use LOG_LEVEL env var.")
	f.StringVar(&cfg.LogFormat, "log-format", logging.FormatText, "Log format: text or json. Can also use LOG_FORMAT env var.")
	f.BoolVar(&cfg.Metrics.Enabled, "metrics-enabled", false, "Serve Prometheus metrics on a dedicated port. Can also use METRICS_ENABLED env var.")
	f.StringVar(&cfg.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
	f.StringVar(&cfg.Metrics.Exporter, "metrics-exporter", instrumentation.ExporterPrometheus, "Metrics exporter: prometheus, otlp or stdout. Can also use METRICS_EXPORTER env var.")
}

// loadServeEnvVars applies environment variables to flags that were not set
// explicitly. Values go through the flag parsers, so malformed values are
// reported the same way as malformed flags.
func loadServeEnvVars(cmd *cobra.Command) error {
	for _, b := range envBindings {
		if cmd.Flags().Changed(b.flag) {
			continue
		}
		value := strings.TrimSpace(os.Getenv(b.env))
		if value == "" {
			continue
		}
		if err := cmd.Flags().Set(b.flag, value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", b.env, err)
		}
	}
	return nil
}

// applyDefaults fills values derived from other fields.
func (c *ServeConfig) applyDefaults() {
	if c.RedirectURL == "" {
		c.RedirectURL = fmt.Sprintf("http://localhost:%d/oauth2callback", c.Port)
	}
	if c.Transport == "" {
		c.Transport = google.TransportAPI
	}
}

// Validate reports every configuration problem at once.
func (c *ServeConfig) Validate() error {
	var errs []error

	if c.ClientID == "" {
		errs = append(errs, errors.New("client ID is required (--client-id or CLIENT_ID)"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("client secret is required (--client-secret or CLIENT_SECRET)"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if _, err := google.ScopesFor(c.Transport); err != nil {
		errs = append(errs, err)
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page size must be positive, got %d", c.PageSize))
	}
	if err := c.interval().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("call timeout must be positive, got %s", c.CallTimeout))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if c.QuotaUnitsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("quota units per second must be positive, got %g", c.QuotaUnitsPerSecond))
	}
	if strings.TrimSpace(c.Label) == "" {
		errs = append(errs, errors.New("label must not be empty"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q, must be one of: text, json", c.LogFormat))
	}
	switch c.Metrics.Exporter {
	case "", instrumentation.ExporterPrometheus:
	case instrumentation.ExporterOTLP, instrumentation.ExporterStdout:
		if c.Metrics.Enabled {
			errs = append(errs, fmt.Errorf("metrics server requires the prometheus exporter, got %q (disable METRICS_ENABLED or set METRICS_EXPORTER=prometheus)", c.Metrics.Exporter))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown metrics exporter %q, must be one of: prometheus, otlp, stdout", c.Metrics.Exporter))
	}

	return errors.Join(errs...)
}

func (c *ServeConfig) interval() responder.Interval {
	return responder.Interval{Min: c.IntervalMin, Max: c.IntervalMax}
}

func (c *ServeConfig) responderConfig(labelID string) responder.Config {
	return responder.Config{
		Query:       c.Query,
		PageSize:    c.PageSize,
		LabelID:     labelID,
		Subject:     c.Subject,
		Body:        c.Body,
		SkipLabeled: c.SkipLabeled,
		CallTimeout: c.CallTimeout,
		Concurrency: c.Concurrency,
	}
}
