package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/awayreply/internal/google"
	"github.com/teemow/awayreply/internal/instrumentation"
	"github.com/teemow/awayreply/internal/logging"
	"github.com/teemow/awayreply/internal/server"
)

// startupTimeout bounds how long a listener may take to bind.
const startupTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var cfg ServeConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the autoresponder",
		Long: `Start the OAuth callback server. Open /login in a browser to authorize
access to the mailbox; once the callback succeeds the inbox is polled at random
intervals and every unanswered thread receives the vacation reply.

Configuration:
  Every flag has an environment variable fallback that applies when the flag
  is not set explicitly. A .env file in the working directory is loaded first
  and never overrides variables that are already set.

  Required: --client-id/CLIENT_ID and --client-secret/CLIENT_SECRET.

Send transports:
  smtp  SMTP with OAUTHBEARER to smtp.gmail.com:465 (requests the full mail scope)
  api   Gmail API messages.send (requests the gmail.modify scope)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadDotEnv(); err != nil {
				return err
			}
			if err := loadServeEnvVars(cmd); err != nil {
				return err
			}
			cfg.applyDefaults()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	registerServeFlags(cmd, &cfg)
	return cmd
}

// loadDotEnv loads .env from the working directory if present.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func runServe(parent context.Context, cfg ServeConfig) error {
	if parent == nil {
		parent = context.Background()
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat, "awayreply")
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if cfg.Metrics.Exporter != "" {
		instrConfig.MetricsExporter = cfg.Metrics.Exporter
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		if err := startInBackground(metricsServer.StartWithReadySignal); err != nil {
			return fmt.Errorf("metrics server failed to start: %w", err)
		}
		logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
	}

	scopes, err := google.ScopesFor(cfg.Transport)
	if err != nil {
		return err
	}
	authorizer := google.NewAuthorizer(shutdownCtx, google.OAuthConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
	}, metrics)

	act := newActivator(cfg, authorizer.Credentials(), metrics, logger)
	serverContext := server.NewServerContext(shutdownCtx, act.activate, logger)

	httpServer, err := server.New(server.Config{
		Addr:            ":" + strconv.Itoa(cfg.Port),
		Authorizer:      authorizer,
		ServerContext:   serverContext,
		ExchangeTimeout: cfg.CallTimeout,
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	serverDone := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		serverDone <- httpServer.StartWithReadySignal(ready)
	}()

	select {
	case <-ready:
	case err := <-serverDone:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(startupTimeout):
		return fmt.Errorf("HTTP server startup timed out")
	}

	logger.Info("awaiting authorization",
		slog.String("addr", httpServer.Addr()),
		slog.String("login_url", fmt.Sprintf("http://localhost:%d/login", cfg.Port)),
		slog.String("redirect_url", cfg.RedirectURL),
		slog.String("transport", cfg.Transport))

	var serveErr error
	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			serveErr = fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()

	errs := []error{serveErr, httpServer.Shutdown(ctx), serverContext.Shutdown()}
	if metricsServer != nil {
		errs = append(errs, metricsServer.Shutdown(ctx))
	}

	// Let an in-flight cycle finish its per-call timeouts.
	if done := act.done(); done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			logger.Warn("scheduler did not stop before the shutdown timeout")
		}
	}

	logger.Info("awayreply stopped")
	return errors.Join(errs...)
}

// startInBackground runs start in a goroutine and waits until it reports
// ready or fails.
func startInBackground(start func(ready chan<- struct{}) error) error {
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		if err := start(ready); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ready:
		return nil
	case err := <-errCh:
		if err == nil {
			return errors.New("server stopped before it was ready")
		}
		return err
	case <-time.After(startupTimeout):
		return errors.New("startup timed out")
	}
}
