package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/awayreply/internal/google"
	"github.com/teemow/awayreply/internal/instrumentation"
	"github.com/teemow/awayreply/internal/logging"
)

// Response bodies of the OAuth surface.
const (
	bodyWorking       = "Working"
	bodyTokenOK       = "Access token successfully retrieved"
	bodyTokenError    = "Error retrieving access token"
	bodyActivateError = "Error starting autoresponder"
)

// DefaultExchangeTimeout bounds the code exchange in the callback.
const DefaultExchangeTimeout = 30 * time.Second

// Authorizer is the OAuth2 flow used by the callback surface.
type Authorizer interface {
	NewState() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, state, code string) (*oauth2.Token, error)
}

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string

	Authorizer    Authorizer
	ServerContext *ServerContext

	// ExchangeTimeout bounds the token exchange. Defaults to DefaultExchangeTimeout.
	ExchangeTimeout time.Duration

	// RateLimit and RateBurst bound requests per client IP on /login and
	// /oauth2callback. Default to DefaultRateLimit and DefaultRateBurst.
	RateLimit float64
	RateBurst int

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Server serves the OAuth entry points and health endpoints.
type Server struct {
	addr            string
	authorizer      Authorizer
	sc              *ServerContext
	exchangeTimeout time.Duration
	metrics         *instrumentation.Metrics
	logger          *slog.Logger
	handler         http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates the HTTP server. Authorizer and ServerContext are required.
func New(cfg Config) (*Server, error) {
	if cfg.Authorizer == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	if cfg.ServerContext == nil {
		return nil, fmt.Errorf("server context is required")
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = DefaultExchangeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}

	s := &Server{
		addr:            cfg.Addr,
		authorizer:      cfg.Authorizer,
		sc:              cfg.ServerContext,
		exchangeTimeout: cfg.ExchangeTimeout,
		metrics:         cfg.Metrics,
		logger:          logging.WithComponent(cfg.Logger, "http"),
	}

	limiter := newIPRateLimiter(cfg.RateLimit, cfg.RateBurst)
	go limiter.runCleanup(cfg.ServerContext.Context(), time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.Handle("GET /login", limiter.Middleware(http.HandlerFunc(s.handleLogin)))
	mux.Handle("GET /oauth2callback", limiter.Middleware(http.HandlerFunc(s.handleCallback)))
	NewHealthChecker(cfg.ServerContext).RegisterHealthEndpoints(mux)

	s.handler = s.instrument(securityHeaders(mux))
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, bodyWorking)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := s.authorizer.NewState()
	http.Redirect(w, r, s.authorizer.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithOperation(s.logger, "oauth.callback")
	q := r.URL.Query()

	ctx, cancel := context.WithTimeout(r.Context(), s.exchangeTimeout)
	defer cancel()

	tok, err := s.authorizer.Exchange(ctx, q.Get("state"), q.Get("code"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, google.ErrMissingCode) || errors.Is(err, google.ErrStateMismatch) {
			status = http.StatusBadRequest
		}
		logger.Error("token exchange failed", logging.Status(logging.StatusError), logging.Err(err))
		writeText(w, status, bodyTokenError)
		return
	}

	started, err := s.sc.StartPolling()
	if err != nil {
		logger.Error("activation failed", logging.Status(logging.StatusError), logging.Err(err))
		writeText(w, http.StatusInternalServerError, bodyActivateError)
		return
	}

	logger.Info("authorization complete",
		logging.Status(logging.StatusSuccess),
		slog.String("access_token", logging.SanitizeToken(tok.AccessToken)),
		slog.Bool("polling_started", started))
	writeText(w, http.StatusOK, bodyTokenOK)
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal binds the listener, closes ready (if non-nil) and
// serves until Shutdown. Bind errors are returned before ready is closed.
func (s *Server) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.exchangeTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	if ready != nil {
		close(ready)
	}

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request count and duration per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		// Pattern is set by the mux on r itself; unmatched paths have none
		// and are folded together to bound label cardinality.
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, path, rec.status, time.Since(start))
	})
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
