package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/awayreply/internal/instrumentation"
)

// ErrNotAuthorized is returned when a token is requested before the
// authorization code exchange has completed.
var ErrNotAuthorized = errors.New("not authorized: no OAuth token available")

// refreshTimeout bounds a single token refresh round trip.
const refreshTimeout = 30 * time.Second

// Credentials holds the current OAuth token for the mailbox.
//
// It has a single writer (the code exchange) and many readers (the Gmail
// client and the SMTP sender). Expired access tokens are refreshed on read
// using the refresh token; concurrent readers wait for a single refresh.
type Credentials struct {
	mu      sync.RWMutex
	token   *oauth2.Token
	conf    *oauth2.Config
	ctx     context.Context
	metrics *instrumentation.Metrics
}

// NewCredentials creates an empty holder that refreshes tokens with conf.
// ctx may carry an oauth2.HTTPClient used for refresh requests.
func NewCredentials(ctx context.Context, conf *oauth2.Config, metrics *instrumentation.Metrics) *Credentials {
	if ctx.Value(oauth2.HTTPClient) == nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: refreshTimeout})
	}
	return &Credentials{
		conf:    conf,
		ctx:     ctx,
		metrics: metrics,
	}
}

// Set replaces the held token.
func (c *Credentials) Set(tok *oauth2.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
}

// Authorized reports whether a token has been stored.
func (c *Credentials) Authorized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != nil
}

// Token implements oauth2.TokenSource.
func (c *Credentials) Token() (*oauth2.Token, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()

	if tok == nil {
		return nil, ErrNotAuthorized
	}
	if tok.Valid() {
		return tok, nil
	}

	return c.refresh()
}

func (c *Credentials) refresh() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil {
		return nil, ErrNotAuthorized
	}
	// Another reader may have refreshed while we waited for the lock.
	if c.token.Valid() {
		return c.token, nil
	}
	if c.token.RefreshToken == "" {
		c.metrics.RecordOAuthTokenRefresh(c.ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("access token expired and no refresh token is available: %w", ErrNotAuthorized)
	}

	newTok, err := c.conf.TokenSource(c.ctx, c.token).Token()
	if err != nil {
		c.metrics.RecordOAuthTokenRefresh(c.ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}
	c.metrics.RecordOAuthTokenRefresh(c.ctx, instrumentation.OAuthResultSuccess)

	c.token = newTok
	return newTok, nil
}

// HTTPClient returns an HTTP client that authenticates requests with the held
// token. The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func (c *Credentials) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: c,
			Base: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				ForceAttemptHTTP2: false,
			},
		},
	}
}
