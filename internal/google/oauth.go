package google

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/awayreply/internal/instrumentation"
)

var (
	// ErrMissingCode is returned when the callback carries no authorization code.
	ErrMissingCode = errors.New("missing authorization code")

	// ErrStateMismatch is returned when the callback state was not issued by /login
	// or has expired.
	ErrStateMismatch = errors.New("oauth state mismatch")
)

// stateTTL is how long an issued state value remains acceptable.
const stateTTL = 10 * time.Minute

// OAuthConfig holds the OAuth client settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Endpoint defaults to google.Endpoint.
	Endpoint oauth2.Endpoint
}

// Authorizer drives the authorization code flow and owns the resulting
// Credentials.
type Authorizer struct {
	conf    *oauth2.Config
	creds   *Credentials
	metrics *instrumentation.Metrics

	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

// NewAuthorizer creates an Authorizer. ctx is used for token refreshes
// for the lifetime of the process.
func NewAuthorizer(ctx context.Context, cfg OAuthConfig, metrics *instrumentation.Metrics) *Authorizer {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}

	return &Authorizer{
		conf:    conf,
		creds:   NewCredentials(ctx, conf, metrics),
		metrics: metrics,
		states:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// Credentials returns the holder populated by Exchange.
func (a *Authorizer) Credentials() *Credentials {
	return a.creds
}

// NewState issues a random state value for one authorization round trip.
func (a *Authorizer) NewState() string {
	state := uuid.NewString()

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for s, issued := range a.states {
		if now.Sub(issued) > stateTTL {
			delete(a.states, s)
		}
	}
	a.states[state] = now
	return state
}

// AuthCodeURL returns the consent URL. Offline access with forced consent
// makes Google return a refresh token on every authorization.
func (a *Authorizer) AuthCodeURL(state string) string {
	return a.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange validates state, exchanges the authorization code for a token and
// stores it in the Credentials holder. It is not retried.
func (a *Authorizer) Exchange(ctx context.Context, state, code string) (*oauth2.Token, error) {
	if code == "" {
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, ErrMissingCode
	}
	if !a.consumeState(state) {
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, ErrStateMismatch
	}

	tok, err := a.conf.Exchange(ctx, code)
	if err != nil {
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)

	a.creds.Set(tok)
	return tok, nil
}

func (a *Authorizer) consumeState(state string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	issued, ok := a.states[state]
	if !ok {
		return false
	}
	delete(a.states, state)
	return a.now().Sub(issued) <= stateTTL
}
