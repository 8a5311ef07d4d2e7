// Package server provides the HTTP surface and lifecycle state of awayreply.
//
// # Key Components
//
// ServerContext owns the server-lifetime context and the state machine
// Unauthenticated -> Polling. StartPolling runs the activation hook at most
// once successfully; repeated authorizations only refresh the credential.
//
// Server serves the OAuth entry points:
//   - GET /login redirects to the Google consent screen
//   - GET /oauth2callback exchanges the code and starts polling
//   - GET / answers "Working"
//
// HealthChecker adds /healthz, /readyz and /healthz/detailed. Readiness
// turns green once polling has started.
//
// MetricsServer exposes Prometheus metrics on a dedicated port.
package server
