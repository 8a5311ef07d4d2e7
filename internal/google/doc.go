// Package google provides OAuth2 authorization and credential management for
// the Gmail account the responder acts on.
//
// The Authorizer builds the consent URL and exchanges the authorization code
// returned to the callback. The resulting token lives in a Credentials holder,
// which is an oauth2.TokenSource that refreshes the access token on demand and
// is shared by the Gmail REST client and the SMTP sender. Tokens are kept in
// memory only; a restart requires a new authorization.
package google
