package oauth2client

import (
	"time"

	"golang.org/x/exp/slices"
)

// Client types
const (
	ClientTypePublic       = "public"
	ClientTypeConfidential = "confidential"
)

// Token endpoint authentication methods
const (
	AuthMethodSecretBasic = "client_secret_basic"
	AuthMethodSecretPost  = "client_secret_post"
	AuthMethodNone        = "none"
)

// Client represents a registered OAuth2/OIDC relying application.
//
// SecretHash holds the bcrypt hash of the client secret for confidential
// clients; the plaintext secret is returned exactly once at registration
// time and never stored.
type Client struct {
	ClientID                string
	SecretHash              string
	ClientName              string
	RedirectURIs            []string
	Scopes                  []string
	ClientType              string
	TokenEndpointAuthMethod string
	RequirePKCE             bool
	Trusted                 bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Public reports whether this client has no secret.
func (c *Client) Public() bool {
	return c.ClientType == ClientTypePublic
}

// ValidateRedirectURI checks the redirect URI against the registered set.
// Only exact string matches are accepted; prefix or wildcard matching would
// open a redirect hole.
func (c *Client) ValidateRedirectURI(redirectURI string) bool {
	return slices.Contains(c.RedirectURIs, redirectURI)
}

// ValidateScope checks that every requested scope is allowed for this client.
func (c *Client) ValidateScope(requestedScopes []string) bool {
	for _, scope := range requestedScopes {
		if !slices.Contains(c.Scopes, scope) {
			return false
		}
	}
	return true
}

// clone returns a deep copy so repository callers cannot mutate stored state.
func (c *Client) clone() *Client {
	dup := *c
	dup.RedirectURIs = slices.Clone(c.RedirectURIs)
	dup.Scopes = slices.Clone(c.Scopes)
	return &dup
}
