package oauth2client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterParams carries the metadata supplied by a dynamic registration
// request or static configuration.
type RegisterParams struct {
	ClientName              string
	RedirectURIs            []string
	Scopes                  []string
	ClientType              string
	TokenEndpointAuthMethod string
	Trusted                 bool
}

// Registration is the result of registering a client. ClientSecret is the
// one-time plaintext secret; it cannot be retrieved again.
type Registration struct {
	Client       *Client
	ClientSecret string
}

// ClientService provides registration, lookup and authentication of clients.
type ClientService struct {
	repository    ClientRepository
	defaultScopes []string
}

// Option configures a ClientService.
type Option func(*ClientService)

// WithDefaultScopes sets the scopes granted to registrations that omit them.
func WithDefaultScopes(scopes []string) Option {
	return func(s *ClientService) {
		s.defaultScopes = scopes
	}
}

// NewClientService creates a new client service backed by the given repository.
func NewClientService(repository ClientRepository, opts ...Option) *ClientService {
	service := &ClientService{
		repository:    repository,
		defaultScopes: []string{"openid", "profile", "email"},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Register validates metadata, generates credentials and persists the client.
// The returned Registration contains the plaintext secret for confidential
// clients; only its bcrypt hash is stored.
func (s *ClientService) Register(ctx context.Context, params RegisterParams) (*Registration, error) {
	if params.ClientName == "" {
		return nil, fmt.Errorf("%w: client_name is required", ErrInvalidMetadata)
	}
	if len(params.RedirectURIs) == 0 {
		return nil, fmt.Errorf("%w: at least one redirect_uri is required", ErrInvalidMetadata)
	}
	for _, uri := range params.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
	}

	clientType := params.ClientType
	if clientType == "" {
		clientType = ClientTypeConfidential
	}
	if clientType != ClientTypePublic && clientType != ClientTypeConfidential {
		return nil, fmt.Errorf("%w: unknown client type %q", ErrInvalidMetadata, clientType)
	}

	authMethod := params.TokenEndpointAuthMethod
	if authMethod == "" {
		if clientType == ClientTypePublic {
			authMethod = AuthMethodNone
		} else {
			authMethod = AuthMethodSecretBasic
		}
	}
	if clientType == ClientTypePublic && authMethod != AuthMethodNone {
		return nil, fmt.Errorf("%w: public clients must use token_endpoint_auth_method none", ErrInvalidMetadata)
	}

	scopes := params.Scopes
	if len(scopes) == 0 {
		scopes = s.defaultScopes
	}

	client := &Client{
		ClientID:                uuid.New().String(),
		ClientName:              params.ClientName,
		RedirectURIs:            params.RedirectURIs,
		Scopes:                  scopes,
		ClientType:              clientType,
		TokenEndpointAuthMethod: authMethod,
		// Public clients cannot keep a secret, so the code exchange
		// must be bound with PKCE instead.
		RequirePKCE: clientType == ClientTypePublic,
		Trusted:     params.Trusted,
	}

	var plaintext string
	if clientType == ClientTypeConfidential {
		secret, hash, err := newSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate client secret: %w", err)
		}
		plaintext = secret
		client.SecretHash = hash
	}

	created, err := s.repository.CreateClient(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	slog.Info("Registered OAuth2 client", "client_id", created.ClientID, "client_type", created.ClientType)
	return &Registration{Client: created, ClientSecret: plaintext}, nil
}

// Lookup retrieves a client by client ID.
func (s *ClientService) Lookup(ctx context.Context, clientID string) (*Client, error) {
	return s.repository.GetClient(ctx, clientID)
}

// Authenticate verifies client credentials. Comparison is done with bcrypt
// which is constant-time on the digest; any failure yields the same
// ErrInvalidCredentials so callers cannot probe for registered client IDs.
func (s *ClientService) Authenticate(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := s.repository.GetClient(ctx, clientID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if client.Public() {
		if clientSecret != "" {
			return nil, ErrInvalidCredentials
		}
		return client, nil
	}

	if clientSecret == "" || client.SecretHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return client, nil
}

// ValidateRedirectURI reports whether uri is registered for the client.
func (s *ClientService) ValidateRedirectURI(ctx context.Context, clientID, uri string) bool {
	client, err := s.repository.GetClient(ctx, clientID)
	if err != nil {
		return false
	}
	return client.ValidateRedirectURI(uri)
}

// RotateSecret generates a fresh secret for a confidential client and returns
// the new plaintext once. The previous secret stops working immediately.
func (s *ClientService) RotateSecret(ctx context.Context, clientID string) (string, error) {
	client, err := s.repository.GetClient(ctx, clientID)
	if err != nil {
		return "", err
	}
	if client.Public() {
		return "", fmt.Errorf("%w: public clients have no secret", ErrInvalidMetadata)
	}

	secret, hash, err := newSecret()
	if err != nil {
		return "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	client.SecretHash = hash
	if _, err := s.repository.UpdateClient(ctx, client); err != nil {
		return "", fmt.Errorf("failed to update client: %w", err)
	}

	slog.Info("Rotated client secret", "client_id", clientID)
	return secret, nil
}

// Delete removes a client registration.
func (s *ClientService) Delete(ctx context.Context, clientID string) error {
	return s.repository.DeleteClient(ctx, clientID)
}

// ValidateAuthorizationRequest resolves the client and checks redirect URI,
// response type and scopes of an authorization request.
func (s *ClientService) ValidateAuthorizationRequest(ctx context.Context, clientID, redirectURI, responseType, scope string) (*Client, error) {
	client, err := s.repository.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if !client.ValidateRedirectURI(redirectURI) {
		return nil, fmt.Errorf("invalid redirect_uri")
	}

	if responseType != "code" {
		return nil, fmt.Errorf("unsupported response_type: %s", responseType)
	}

	if scope != "" {
		requestedScopes := strings.Fields(scope)
		if !client.ValidateScope(requestedScopes) {
			return nil, fmt.Errorf("invalid scope")
		}
	}

	return client, nil
}

// newSecret returns a high-entropy plaintext secret and its bcrypt hash.
func newSecret() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return secret, string(hash), nil
}

// validateRedirectURI enforces absolute https URIs, with an exception for
// loopback addresses so native apps can develop against localhost.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("redirect URI %q is not a valid URL", raw)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("redirect URI %q must be absolute", raw)
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect URI %q must not contain a fragment", raw)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" {
			return nil
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return nil
		}
		return fmt.Errorf("redirect URI %q must use https outside of loopback", raw)
	default:
		return fmt.Errorf("redirect URI %q has unsupported scheme %q", raw, u.Scheme)
	}
}
