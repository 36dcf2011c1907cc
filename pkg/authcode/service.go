package authcode

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/openidp/openidp/pkg/pkce"
)

const defaultCodeTTL = 10 * time.Minute

// IssueParams carries everything an approved authorization request binds
// into the code.
type IssueParams struct {
	ClientID            string
	UserID              string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
}

// CodeService issues and redeems single-use authorization codes.
type CodeService struct {
	repository CodeRepository
	codeTTL    time.Duration
	now        func() time.Time
}

// Option configures a CodeService.
type Option func(*CodeService)

// WithCodeTTL overrides the default code lifetime.
func WithCodeTTL(ttl time.Duration) Option {
	return func(s *CodeService) {
		s.codeTTL = ttl
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *CodeService) {
		s.now = now
	}
}

// NewCodeService creates a new code service backed by the given repository.
func NewCodeService(repository CodeRepository, opts ...Option) *CodeService {
	service := &CodeService{
		repository: repository,
		codeTTL:    defaultCodeTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Issue generates an opaque code bound to the given authorization and stores
// it with the configured TTL.
func (s *CodeService) Issue(ctx context.Context, params IssueParams) (*AuthorizationCode, error) {
	if params.ClientID == "" || params.UserID == "" || params.RedirectURI == "" {
		return nil, fmt.Errorf("client, user and redirect_uri are required")
	}
	if params.CodeChallenge != "" && !pkce.ValidMethod(params.CodeChallengeMethod) {
		return nil, fmt.Errorf("unsupported code_challenge_method: %s", params.CodeChallengeMethod)
	}

	value, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate authorization code: %w", err)
	}

	now := s.now().UTC()
	code := &AuthorizationCode{
		Code:                value,
		ClientID:            params.ClientID,
		UserID:              params.UserID,
		RedirectURI:         params.RedirectURI,
		Scopes:              append([]string(nil), params.Scopes...),
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		Nonce:               params.Nonce,
		ExpiresAt:           now.Add(s.codeTTL),
		CreatedAt:           now,
	}

	if err := s.repository.StoreCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to store authorization code: %w", err)
	}

	slog.Info("Issued authorization code", "client_id", params.ClientID, "user_id", params.UserID)
	return code, nil
}

// Redeem validates and consumes an authorization code in exchange for its
// bound grant. On replay it returns the stored record together with
// ErrCodeConsumed so the caller can revoke tokens issued for the first
// redemption.
func (s *CodeService) Redeem(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*AuthorizationCode, error) {
	stored, err := s.repository.GetCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if stored.ClientID != clientID {
		return nil, ErrClientMismatch
	}
	if stored.Expired(s.now()) {
		return nil, ErrCodeExpired
	}
	if stored.RedirectURI != redirectURI {
		return nil, ErrRedirectMismatch
	}
	if err := s.verifyPKCE(stored, codeVerifier); err != nil {
		return nil, err
	}

	consumed, err := s.repository.ConsumeCode(ctx, code)
	if err != nil {
		if consumed != nil {
			slog.Warn("Authorization code replay detected", "client_id", clientID)
			return consumed, err
		}
		return nil, err
	}
	return consumed, nil
}

// CleanupExpired removes codes that are past expiry.
func (s *CodeService) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := s.repository.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		slog.Info("Removed expired authorization codes", "count", removed)
	}
	return removed, nil
}

func (s *CodeService) verifyPKCE(stored *AuthorizationCode, codeVerifier string) error {
	if stored.CodeChallenge == "" {
		if codeVerifier != "" {
			return fmt.Errorf("%w: code_verifier provided without a challenge", ErrPKCEMismatch)
		}
		return nil
	}
	if codeVerifier == "" {
		return fmt.Errorf("%w: code_verifier is required", ErrPKCEMismatch)
	}
	if err := pkce.Verify(codeVerifier, stored.CodeChallenge, pkce.Method(stored.CodeChallengeMethod)); err != nil {
		return fmt.Errorf("%w: %v", ErrPKCEMismatch, err)
	}
	return nil
}

func generateCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
