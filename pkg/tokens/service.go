package tokens

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/openidp/openidp/pkg/authcode"
	"github.com/openidp/openidp/pkg/identity"
	"github.com/openidp/openidp/pkg/tokengenerator"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultIDTokenTTL      = time.Hour
)

// Issuer mints access, refresh and ID tokens for redeemed authorization
// grants and validates access tokens for the UserInfo endpoint.
type Issuer struct {
	generator       tokengenerator.TokenGenerator
	repository      TokenRepository
	users           identity.UserRepository
	claimMapper     ClaimMapper
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	idTokenTTL      time.Duration
	now             func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithAccessTokenTTL overrides the access token lifetime.
func WithAccessTokenTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) { i.accessTokenTTL = ttl }
}

// WithRefreshTokenTTL overrides the refresh token lifetime.
func WithRefreshTokenTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) { i.refreshTokenTTL = ttl }
}

// WithIDTokenTTL overrides the ID token lifetime.
func WithIDTokenTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) { i.idTokenTTL = ttl }
}

// WithClaimMapper replaces the default claim mapper.
func WithClaimMapper(mapper ClaimMapper) IssuerOption {
	return func(i *Issuer) { i.claimMapper = mapper }
}

// WithIssuerClock overrides the time source, for tests.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates a token issuer.
func NewIssuer(generator tokengenerator.TokenGenerator, repository TokenRepository, users identity.UserRepository, opts ...IssuerOption) *Issuer {
	issuer := &Issuer{
		generator:       generator,
		repository:      repository,
		users:           users,
		claimMapper:     DefaultClaimMapper,
		accessTokenTTL:  defaultAccessTokenTTL,
		refreshTokenTTL: defaultRefreshTokenTTL,
		idTokenTTL:      defaultIDTokenTTL,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

// IssueForCode mints the token set for a redeemed authorization code: an
// access token, a refresh token starting a new family, and an ID token when
// the grant includes the openid scope.
func (i *Issuer) IssueForCode(ctx context.Context, grant *authcode.AuthorizationCode) (*TokenResponse, error) {
	familyID := uuid.New().String()
	response, err := i.issue(ctx, issueParams{
		userID:   grant.UserID,
		clientID: grant.ClientID,
		scopes:   grant.Scopes,
		familyID: familyID,
		codeRef:  grant.Code,
		nonce:    grant.Nonce,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Issued tokens for authorization code",
		"client_id", grant.ClientID, "user_id", grant.UserID, "scopes", grant.Scopes)
	return response, nil
}

// Refresh rotates a refresh token: the presented token is retired and a new
// token in the same family is issued together with a fresh access token.
// Presenting an already rotated token is treated as theft and revokes the
// whole family.
func (i *Issuer) Refresh(ctx context.Context, refreshToken, clientID string) (*TokenResponse, error) {
	stored, err := i.repository.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	if stored.ClientID != clientID {
		return nil, ErrClientMismatch
	}
	if stored.Revoked {
		return nil, ErrTokenRevoked
	}
	if i.now().After(stored.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	rotated, err := i.repository.RotateRefreshToken(ctx, refreshToken)
	if err != nil {
		if rotated != nil {
			slog.Warn("Refresh token reuse detected, revoking family",
				"client_id", clientID, "family_id", rotated.FamilyID)
			if revokeErr := i.repository.RevokeFamily(ctx, rotated.FamilyID); revokeErr != nil {
				slog.Error("Failed to revoke refresh token family", "err", revokeErr)
			}
			return nil, ErrTokenReused
		}
		return nil, err
	}

	response, err := i.issue(ctx, issueParams{
		userID:   rotated.UserID,
		clientID: rotated.ClientID,
		scopes:   rotated.Scopes,
		familyID: rotated.FamilyID,
		codeRef:  rotated.CodeRef,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Rotated refresh token", "client_id", clientID, "family_id", rotated.FamilyID)
	return response, nil
}

// ValidateAccessToken verifies signature, expiry and revocation state and
// returns the token claims.
func (i *Issuer) ValidateAccessToken(ctx context.Context, tokenStr string) (map[string]interface{}, error) {
	claims, err := i.generator.ParseToken(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidAccessToken)
	}
	revoked, err := i.repository.IsAccessTokenRevoked(ctx, jti)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token revoked", ErrInvalidAccessToken)
	}
	return claims, nil
}

// UserInfo validates the access token and returns the user's claims filtered
// by the token's granted scopes. The sub claim is always present.
func (i *Issuer) UserInfo(ctx context.Context, tokenStr string) (map[string]interface{}, error) {
	claims, err := i.ValidateAccessToken(ctx, tokenStr)
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidAccessToken)
	}
	scope, _ := claims["scope"].(string)
	scopes := strings.Fields(scope)
	if !slices.Contains(scopes, "openid") {
		return nil, fmt.Errorf("%w: token lacks openid scope", ErrInvalidAccessToken)
	}

	user, err := i.users.GetUser(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	info := map[string]interface{}{"sub": sub}
	for key, value := range i.claimMapper(user, scopes) {
		info[key] = value
	}
	return info, nil
}

// RevokeByCode revokes every token descending from the authorization code.
// The token endpoint calls this when it detects code replay.
func (i *Issuer) RevokeByCode(ctx context.Context, code string) error {
	if err := i.repository.RevokeByCode(ctx, code); err != nil {
		return err
	}
	slog.Warn("Revoked tokens for replayed authorization code")
	return nil
}

type issueParams struct {
	userID   string
	clientID string
	scopes   []string
	familyID string
	codeRef  string
	nonce    string
}

func (i *Issuer) issue(ctx context.Context, params issueParams) (*TokenResponse, error) {
	jti := uuid.New().String()
	scope := strings.Join(params.scopes, " ")

	accessToken, expiresAt, err := i.generator.GenerateToken(params.userID, i.accessTokenTTL, map[string]interface{}{
		"jti":       jti,
		"client_id": params.clientID,
		"scope":     scope,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	if err := i.repository.StoreAccessToken(ctx, &AccessTokenRecord{
		JTI:       jti,
		FamilyID:  params.familyID,
		ClientID:  params.clientID,
		UserID:    params.userID,
		CodeRef:   params.codeRef,
		ExpiresAt: expiresAt,
		CreatedAt: i.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("failed to store access token record: %w", err)
	}

	refreshValue, err := newOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	if err := i.repository.StoreRefreshToken(ctx, &RefreshToken{
		Token:     refreshValue,
		FamilyID:  params.familyID,
		ClientID:  params.clientID,
		UserID:    params.userID,
		Scopes:    params.scopes,
		CodeRef:   params.codeRef,
		ExpiresAt: i.now().UTC().Add(i.refreshTokenTTL),
		CreatedAt: i.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	response := &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.accessTokenTTL.Seconds()),
		RefreshToken: refreshValue,
		Scope:        scope,
	}

	if slices.Contains(params.scopes, "openid") {
		idToken, err := i.generateIDToken(ctx, params)
		if err != nil {
			return nil, err
		}
		response.IDToken = idToken
	}
	return response, nil
}

// generateIDToken mints the ID token: audience is the client, nonce echoes
// the authorization request, and profile claims are filtered by scope.
func (i *Issuer) generateIDToken(ctx context.Context, params issueParams) (string, error) {
	user, err := i.users.GetUser(ctx, params.userID)
	if err != nil {
		return "", fmt.Errorf("failed to load user for ID token: %w", err)
	}

	claims := map[string]interface{}{
		"aud": params.clientID,
	}
	if params.nonce != "" {
		claims["nonce"] = params.nonce
	}
	for key, value := range i.claimMapper(user, params.scopes) {
		claims[key] = value
	}

	idToken, _, err := i.generator.GenerateToken(params.userID, i.idTokenTTL, claims)
	if err != nil {
		return "", fmt.Errorf("failed to generate ID token: %w", err)
	}
	return idToken, nil
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
