package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openidp/openidp/pkg/authcode"
	"github.com/openidp/openidp/pkg/identity"
	"github.com/openidp/openidp/pkg/tokengenerator"
)

func testSetup(t *testing.T, opts ...IssuerOption) (*Issuer, *identity.UserProfile, *tokengenerator.JwtTokenGenerator) {
	t.Helper()

	users := identity.NewInMemoryUserRepository()
	user, err := users.CreateUser(context.Background(), &identity.UserProfile{
		ID:            "user-1",
		Username:      "alice",
		Name:          "Alice Example",
		Email:         "alice@example.com",
		EmailVerified: true,
		Picture:       "https://example.com/alice.png",
	})
	require.NoError(t, err)

	generator := tokengenerator.NewJwtTokenGenerator("test-secret", "https://idp.example.com", "https://idp.example.com")
	issuer := NewIssuer(generator, NewInMemoryTokenRepository(), users, opts...)
	return issuer, user, generator
}

func testGrant(scopes ...string) *authcode.AuthorizationCode {
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	return &authcode.AuthorizationCode{
		Code:        "code-1",
		ClientID:    "client-1",
		UserID:      "user-1",
		RedirectURI: "https://app.example.com/cb",
		Scopes:      scopes,
		Nonce:       "n-xyz",
	}
}

func TestIssueForCode(t *testing.T) {
	ctx := context.Background()
	issuer, user, generator := testSetup(t)

	response, err := issuer.IssueForCode(ctx, testGrant())
	require.NoError(t, err)

	assert.Equal(t, "Bearer", response.TokenType)
	assert.Equal(t, int64(defaultAccessTokenTTL.Seconds()), response.ExpiresIn)
	assert.Equal(t, "openid profile email", response.Scope)
	assert.NotEmpty(t, response.RefreshToken)

	accessClaims, err := issuer.ValidateAccessToken(ctx, response.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, accessClaims["sub"])
	assert.Equal(t, "client-1", accessClaims["client_id"])
	assert.Equal(t, "openid profile email", accessClaims["scope"])

	require.NotEmpty(t, response.IDToken)
	idClaims, err := generator.ParseToken(response.IDToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, idClaims["sub"])
	assert.Equal(t, "client-1", idClaims["aud"], "ID token audience is the client")
	assert.Equal(t, "n-xyz", idClaims["nonce"])
	assert.Equal(t, "Alice Example", idClaims["name"])
	assert.Equal(t, "alice@example.com", idClaims["email"])
	assert.Equal(t, true, idClaims["email_verified"])
}

func TestIssueForCodeWithoutOpenIDScope(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := testSetup(t)

	response, err := issuer.IssueForCode(ctx, testGrant("profile"))
	require.NoError(t, err)
	assert.Empty(t, response.IDToken, "no ID token without the openid scope")
	assert.NotEmpty(t, response.AccessToken)
}

func TestIDTokenScopeFiltering(t *testing.T) {
	ctx := context.Background()
	issuer, _, generator := testSetup(t)

	response, err := issuer.IssueForCode(ctx, testGrant("openid", "email"))
	require.NoError(t, err)

	idClaims, err := generator.ParseToken(response.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", idClaims["email"])
	assert.NotContains(t, idClaims, "name", "profile claims need the profile scope")
	assert.NotContains(t, idClaims, "picture")
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := testSetup(t)

	first, err := issuer.IssueForCode(ctx, testGrant())
	require.NoError(t, err)

	second, err := issuer.Refresh(ctx, first.RefreshToken, "client-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.Scope, second.Scope)

	_, err = issuer.ValidateAccessToken(ctx, second.AccessToken)
	require.NoError(t, err)

	// Reusing the rotated token revokes the whole family.
	_, err = issuer.Refresh(ctx, first.RefreshToken, "client-1")
	assert.ErrorIs(t, err, ErrTokenReused)

	_, err = issuer.Refresh(ctx, second.RefreshToken, "client-1")
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = issuer.ValidateAccessToken(ctx, second.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidAccessToken, "family revocation invalidates outstanding access tokens")
}

func TestRefreshValidation(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := testSetup(t)

	response, err := issuer.IssueForCode(ctx, testGrant())
	require.NoError(t, err)

	t.Run("unknown token", func(t *testing.T) {
		_, err := issuer.Refresh(ctx, "no-such-token", "client-1")
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("wrong client", func(t *testing.T) {
		_, err := issuer.Refresh(ctx, response.RefreshToken, "client-2")
		assert.ErrorIs(t, err, ErrClientMismatch)
	})

	t.Run("still valid after failed attempts", func(t *testing.T) {
		_, err := issuer.Refresh(ctx, response.RefreshToken, "client-1")
		assert.NoError(t, err)
	})
}

func TestRefreshExpired(t *testing.T) {
	ctx := context.Background()
	current := time.Now()
	issuer, _, _ := testSetup(t, WithIssuerClock(func() time.Time { return current }))

	response, err := issuer.IssueForCode(ctx, testGrant())
	require.NoError(t, err)

	current = current.Add(defaultRefreshTokenTTL + time.Hour)
	_, err = issuer.Refresh(ctx, response.RefreshToken, "client-1")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRevokeByCode(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := testSetup(t)

	response, err := issuer.IssueForCode(ctx, testGrant())
	require.NoError(t, err)

	require.NoError(t, issuer.RevokeByCode(ctx, "code-1"))

	_, err = issuer.ValidateAccessToken(ctx, response.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	_, err = issuer.Refresh(ctx, response.RefreshToken, "client-1")
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRevokeByCodeCoversRotatedTokens(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := testSetup(t)

	first, err := issuer.IssueForCode(ctx, testGrant())
	require.NoError(t, err)

	// Rotate once so the family has descendants beyond the original pair.
	second, err := issuer.Refresh(ctx, first.RefreshToken, "client-1")
	require.NoError(t, err)

	require.NoError(t, issuer.RevokeByCode(ctx, "code-1"))

	_, err = issuer.ValidateAccessToken(ctx, second.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
	_, err = issuer.Refresh(ctx, second.RefreshToken, "client-1")
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestUserInfo(t *testing.T) {
	ctx := context.Background()
	issuer, user, _ := testSetup(t)

	response, err := issuer.IssueForCode(ctx, testGrant("openid", "email"))
	require.NoError(t, err)

	info, err := issuer.UserInfo(ctx, response.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, info["sub"])
	assert.Equal(t, "alice@example.com", info["email"])
	assert.Equal(t, true, info["email_verified"])
	assert.NotContains(t, info, "name", "userinfo claims are filtered by granted scopes")
}

func TestUserInfoRequiresOpenIDScope(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := testSetup(t)

	response, err := issuer.IssueForCode(ctx, testGrant("profile"))
	require.NoError(t, err)

	_, err = issuer.UserInfo(ctx, response.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestValidateAccessTokenRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := testSetup(t)

	_, err := issuer.ValidateAccessToken(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestCustomClaimMapper(t *testing.T) {
	ctx := context.Background()
	issuer, _, generator := testSetup(t, WithClaimMapper(func(user *identity.UserProfile, scopes []string) map[string]interface{} {
		return map[string]interface{}{"department": "engineering"}
	}))

	response, err := issuer.IssueForCode(ctx, testGrant())
	require.NoError(t, err)

	idClaims, err := generator.ParseToken(response.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "engineering", idClaims["department"])
}
