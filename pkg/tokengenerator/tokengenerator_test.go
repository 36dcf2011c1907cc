package tokengenerator

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJwtTokenGeneratorRoundTrip(t *testing.T) {
	generator := NewJwtTokenGenerator("test-secret", "https://idp.example.com", "https://idp.example.com")

	tokenStr, expiresAt, err := generator.GenerateToken("user-1", time.Hour, map[string]interface{}{
		"scope": "openid profile",
		"jti":   "fixed-jti",
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := generator.ParseToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "https://idp.example.com", claims["iss"])
	assert.Equal(t, "openid profile", claims["scope"])
	assert.Equal(t, "fixed-jti", claims["jti"], "custom claims may override registered ones")
}

func TestJwtTokenGeneratorRejectsTampering(t *testing.T) {
	generator := NewJwtTokenGenerator("test-secret", "iss", "aud")
	other := NewJwtTokenGenerator("other-secret", "iss", "aud")

	tokenStr, _, err := generator.GenerateToken("user-1", time.Hour, nil)
	require.NoError(t, err)

	_, err = other.ParseToken(tokenStr)
	assert.Error(t, err)

	_, err = generator.ParseToken(tokenStr + "x")
	assert.Error(t, err)
}

func TestJwtTokenGeneratorRejectsExpired(t *testing.T) {
	generator := NewJwtTokenGenerator("test-secret", "iss", "aud")

	tokenStr, _, err := generator.GenerateToken("user-1", -time.Minute, nil)
	require.NoError(t, err)

	_, err = generator.ParseToken(tokenStr)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestRSATokenGenerator(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	generator := NewRSATokenGenerator(key, "key-1", "https://idp.example.com", "https://idp.example.com")

	tokenStr, _, err := generator.GenerateToken("user-1", time.Hour, map[string]interface{}{
		"aud":   "client-1",
		"nonce": "n-abc",
	})
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(tokenStr, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, "key-1", parsed.Header["kid"])
	assert.Equal(t, "RS256", parsed.Header["alg"])

	claims, err := generator.ParseToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "client-1", claims["aud"])
	assert.Equal(t, "n-abc", claims["nonce"])
}

func TestRSATokenGeneratorRejectsHMAC(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	rsaGen := NewRSATokenGenerator(key, "key-1", "iss", "aud")
	hmacGen := NewJwtTokenGenerator("secret", "iss", "aud")

	tokenStr, _, err := hmacGen.GenerateToken("user-1", time.Hour, nil)
	require.NoError(t, err)

	_, err = rsaGen.ParseToken(tokenStr)
	assert.Error(t, err, "alg confusion must be rejected")
}
