package tokengenerator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenGenerator signs and verifies JWTs. Custom claims are merged at the
// root of the payload next to the registered claims, as OIDC requires for ID
// tokens; a custom claim may override a registered one (ID tokens set aud to
// the client ID rather than the issuer default).
type TokenGenerator interface {
	// GenerateToken signs a token for the subject with the given lifetime
	// and custom claims. It returns the compact token and its expiry.
	GenerateToken(subject string, expiry time.Duration, claims map[string]interface{}) (string, time.Time, error)

	// ParseToken verifies signature and time claims and returns the payload.
	ParseToken(tokenStr string) (jwt.MapClaims, error)
}

// baseClaims builds the registered claim set shared by all generators.
func baseClaims(issuer, audience, subject string, expiry time.Duration) (jwt.MapClaims, time.Time) {
	now := time.Now().UTC()
	expiresAt := now.Add(expiry)
	return jwt.MapClaims{
		"iss": issuer,
		"sub": subject,
		"aud": audience,
		"exp": jwt.NewNumericDate(expiresAt),
		"iat": jwt.NewNumericDate(now),
		"nbf": jwt.NewNumericDate(now.Add(-5 * time.Minute)),
		"jti": uuid.New().String(),
	}, expiresAt
}

func mergeClaims(base jwt.MapClaims, custom map[string]interface{}) jwt.MapClaims {
	for key, value := range custom {
		base[key] = value
	}
	return base
}

// JwtTokenGenerator implements TokenGenerator with HMAC-SHA256 signing.
type JwtTokenGenerator struct {
	Secret   string
	Issuer   string
	Audience string
}

// NewJwtTokenGenerator creates a new HMAC token generator.
func NewJwtTokenGenerator(secret, issuer, audience string) *JwtTokenGenerator {
	return &JwtTokenGenerator{
		Secret:   secret,
		Issuer:   issuer,
		Audience: audience,
	}
}

// GenerateToken signs a token for the subject with the given lifetime and
// custom claims.
func (g *JwtTokenGenerator) GenerateToken(subject string, expiry time.Duration, claims map[string]interface{}) (string, time.Time, error) {
	payload, expiresAt := baseClaims(g.Issuer, g.Audience, subject, expiry)
	payload = mergeClaims(payload, claims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	ss, err := token.SignedString([]byte(g.Secret))
	if err != nil {
		slog.Error("Failed to sign JWT", "err", err)
		return "", time.Time{}, err
	}
	return ss, expiresAt, nil
}

// ParseToken verifies the HMAC signature and time claims.
func (g *JwtTokenGenerator) ParseToken(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(g.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
