package tokengenerator

import (
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RSATokenGenerator implements TokenGenerator with RS256 signing. The signing
// key ID is carried in the kid header so verifiers can match it against the
// published JWKS.
type RSATokenGenerator struct {
	privateKey *rsa.PrivateKey
	keyID      string
	issuer     string
	audience   string
}

// NewRSATokenGenerator creates a new RSA token generator.
func NewRSATokenGenerator(privateKey *rsa.PrivateKey, keyID, issuer, audience string) *RSATokenGenerator {
	return &RSATokenGenerator{
		privateKey: privateKey,
		keyID:      keyID,
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateToken signs a token for the subject with the given lifetime and
// custom claims.
func (g *RSATokenGenerator) GenerateToken(subject string, expiry time.Duration, claims map[string]interface{}) (string, time.Time, error) {
	payload, expiresAt := baseClaims(g.issuer, g.audience, subject, expiry)
	payload = mergeClaims(payload, claims)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, payload)
	token.Header["kid"] = g.keyID

	tokenString, err := token.SignedString(g.privateKey)
	if err != nil {
		slog.Error("Failed to sign RSA JWT", "err", err)
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken verifies the RSA signature and time claims.
func (g *RSATokenGenerator) ParseToken(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &g.privateKey.PublicKey, nil
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

// GetKeyID returns the key ID used by this token generator.
func (g *RSATokenGenerator) GetKeyID() string {
	return g.keyID
}

// GetPublicKey returns the public key for this token generator.
func (g *RSATokenGenerator) GetPublicKey() *rsa.PublicKey {
	return &g.privateKey.PublicKey
}
