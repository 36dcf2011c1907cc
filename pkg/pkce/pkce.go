package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

// Method represents the PKCE code challenge method (RFC 7636).
type Method string

const (
	// MethodPlain sends the verifier as the challenge. Only kept for
	// clients that cannot compute SHA-256.
	MethodPlain Method = "plain"
	// MethodS256 is the SHA-256 challenge method and the only one
	// advertised in discovery metadata.
	MethodS256 Method = "S256"
)

const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// verifier alphabet per RFC 7636 section 4.1
const verifierChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// GenerateVerifier returns a cryptographically random code verifier.
// 32 random bytes base64url-encode to exactly 43 characters, the RFC minimum.
func GenerateVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ChallengeFrom derives the code challenge for a verifier using the given method.
func ChallengeFrom(verifier string, method Method) (string, error) {
	switch method {
	case MethodPlain:
		return verifier, nil
	case MethodS256:
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported challenge method: %s", method)
	}
}

// Verify checks a code verifier against the challenge recorded at authorization
// time. The comparison is constant-time so a verifier cannot be probed byte by
// byte against a stolen authorization code.
func Verify(verifier, challenge string, method Method) error {
	if verifier == "" {
		return fmt.Errorf("code verifier cannot be empty")
	}
	if challenge == "" {
		return fmt.Errorf("code challenge cannot be empty")
	}
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return fmt.Errorf("code verifier must be between %d and %d characters", minVerifierLength, maxVerifierLength)
	}
	if !validVerifier(verifier) {
		return fmt.Errorf("code verifier contains invalid characters")
	}

	derived, err := ChallengeFrom(verifier, method)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) != 1 {
		return fmt.Errorf("code verifier does not match challenge")
	}
	return nil
}

// ValidMethod reports whether the given string names a supported challenge method.
func ValidMethod(method string) bool {
	return method == string(MethodPlain) || method == string(MethodS256)
}

func validVerifier(verifier string) bool {
	for _, r := range verifier {
		if !strings.ContainsRune(verifierChars, r) {
			return false
		}
	}
	return true
}
