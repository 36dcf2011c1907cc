package jwks

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JWKSService holds the provider's signing keys. Exactly one key is active
// for signing at a time; rotated-out keys stay in the published set so
// outstanding tokens keep verifying until they expire.
type JWKSService struct {
	keys  []*KeyPair
	mutex sync.RWMutex
}

// NewJWKSService creates a service with a freshly generated 2048-bit key.
func NewJWKSService() (*JWKSService, error) {
	privateKey, err := GenerateRSAKeyPair(2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate initial RSA key pair: %w", err)
	}
	keyPair := &KeyPair{
		Kid:        uuid.New().String(),
		Alg:        "RS256",
		PrivateKey: privateKey,
		CreatedAt:  time.Now().UTC(),
		Active:     true,
	}
	slog.Info("Generated initial RSA signing key", "kid", keyPair.Kid)
	return &JWKSService{keys: []*KeyPair{keyPair}}, nil
}

// NewJWKSServiceWithKey creates a service seeded with a configured key.
func NewJWKSServiceWithKey(keyPair *KeyPair) (*JWKSService, error) {
	if keyPair == nil || keyPair.PrivateKey == nil {
		return nil, fmt.Errorf("key pair with private key is required")
	}
	seeded := *keyPair
	if seeded.Kid == "" {
		seeded.Kid = uuid.New().String()
	}
	if seeded.Alg == "" {
		seeded.Alg = "RS256"
	}
	seeded.Active = true
	return &JWKSService{keys: []*KeyPair{&seeded}}, nil
}

// GetJWKS returns the public keys in JWKS format.
func (s *JWKSService) GetJWKS() *JWKS {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	jwks := &JWKS{Keys: make([]JWK, 0, len(s.keys))}
	for _, keyPair := range s.keys {
		jwks.Keys = append(jwks.Keys, keyPair.ToJWK())
	}
	return jwks
}

// GetActiveSigningKey returns the key currently used for signing.
func (s *JWKSService) GetActiveSigningKey() (*KeyPair, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, keyPair := range s.keys {
		if keyPair.Active {
			return keyPair, nil
		}
	}
	return nil, fmt.Errorf("no active signing key")
}

// GetKeyByID returns the key with the given kid.
func (s *JWKSService) GetKeyByID(kid string) (*KeyPair, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, keyPair := range s.keys {
		if keyPair.Kid == kid {
			return keyPair, nil
		}
	}
	return nil, fmt.Errorf("key not found: %s", kid)
}

// RotateKeys generates a new key and makes it the active signer. The previous
// key stays published for verification.
func (s *JWKSService) RotateKeys() (*KeyPair, error) {
	privateKey, err := GenerateRSAKeyPair(2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	keyPair := &KeyPair{
		Kid:        uuid.New().String(),
		Alg:        "RS256",
		PrivateKey: privateKey,
		CreatedAt:  time.Now().UTC(),
		Active:     true,
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, existing := range s.keys {
		existing.Active = false
	}
	s.keys = append(s.keys, keyPair)

	slog.Info("Rotated signing keys", "new_active_kid", keyPair.Kid)
	return keyPair, nil
}
