// Package jwks manages the provider's RSA signing keys and publishes their
// public halves as a JSON Web Key Set (RFC 7517).
package jwks

import (
	"crypto/rsa"
	"time"
)

// JWKS represents a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a single RSA public key in JWK form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg,omitempty"`

	// N and E are the base64url encoded modulus and exponent.
	N string `json:"n"`
	E string `json:"e"`
}

// KeyPair is an RSA signing key with metadata. The private half never leaves
// this package except through PrivateKey for the token signer.
type KeyPair struct {
	Kid        string
	Alg        string
	PrivateKey *rsa.PrivateKey
	CreatedAt  time.Time
	Active     bool
}

// PublicKey returns the public half of the pair.
func (kp *KeyPair) PublicKey() *rsa.PublicKey {
	return &kp.PrivateKey.PublicKey
}

// ToJWK converts the key pair to its public JWK representation.
func (kp *KeyPair) ToJWK() JWK {
	pub := kp.PublicKey()
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kp.Kid,
		Alg: kp.Alg,
		N:   EncodeRSAPublicKeyModulus(pub),
		E:   EncodeRSAPublicKeyExponent(pub),
	}
}
