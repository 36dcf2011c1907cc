package authcode

import "errors"

var (
	// ErrCodeNotFound is returned when no authorization code matches.
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrCodeExpired is returned when the code is past its expiry.
	ErrCodeExpired = errors.New("authorization code expired")

	// ErrCodeConsumed is returned when the code was already redeemed.
	// Callers should treat this as a replay and revoke tokens issued
	// for the first redemption.
	ErrCodeConsumed = errors.New("authorization code already consumed")

	// ErrClientMismatch is returned when the redeeming client is not the
	// client the code was issued to.
	ErrClientMismatch = errors.New("authorization code issued to a different client")

	// ErrRedirectMismatch is returned when the redirect_uri presented at
	// redemption differs from the one bound at issuance.
	ErrRedirectMismatch = errors.New("redirect_uri does not match authorization request")

	// ErrPKCEMismatch is returned when the code_verifier fails PKCE
	// verification against the bound challenge.
	ErrPKCEMismatch = errors.New("PKCE verification failed")
)
