package tokens

import "errors"

var (
	// ErrTokenNotFound is returned when no refresh token matches.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenExpired is returned when the refresh token is past expiry.
	ErrTokenExpired = errors.New("refresh token expired")

	// ErrTokenRevoked is returned when the refresh token or its family has
	// been revoked.
	ErrTokenRevoked = errors.New("refresh token revoked")

	// ErrTokenReused is returned when a rotated refresh token is presented
	// again. The whole family is revoked in response.
	ErrTokenReused = errors.New("refresh token reuse detected")

	// ErrClientMismatch is returned when the refreshing client is not the
	// client the token was issued to.
	ErrClientMismatch = errors.New("refresh token issued to a different client")

	// ErrInvalidAccessToken is returned when access token validation fails
	// for any reason: bad signature, expired, or revoked.
	ErrInvalidAccessToken = errors.New("invalid access token")
)
