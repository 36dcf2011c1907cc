package oauth2client

import "errors"

var (
	// ErrClientNotFound is returned when no client exists for the given ID.
	ErrClientNotFound = errors.New("client not found")

	// ErrClientExists is returned when creating a client whose ID is taken.
	ErrClientExists = errors.New("client already exists")

	// ErrInvalidMetadata is returned when registration metadata is missing
	// required fields or contains malformed redirect URIs.
	ErrInvalidMetadata = errors.New("invalid client metadata")

	// ErrInvalidCredentials is returned when client authentication fails.
	// Callers must not distinguish between unknown client and wrong secret.
	ErrInvalidCredentials = errors.New("invalid client credentials")
)
