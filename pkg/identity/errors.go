package identity

import "errors"

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when creating a user whose ID or username
	// is taken.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidPassword is returned when password verification fails.
	ErrInvalidPassword = errors.New("invalid username or password")
)
