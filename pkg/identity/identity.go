// Package identity holds the user accounts the provider authenticates and
// the profile attributes exposed through OIDC claims.
package identity

import "time"

// UserProfile is a provider-side user account. PasswordHash is a bcrypt hash
// used by the login page; it is never exposed through claims.
type UserProfile struct {
	ID            string
	Username      string
	PasswordHash  string
	Name          string
	Email         string
	EmailVerified bool
	Picture       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (u *UserProfile) clone() *UserProfile {
	dup := *u
	return &dup
}
