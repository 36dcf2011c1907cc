package authcode

import "time"

// AuthorizationCode is a single-use grant binding a user's authorization to
// one client, one redirect URI and one scope set. Once Consumed is set the
// code can never be redeemed again; a second redemption attempt is treated as
// a replay.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	ExpiresAt           time.Time
	Consumed            bool
	CreatedAt           time.Time
}

// Expired reports whether the code is past its expiry at time now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c *AuthorizationCode) clone() *AuthorizationCode {
	dup := *c
	dup.Scopes = append([]string(nil), c.Scopes...)
	return &dup
}
