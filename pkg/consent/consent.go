package consent

import (
	"time"

	"golang.org/x/exp/slices"
)

// Consent records the scopes a user has granted to one client. Grants
// accumulate: recording new scopes unions them with what was granted before.
type Consent struct {
	UserID        string
	ClientID      string
	GrantedScopes []string
	GrantedAt     time.Time
	UpdatedAt     time.Time
}

// Covers reports whether every requested scope has been granted.
func (c *Consent) Covers(requestedScopes []string) bool {
	for _, scope := range requestedScopes {
		if !slices.Contains(c.GrantedScopes, scope) {
			return false
		}
	}
	return true
}

func (c *Consent) clone() *Consent {
	dup := *c
	dup.GrantedScopes = slices.Clone(c.GrantedScopes)
	return &dup
}
