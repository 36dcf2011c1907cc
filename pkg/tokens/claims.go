package tokens

import (
	"github.com/openidp/openidp/pkg/identity"
	"golang.org/x/exp/slices"
)

// ClaimMapper derives the OIDC claims released for a user, filtered by the
// granted scopes. Deployments can plug in a custom mapper to add claims from
// other attribute sources.
type ClaimMapper func(user *identity.UserProfile, scopes []string) map[string]interface{}

// DefaultClaimMapper releases the standard profile and email claims.
//
// The openid scope alone releases nothing beyond sub; profile releases name,
// preferred_username and picture; email releases email and email_verified.
func DefaultClaimMapper(user *identity.UserProfile, scopes []string) map[string]interface{} {
	claims := make(map[string]interface{})

	if slices.Contains(scopes, "profile") {
		if user.Name != "" {
			claims["name"] = user.Name
		}
		if user.Username != "" {
			claims["preferred_username"] = user.Username
		}
		if user.Picture != "" {
			claims["picture"] = user.Picture
		}
	}
	if slices.Contains(scopes, "email") {
		if user.Email != "" {
			claims["email"] = user.Email
			claims["email_verified"] = user.EmailVerified
		}
	}
	return claims
}
