package tokens

import "time"

// RefreshToken is an opaque, single-use credential. Tokens form families:
// every rotation issues a new token in the same family, and detecting reuse
// of a rotated token revokes the whole family.
type RefreshToken struct {
	Token     string
	FamilyID  string
	ClientID  string
	UserID    string
	Scopes    []string
	CodeRef   string
	ExpiresAt time.Time
	Rotated   bool
	Revoked   bool
	CreatedAt time.Time
}

func (t *RefreshToken) clone() *RefreshToken {
	dup := *t
	dup.Scopes = append([]string(nil), t.Scopes...)
	return &dup
}

// AccessTokenRecord tracks an issued access token by its jti so revocation
// can take effect before the JWT expires on its own.
type AccessTokenRecord struct {
	JTI       string
	FamilyID  string
	ClientID  string
	UserID    string
	CodeRef   string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// TokenResponse is the token endpoint response body defined by RFC 6749 and
// OIDC Core.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}
