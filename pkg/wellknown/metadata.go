// Package wellknown serves OIDC discovery (OpenID Connect Discovery 1.0,
// RFC 8414) and the provider JWKS document.
package wellknown

// ProviderMetadata is the discovery document served at
// /.well-known/openid-configuration.
type ProviderMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JwksURI                           string   `json:"jwks_uri"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported,omitempty"`
}

// Config holds what the discovery document needs to know about the
// deployment.
type Config struct {
	// Issuer is the provider's canonical base URL.
	Issuer string

	// Scopes the provider supports.
	Scopes []string

	// SigningAlg is the ID token signing algorithm in use.
	SigningAlg string
}

// NewProviderMetadata builds the discovery document for the deployment.
func NewProviderMetadata(config Config) *ProviderMetadata {
	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	signingAlg := config.SigningAlg
	if signingAlg == "" {
		signingAlg = "RS256"
	}

	return &ProviderMetadata{
		Issuer:                            config.Issuer,
		AuthorizationEndpoint:             config.Issuer + "/authorize",
		TokenEndpoint:                     config.Issuer + "/token",
		UserinfoEndpoint:                  config.Issuer + "/userinfo",
		JwksURI:                           config.Issuer + "/jwks",
		RegistrationEndpoint:              config.Issuer + "/register",
		ScopesSupported:                   scopes,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{signingAlg},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
		CodeChallengeMethodsSupported:     []string{"S256", "plain"},
		ClaimsSupported: []string{
			"sub", "name", "preferred_username", "picture", "email", "email_verified",
		},
	}
}
