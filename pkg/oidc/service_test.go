package oidc

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openidp/openidp/pkg/authcode"
	"github.com/openidp/openidp/pkg/consent"
	"github.com/openidp/openidp/pkg/oauth2client"
)

type serviceFixture struct {
	service  *AuthorizeService
	clients  *oauth2client.ClientService
	codes    *authcode.CodeService
	consents *consent.ConsentService
	client   *oauth2client.Client
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	clients := oauth2client.NewClientService(oauth2client.NewInMemoryClientRepository())
	codes := authcode.NewCodeService(authcode.NewInMemoryCodeRepository())
	consents := consent.NewConsentService(consent.NewInMemoryConsentRepository())

	reg, err := clients.Register(context.Background(), oauth2client.RegisterParams{
		ClientName:   "Web App",
		RedirectURIs: []string{"https://app.example.com/callback"},
		Scopes:       []string{"openid", "profile", "email"},
	})
	require.NoError(t, err)

	return &serviceFixture{
		service:  NewAuthorizeService(clients, codes, consents),
		clients:  clients,
		codes:    codes,
		consents: consents,
		client:   reg.Client,
	}
}

func (f *serviceFixture) request() AuthorizeRequest {
	return AuthorizeRequest{
		ResponseType: "code",
		ClientID:     f.client.ClientID,
		RedirectURI:  "https://app.example.com/callback",
		Scope:        "openid profile",
		State:        "st-123",
		UserID:       "user-1",
	}
}

func redirectQuery(t *testing.T, rawURL string) url.Values {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query()
}

func TestAuthorizeUnknownClientIsDirectError(t *testing.T) {
	f := newServiceFixture(t)

	req := f.request()
	req.ClientID = "unknown"
	outcome := f.service.Authorize(context.Background(), req)

	assert.Equal(t, OutcomeErrorDirect, outcome.Kind)
	assert.Equal(t, ErrInvalidRequest, outcome.ErrorCode)
	assert.Empty(t, outcome.RedirectURL, "unknown clients never receive a redirect")
}

func TestAuthorizeUnregisteredRedirectIsDirectError(t *testing.T) {
	f := newServiceFixture(t)

	for _, uri := range []string{
		"",
		"https://evil.example.com/callback",
		"https://app.example.com/callback/deeper",
	} {
		req := f.request()
		req.RedirectURI = uri
		outcome := f.service.Authorize(context.Background(), req)
		assert.Equal(t, OutcomeErrorDirect, outcome.Kind, "redirect_uri %q", uri)
	}
}

func TestAuthorizeUnsupportedResponseType(t *testing.T) {
	f := newServiceFixture(t)

	req := f.request()
	req.ResponseType = "token"
	outcome := f.service.Authorize(context.Background(), req)

	assert.Equal(t, OutcomeErrorRedirect, outcome.Kind)
	query := redirectQuery(t, outcome.RedirectURL)
	assert.Equal(t, ErrUnsupportedResponseType, query.Get("error"))
	assert.Equal(t, "st-123", query.Get("state"), "state is echoed on error redirects")
}

func TestAuthorizeInvalidScope(t *testing.T) {
	f := newServiceFixture(t)

	req := f.request()
	req.Scope = "openid admin"
	outcome := f.service.Authorize(context.Background(), req)

	assert.Equal(t, OutcomeErrorRedirect, outcome.Kind)
	assert.Equal(t, ErrInvalidScope, redirectQuery(t, outcome.RedirectURL).Get("error"))
}

func TestAuthorizeNeedsLogin(t *testing.T) {
	f := newServiceFixture(t)

	req := f.request()
	req.UserID = ""
	outcome := f.service.Authorize(context.Background(), req)

	assert.Equal(t, OutcomeLogin, outcome.Kind)
}

func TestAuthorizeNeedsConsent(t *testing.T) {
	f := newServiceFixture(t)

	outcome := f.service.Authorize(context.Background(), f.request())
	assert.Equal(t, OutcomeConsent, outcome.Kind)
	require.NotNil(t, outcome.Client)
	assert.Equal(t, f.client.ClientID, outcome.Client.ClientID)
	assert.Equal(t, []string{"openid", "profile"}, outcome.Scopes)
}

func TestAuthorizeWithPriorConsentIssuesCode(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	_, err := f.consents.Record(ctx, "user-1", f.client.ClientID, []string{"openid", "profile"})
	require.NoError(t, err)

	outcome := f.service.Authorize(ctx, f.request())
	require.Equal(t, OutcomeRedirect, outcome.Kind)

	query := redirectQuery(t, outcome.RedirectURL)
	assert.Equal(t, "st-123", query.Get("state"))
	code := query.Get("code")
	require.NotEmpty(t, code)
	assert.True(t, strings.HasPrefix(outcome.RedirectURL, "https://app.example.com/callback?"))

	grant, err := f.codes.Redeem(ctx, code, f.client.ClientID, "https://app.example.com/callback", "")
	require.NoError(t, err)
	assert.Equal(t, "user-1", grant.UserID)
	assert.Equal(t, []string{"openid", "profile"}, grant.Scopes)
}

func TestAuthorizeConsentSupersetPrompts(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	_, err := f.consents.Record(ctx, "user-1", f.client.ClientID, []string{"openid"})
	require.NoError(t, err)

	req := f.request()
	req.Scope = "openid email"
	outcome := f.service.Authorize(ctx, req)
	assert.Equal(t, OutcomeConsent, outcome.Kind, "scopes beyond the stored grant require fresh consent")
}

func TestAuthorizeTrustedClientSkipsConsent(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	reg, err := f.clients.Register(ctx, oauth2client.RegisterParams{
		ClientName:   "First Party",
		RedirectURIs: []string{"https://first.example.com/cb"},
		Scopes:       []string{"openid", "profile"},
		Trusted:      true,
	})
	require.NoError(t, err)

	req := AuthorizeRequest{
		ResponseType: "code",
		ClientID:     reg.Client.ClientID,
		RedirectURI:  "https://first.example.com/cb",
		Scope:        "openid",
		UserID:       "user-1",
	}
	outcome := f.service.Authorize(ctx, req)
	assert.Equal(t, OutcomeRedirect, outcome.Kind)
}

func TestAuthorizePKCERequiredForPublicClient(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	reg, err := f.clients.Register(ctx, oauth2client.RegisterParams{
		ClientName:   "Native App",
		RedirectURIs: []string{"http://127.0.0.1:8912/cb"},
		Scopes:       []string{"openid"},
		ClientType:   oauth2client.ClientTypePublic,
	})
	require.NoError(t, err)

	req := AuthorizeRequest{
		ResponseType: "code",
		ClientID:     reg.Client.ClientID,
		RedirectURI:  "http://127.0.0.1:8912/cb",
		Scope:        "openid",
		State:        "st-1",
		UserID:       "user-1",
	}
	outcome := f.service.Authorize(ctx, req)
	require.Equal(t, OutcomeErrorRedirect, outcome.Kind)
	assert.Equal(t, ErrInvalidRequest, redirectQuery(t, outcome.RedirectURL).Get("error"))
}

func TestAuthorizeRejectsBadChallengeMethod(t *testing.T) {
	f := newServiceFixture(t)

	req := f.request()
	req.CodeChallenge = "challenge-value"
	req.CodeChallengeMethod = "S512"
	outcome := f.service.Authorize(context.Background(), req)

	require.Equal(t, OutcomeErrorRedirect, outcome.Kind)
	assert.Equal(t, ErrInvalidRequest, redirectQuery(t, outcome.RedirectURL).Get("error"))
}

func TestApproveRecordsConsentAndIssuesCode(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	outcome := f.service.Approve(ctx, f.request())
	require.Equal(t, OutcomeRedirect, outcome.Kind)
	assert.NotEmpty(t, redirectQuery(t, outcome.RedirectURL).Get("code"))

	granted, err := f.consents.HasConsented(ctx, "user-1", f.client.ClientID, []string{"openid", "profile"})
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestDenyRedirectsWithAccessDenied(t *testing.T) {
	f := newServiceFixture(t)

	outcome := f.service.Deny(context.Background(), f.request())
	require.Equal(t, OutcomeErrorRedirect, outcome.Kind)

	query := redirectQuery(t, outcome.RedirectURL)
	assert.Equal(t, ErrAccessDenied, query.Get("error"))
	assert.Equal(t, "st-123", query.Get("state"))
}

func TestDenyWithForgedRedirectIsDirectError(t *testing.T) {
	f := newServiceFixture(t)

	req := f.request()
	req.RedirectURI = "https://evil.example.com/cb"
	outcome := f.service.Deny(context.Background(), req)
	assert.Equal(t, OutcomeErrorDirect, outcome.Kind)
}

func TestRedirectPreservesRegisteredQuery(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	reg, err := f.clients.Register(ctx, oauth2client.RegisterParams{
		ClientName:   "Query App",
		RedirectURIs: []string{"https://app.example.com/cb?tenant=acme"},
		Scopes:       []string{"openid"},
		Trusted:      true,
	})
	require.NoError(t, err)

	outcome := f.service.Authorize(ctx, AuthorizeRequest{
		ResponseType: "code",
		ClientID:     reg.Client.ClientID,
		RedirectURI:  "https://app.example.com/cb?tenant=acme",
		Scope:        "openid",
		UserID:       "user-1",
	})
	require.Equal(t, OutcomeRedirect, outcome.Kind)

	query := redirectQuery(t, outcome.RedirectURL)
	assert.Equal(t, "acme", query.Get("tenant"))
	assert.NotEmpty(t, query.Get("code"))
}
