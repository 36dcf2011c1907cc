package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/openidp/openidp/pkg/authcode"
	"github.com/openidp/openidp/pkg/consent"
	"github.com/openidp/openidp/pkg/oauth2client"
	"github.com/openidp/openidp/pkg/pkce"
)

// AuthorizeRequest carries the parameters of an authorization request plus
// the requesting user's session state.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string

	// UserID is the authenticated session user, empty when not logged in.
	UserID string
}

// OutcomeKind classifies what the authorization endpoint should do next.
type OutcomeKind int

const (
	// OutcomeRedirect sends the user agent back to the client with a code.
	OutcomeRedirect OutcomeKind = iota

	// OutcomeLogin sends the user agent to the login page.
	OutcomeLogin

	// OutcomeConsent sends the user agent to the consent page.
	OutcomeConsent

	// OutcomeErrorRedirect reports the error to the client via redirect.
	OutcomeErrorRedirect

	// OutcomeErrorDirect renders the error to the user agent directly.
	// Used when the client or redirect URI cannot be trusted.
	OutcomeErrorDirect
)

// AuthorizeOutcome is the decision of the authorization state machine.
type AuthorizeOutcome struct {
	Kind        OutcomeKind
	RedirectURL string

	// ErrorCode and ErrorDescription are set for the error outcomes.
	ErrorCode        string
	ErrorDescription string

	// Client and Scopes are set for OutcomeConsent so the consent page can
	// describe what is being requested.
	Client *oauth2client.Client
	Scopes []string
}

// AuthorizeService is the authorization endpoint state machine. It validates
// requests, walks them through login and consent, and issues codes.
type AuthorizeService struct {
	clients  *oauth2client.ClientService
	codes    *authcode.CodeService
	consents *consent.ConsentService
}

// NewAuthorizeService creates the authorization state machine.
func NewAuthorizeService(clients *oauth2client.ClientService, codes *authcode.CodeService, consents *consent.ConsentService) *AuthorizeService {
	return &AuthorizeService{
		clients:  clients,
		codes:    codes,
		consents: consents,
	}
}

// Authorize runs one authorization request through the state machine.
//
// Client identity and redirect URI are validated before anything else; until
// both check out no error is ever reported by redirect. Once they are
// trusted, protocol errors go back to the client with the request state.
func (s *AuthorizeService) Authorize(ctx context.Context, req AuthorizeRequest) AuthorizeOutcome {
	client, err := s.clients.Lookup(ctx, req.ClientID)
	if err != nil {
		return AuthorizeOutcome{
			Kind:             OutcomeErrorDirect,
			ErrorCode:        ErrInvalidRequest,
			ErrorDescription: "unknown client_id",
		}
	}
	if req.RedirectURI == "" || !client.ValidateRedirectURI(req.RedirectURI) {
		// Redirecting here would hand the code or error to an
		// unregistered destination.
		return AuthorizeOutcome{
			Kind:             OutcomeErrorDirect,
			ErrorCode:        ErrInvalidRequest,
			ErrorDescription: "redirect_uri is not registered for this client",
		}
	}

	if req.ResponseType != "code" {
		return s.errorRedirect(req, ErrUnsupportedResponseType, "only the code response type is supported")
	}

	scopes := strings.Fields(req.Scope)
	if len(scopes) == 0 {
		return s.errorRedirect(req, ErrInvalidScope, "scope is required")
	}
	if !client.ValidateScope(scopes) {
		return s.errorRedirect(req, ErrInvalidScope, "requested scope exceeds client registration")
	}

	if req.CodeChallenge != "" && !pkce.ValidMethod(req.CodeChallengeMethod) {
		return s.errorRedirect(req, ErrInvalidRequest, "unsupported code_challenge_method")
	}
	if client.RequirePKCE && req.CodeChallenge == "" {
		return s.errorRedirect(req, ErrInvalidRequest, "code_challenge is required for this client")
	}

	if req.UserID == "" {
		return AuthorizeOutcome{Kind: OutcomeLogin, Client: client, Scopes: scopes}
	}

	// Trusted (first-party) clients skip the consent prompt.
	if !client.Trusted {
		consented, err := s.consents.HasConsented(ctx, req.UserID, client.ClientID, scopes)
		if err != nil {
			slog.Error("Consent lookup failed", "err", err)
			return s.errorRedirect(req, ErrServerError, "")
		}
		if !consented {
			return AuthorizeOutcome{Kind: OutcomeConsent, Client: client, Scopes: scopes}
		}
	}

	code, err := s.codes.Issue(ctx, authcode.IssueParams{
		ClientID:            client.ClientID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Nonce:               req.Nonce,
	})
	if err != nil {
		slog.Error("Failed to issue authorization code", "err", err)
		return s.errorRedirect(req, ErrServerError, "")
	}

	redirect, err := buildRedirect(req.RedirectURI, url.Values{
		"code":  {code.Code},
		"state": {req.State},
	})
	if err != nil {
		return s.errorRedirect(req, ErrServerError, "")
	}
	return AuthorizeOutcome{Kind: OutcomeRedirect, RedirectURL: redirect}
}

// Deny reports the user's refusal of consent back to the client. The
// redirect URI must already have been validated for the client.
func (s *AuthorizeService) Deny(ctx context.Context, req AuthorizeRequest) AuthorizeOutcome {
	if !s.clients.ValidateRedirectURI(ctx, req.ClientID, req.RedirectURI) {
		return AuthorizeOutcome{
			Kind:             OutcomeErrorDirect,
			ErrorCode:        ErrInvalidRequest,
			ErrorDescription: "redirect_uri is not registered for this client",
		}
	}
	return s.errorRedirect(req, ErrAccessDenied, "the user denied the authorization request")
}

// Approve records the user's consent and re-runs the authorization request.
func (s *AuthorizeService) Approve(ctx context.Context, req AuthorizeRequest) AuthorizeOutcome {
	if req.UserID == "" {
		return AuthorizeOutcome{Kind: OutcomeLogin}
	}
	scopes := strings.Fields(req.Scope)
	if _, err := s.consents.Record(ctx, req.UserID, req.ClientID, scopes); err != nil {
		slog.Error("Failed to record consent", "err", err)
		return AuthorizeOutcome{
			Kind:             OutcomeErrorDirect,
			ErrorCode:        ErrServerError,
			ErrorDescription: "failed to record consent",
		}
	}
	return s.Authorize(ctx, req)
}

func (s *AuthorizeService) errorRedirect(req AuthorizeRequest, code, description string) AuthorizeOutcome {
	params := url.Values{"error": {code}}
	if description != "" {
		params.Set("error_description", description)
	}
	if req.State != "" {
		params.Set("state", req.State)
	}
	redirect, err := buildRedirect(req.RedirectURI, params)
	if err != nil {
		return AuthorizeOutcome{
			Kind:             OutcomeErrorDirect,
			ErrorCode:        code,
			ErrorDescription: description,
		}
	}
	return AuthorizeOutcome{
		Kind:             OutcomeErrorRedirect,
		RedirectURL:      redirect,
		ErrorCode:        code,
		ErrorDescription: description,
	}
}

// buildRedirect appends params to the redirect URI's query, preserving any
// query the client registered. Empty values are dropped.
func buildRedirect(redirectURI string, params url.Values) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}
	query := u.Query()
	for key, values := range params {
		for _, value := range values {
			if value != "" {
				query.Set(key, value)
			}
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// RedeemErrorCode maps code redemption failures to the OAuth error code the
// token endpoint must return.
func RedeemErrorCode(err error) string {
	switch {
	case errors.Is(err, authcode.ErrCodeNotFound),
		errors.Is(err, authcode.ErrCodeExpired),
		errors.Is(err, authcode.ErrCodeConsumed),
		errors.Is(err, authcode.ErrClientMismatch),
		errors.Is(err, authcode.ErrRedirectMismatch),
		errors.Is(err, authcode.ErrPKCEMismatch):
		return ErrInvalidGrant
	default:
		return ErrServerError
	}
}
