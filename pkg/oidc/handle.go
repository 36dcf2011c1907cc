package oidc

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	"github.com/openidp/openidp/pkg/authcode"
	"github.com/openidp/openidp/pkg/identity"
	"github.com/openidp/openidp/pkg/oauth2client"
	"github.com/openidp/openidp/pkg/tokens"
)

const sessionCookieName = "idp_session"

// Handle wires the OIDC endpoints to the underlying services.
type Handle struct {
	authorize   *AuthorizeService
	clients     *oauth2client.ClientService
	codes       *authcode.CodeService
	issuer      *tokens.Issuer
	users       *identity.UserService
	sessionAuth *jwtauth.JWTAuth
	sessionTTL  time.Duration
	loginPath   string
	consentPath string
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithSessionTTL overrides the login session lifetime.
func WithSessionTTL(ttl time.Duration) HandleOption {
	return func(h *Handle) { h.sessionTTL = ttl }
}

// NewHandle creates the OIDC HTTP handler set.
func NewHandle(authorize *AuthorizeService, clients *oauth2client.ClientService, codes *authcode.CodeService,
	issuer *tokens.Issuer, users *identity.UserService, sessionAuth *jwtauth.JWTAuth, opts ...HandleOption) *Handle {
	handle := &Handle{
		authorize:   authorize,
		clients:     clients,
		codes:       codes,
		issuer:      issuer,
		users:       users,
		sessionAuth: sessionAuth,
		sessionTTL:  time.Hour,
		loginPath:   "/login",
		consentPath: "/consent",
	}
	for _, opt := range opts {
		opt(handle)
	}
	return handle
}

// Routes mounts every endpoint on the router.
func (h *Handle) Routes(r chi.Router) {
	r.Get("/authorize", h.Authorize)
	r.Post("/token", h.Token)
	r.Get("/userinfo", h.UserInfo)
	r.Post("/userinfo", h.UserInfo)
	r.Post("/register", h.Register)

	r.Get(h.loginPath, h.LoginPage)
	r.Post(h.loginPath, h.LoginSubmit)
	r.Get(h.consentPath, h.ConsentPage)
	r.Post(h.consentPath, h.ConsentSubmit)
}

// sessionUserID returns the authenticated user of the request, or empty.
func (h *Handle) sessionUserID(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	token, err := jwtauth.VerifyToken(h.sessionAuth, cookie.Value)
	if err != nil {
		return ""
	}
	claims, err := token.AsMap(r.Context())
	if err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

func (h *Handle) setSessionCookie(w http.ResponseWriter, userID string) error {
	_, tokenString, err := h.sessionAuth.Encode(map[string]interface{}{
		"sub": userID,
		"exp": time.Now().Add(h.sessionTTL).Unix(),
		"iat": time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessionTTL.Seconds()),
	})
	return nil
}

func authorizeRequestFromValues(values url.Values, userID string) AuthorizeRequest {
	return AuthorizeRequest{
		ResponseType:        values.Get("response_type"),
		ClientID:            values.Get("client_id"),
		RedirectURI:         values.Get("redirect_uri"),
		Scope:               values.Get("scope"),
		State:               values.Get("state"),
		CodeChallenge:       values.Get("code_challenge"),
		CodeChallengeMethod: values.Get("code_challenge_method"),
		Nonce:               values.Get("nonce"),
		UserID:              userID,
	}
}

// Authorize is the authorization endpoint.
func (h *Handle) Authorize(w http.ResponseWriter, r *http.Request) {
	req := authorizeRequestFromValues(r.URL.Query(), h.sessionUserID(r))
	outcome := h.authorize.Authorize(r.Context(), req)
	h.writeAuthorizeOutcome(w, r, outcome)
}

func (h *Handle) writeAuthorizeOutcome(w http.ResponseWriter, r *http.Request, outcome AuthorizeOutcome) {
	switch outcome.Kind {
	case OutcomeRedirect, OutcomeErrorRedirect:
		http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
	case OutcomeLogin:
		returnTo := r.URL.RequestURI()
		http.Redirect(w, r, h.loginPath+"?return_to="+url.QueryEscape(returnTo), http.StatusFound)
	case OutcomeConsent:
		http.Redirect(w, r, h.consentPath+"?"+r.URL.RawQuery, http.StatusFound)
	default:
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: outcome.ErrorCode, ErrorDescription: outcome.ErrorDescription})
	}
}

// clientCredentials extracts client authentication from the Basic header or
// the form body. Form values in Basic credentials are URL-encoded per RFC
// 6749 section 2.3.1.
func clientCredentials(r *http.Request) (clientID, clientSecret string, basicUsed bool) {
	if id, secret, ok := r.BasicAuth(); ok {
		if decoded, err := url.QueryUnescape(id); err == nil {
			id = decoded
		}
		if decoded, err := url.QueryUnescape(secret); err == nil {
			secret = decoded
		}
		return id, secret, true
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret"), false
}

func (h *Handle) tokenError(w http.ResponseWriter, r *http.Request, status int, code, description string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	if code == ErrInvalidClient && status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: code, ErrorDescription: description})
}

// Token is the token endpoint. It supports the authorization_code and
// refresh_token grants.
func (h *Handle) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.tokenError(w, r, http.StatusBadRequest, ErrInvalidRequest, "malformed form body")
		return
	}

	clientID, clientSecret, _ := clientCredentials(r)
	if clientID == "" {
		h.tokenError(w, r, http.StatusUnauthorized, ErrInvalidClient, "client authentication required")
		return
	}
	client, err := h.clients.Authenticate(r.Context(), clientID, clientSecret)
	if err != nil {
		h.tokenError(w, r, http.StatusUnauthorized, ErrInvalidClient, "client authentication failed")
		return
	}

	switch r.PostFormValue("grant_type") {
	case "authorization_code":
		h.tokenForCode(w, r, client)
	case "refresh_token":
		h.tokenForRefresh(w, r, client)
	default:
		h.tokenError(w, r, http.StatusBadRequest, ErrUnsupportedGrantType, "")
	}
}

func (h *Handle) tokenForCode(w http.ResponseWriter, r *http.Request, client *oauth2client.Client) {
	code := r.PostFormValue("code")
	if code == "" {
		h.tokenError(w, r, http.StatusBadRequest, ErrInvalidRequest, "code is required")
		return
	}

	grant, err := h.codes.Redeem(r.Context(), code, client.ClientID,
		r.PostFormValue("redirect_uri"), r.PostFormValue("code_verifier"))
	if err != nil {
		if errors.Is(err, authcode.ErrCodeConsumed) {
			// Replay of a consumed code: revoke everything issued for
			// its first redemption.
			if revokeErr := h.issuer.RevokeByCode(r.Context(), code); revokeErr != nil {
				slog.Error("Failed to revoke tokens for replayed code", "err", revokeErr)
			}
		}
		h.tokenError(w, r, http.StatusBadRequest, RedeemErrorCode(err), "")
		return
	}

	response, err := h.issuer.IssueForCode(r.Context(), grant)
	if err != nil {
		slog.Error("Token issuance failed", "err", err)
		h.tokenError(w, r, http.StatusInternalServerError, ErrServerError, "")
		return
	}
	h.writeTokenResponse(w, r, response)
}

func (h *Handle) tokenForRefresh(w http.ResponseWriter, r *http.Request, client *oauth2client.Client) {
	refreshToken := r.PostFormValue("refresh_token")
	if refreshToken == "" {
		h.tokenError(w, r, http.StatusBadRequest, ErrInvalidRequest, "refresh_token is required")
		return
	}

	response, err := h.issuer.Refresh(r.Context(), refreshToken, client.ClientID)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrTokenNotFound),
			errors.Is(err, tokens.ErrTokenExpired),
			errors.Is(err, tokens.ErrTokenRevoked),
			errors.Is(err, tokens.ErrTokenReused),
			errors.Is(err, tokens.ErrClientMismatch):
			h.tokenError(w, r, http.StatusBadRequest, ErrInvalidGrant, "")
		default:
			slog.Error("Refresh failed", "err", err)
			h.tokenError(w, r, http.StatusInternalServerError, ErrServerError, "")
		}
		return
	}
	h.writeTokenResponse(w, r, response)
}

func (h *Handle) writeTokenResponse(w http.ResponseWriter, r *http.Request, response *tokens.TokenResponse) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	render.JSON(w, r, response)
}

// UserInfo is the UserInfo endpoint. It accepts the access token as a Bearer
// credential.
func (h *Handle) UserInfo(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="userinfo"`)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: ErrInvalidToken, ErrorDescription: "bearer token required"})
		return
	}

	info, err := h.issuer.UserInfo(r.Context(), token)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: ErrInvalidToken})
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	render.JSON(w, r, info)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return ""
}

// RegisterRequest is the dynamic client registration request body (RFC 7591
// subset).
type RegisterRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	Scope                   string   `json:"scope,omitempty"`
	ClientType              string   `json:"client_type,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

// RegisterResponse is the dynamic client registration response body.
type RegisterResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	Scope                   string   `json:"scope"`
	ClientType              string   `json:"client_type"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
}

// Register is the dynamic client registration endpoint.
func (h *Handle) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: ErrInvalidRequest, ErrorDescription: "malformed request body"})
		return
	}

	registration, err := h.clients.Register(r.Context(), oauth2client.RegisterParams{
		ClientName:              req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		Scopes:                  strings.Fields(req.Scope),
		ClientType:              req.ClientType,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
	})
	if err != nil {
		if errors.Is(err, oauth2client.ErrInvalidMetadata) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "invalid_client_metadata", ErrorDescription: err.Error()})
			return
		}
		slog.Error("Client registration failed", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: ErrServerError})
		return
	}

	var response RegisterResponse
	if err := copier.Copy(&response, registration.Client); err != nil {
		slog.Error("Failed to build registration response", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: ErrServerError})
		return
	}
	response.ClientSecret = registration.ClientSecret
	response.Scope = strings.Join(registration.Client.Scopes, " ")
	response.ClientIDIssuedAt = registration.Client.CreatedAt.Unix()

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response)
}

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html><head><title>Sign in</title></head><body>
<h1>Sign in</h1>
{{if .Error}}<p>{{.Error}}</p>{{end}}
<form method="post">
<input type="hidden" name="return_to" value="{{.ReturnTo}}">
<label>Username <input name="username" autocomplete="username"></label>
<label>Password <input type="password" name="password" autocomplete="current-password"></label>
<button type="submit">Sign in</button>
</form>
</body></html>`))

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html><head><title>Authorize {{.ClientName}}</title></head><body>
<h1>Authorize {{.ClientName}}</h1>
<p>{{.ClientName}} is requesting access to:</p>
<ul>{{range .Scopes}}<li>{{.}}</li>{{end}}</ul>
<form method="post">
{{range $key, $values := .Params}}{{range $values}}<input type="hidden" name="{{$key}}" value="{{.}}">{{end}}{{end}}
<button type="submit" name="action" value="approve">Allow</button>
<button type="submit" name="action" value="deny">Deny</button>
</form>
</body></html>`))

// LoginPage renders the login form.
func (h *Handle) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r.URL.Query().Get("return_to"), "")
}

func (h *Handle) renderLogin(w http.ResponseWriter, returnTo, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginTemplate.Execute(w, map[string]interface{}{
		"ReturnTo": returnTo,
		"Error":    errMsg,
	}); err != nil {
		slog.Error("Failed to render login page", "err", err)
	}
}

// LoginSubmit verifies the credentials and establishes a session.
func (h *Handle) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	returnTo := r.PostFormValue("return_to")
	user, err := h.users.Authenticate(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		h.renderLogin(w, returnTo, "Invalid username or password")
		return
	}

	if err := h.setSessionCookie(w, user.ID); err != nil {
		slog.Error("Failed to issue session", "err", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	// Only same-site paths are valid continuations.
	if returnTo == "" || !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") {
		returnTo = "/"
	}
	http.Redirect(w, r, returnTo, http.StatusFound)
}

// ConsentPage shows the user what the client is asking for.
func (h *Handle) ConsentPage(w http.ResponseWriter, r *http.Request) {
	if h.sessionUserID(r) == "" {
		returnTo := r.URL.RequestURI()
		http.Redirect(w, r, h.loginPath+"?return_to="+url.QueryEscape(returnTo), http.StatusFound)
		return
	}

	query := r.URL.Query()
	client, err := h.clients.Lookup(r.Context(), query.Get("client_id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: ErrInvalidRequest, ErrorDescription: "unknown client_id"})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := consentTemplate.Execute(w, map[string]interface{}{
		"ClientName": client.ClientName,
		"Scopes":     strings.Fields(query.Get("scope")),
		"Params":     map[string][]string(query),
	}); err != nil {
		slog.Error("Failed to render consent page", "err", err)
	}
}

// ConsentSubmit records the user's decision and continues the flow.
func (h *Handle) ConsentSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	userID := h.sessionUserID(r)
	if userID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	req := authorizeRequestFromValues(r.PostForm, userID)
	var outcome AuthorizeOutcome
	if r.PostFormValue("action") == "approve" {
		outcome = h.authorize.Approve(r.Context(), req)
	} else {
		outcome = h.authorize.Deny(r.Context(), req)
	}
	h.writeAuthorizeOutcome(w, r, outcome)
}
