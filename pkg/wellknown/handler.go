package wellknown

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openidp/openidp/pkg/jwks"
)

// Handler serves the discovery and JWKS endpoints.
type Handler struct {
	metadata *ProviderMetadata
	keys     *jwks.JWKSService
}

// NewHandler creates a well-known endpoints handler.
func NewHandler(config Config, keys *jwks.JWKSService) *Handler {
	return &Handler{
		metadata: NewProviderMetadata(config),
		keys:     keys,
	}
}

// Routes mounts the discovery document and the JWKS endpoint.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/.well-known/openid-configuration", h.OpenIDConfiguration)
	r.Get("/.well-known/oauth-authorization-server", h.OpenIDConfiguration)
	r.Get("/jwks", h.JWKS)
}

// OpenIDConfiguration handles GET /.well-known/openid-configuration.
func (h *Handler) OpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := json.NewEncoder(w).Encode(h.metadata); err != nil {
		slog.Error("Failed to encode discovery document", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// JWKS handles GET /jwks with the provider's public signing keys.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := json.NewEncoder(w).Encode(h.keys.GetJWKS()); err != nil {
		slog.Error("Failed to encode JWKS", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
