package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ConsentService answers whether a user has authorized a client for a scope
// set and records new grants.
type ConsentService struct {
	repository ConsentRepository
}

// NewConsentService creates a new consent service backed by the given
// repository.
func NewConsentService(repository ConsentRepository) *ConsentService {
	return &ConsentService{repository: repository}
}

// HasConsented reports whether the user's stored grant covers every requested
// scope. A missing grant or any uncovered scope means fresh consent is
// needed.
func (s *ConsentService) HasConsented(ctx context.Context, userID, clientID string, requestedScopes []string) (bool, error) {
	stored, err := s.repository.GetConsent(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, ErrConsentNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up consent: %w", err)
	}
	return stored.Covers(requestedScopes), nil
}

// Record stores a grant of the given scopes, unioned with any scopes the user
// granted this client before. Recording the same scopes twice is a no-op.
func (s *ConsentService) Record(ctx context.Context, userID, clientID string, scopes []string) (*Consent, error) {
	if userID == "" || clientID == "" {
		return nil, fmt.Errorf("user and client are required")
	}

	granted := scopes
	stored, err := s.repository.GetConsent(ctx, userID, clientID)
	if err == nil {
		granted = unionScopes(stored.GrantedScopes, scopes)
	} else if !errors.Is(err, ErrConsentNotFound) {
		return nil, fmt.Errorf("failed to look up consent: %w", err)
	}

	updated, err := s.repository.UpsertConsent(ctx, &Consent{
		UserID:        userID,
		ClientID:      clientID,
		GrantedScopes: granted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record consent: %w", err)
	}

	slog.Info("Recorded consent", "user_id", userID, "client_id", clientID, "scopes", updated.GrantedScopes)
	return updated, nil
}

// Revoke removes the user's grant for the client. Subsequent authorization
// requests will prompt for consent again.
func (s *ConsentService) Revoke(ctx context.Context, userID, clientID string) error {
	if err := s.repository.DeleteConsent(ctx, userID, clientID); err != nil {
		return err
	}
	slog.Info("Revoked consent", "user_id", userID, "client_id", clientID)
	return nil
}

// Lookup returns the stored consent for a user and client pair.
func (s *ConsentService) Lookup(ctx context.Context, userID, clientID string) (*Consent, error) {
	return s.repository.GetConsent(ctx, userID, clientID)
}

func unionScopes(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, scope := range a {
		if _, ok := seen[scope]; !ok {
			seen[scope] = struct{}{}
			merged = append(merged, scope)
		}
	}
	for _, scope := range b {
		if _, ok := seen[scope]; !ok {
			seen[scope] = struct{}{}
			merged = append(merged, scope)
		}
	}
	sort.Strings(merged)
	return merged
}
