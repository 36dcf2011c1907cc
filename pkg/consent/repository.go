package consent

import (
	"context"
	"sync"
	"time"
)

// ConsentRepository defines the data access operations for stored consents.
type ConsentRepository interface {
	// GetConsent retrieves the consent for a user and client pair.
	GetConsent(ctx context.Context, userID, clientID string) (*Consent, error)

	// UpsertConsent stores the consent, replacing any previous record for
	// the same user and client pair.
	UpsertConsent(ctx context.Context, consent *Consent) (*Consent, error)

	// DeleteConsent removes the consent for a user and client pair.
	DeleteConsent(ctx context.Context, userID, clientID string) error
}

type consentKey struct {
	userID   string
	clientID string
}

// InMemoryConsentRepository implements ConsentRepository using in-memory
// storage.
type InMemoryConsentRepository struct {
	consents map[consentKey]*Consent
	mutex    sync.RWMutex
}

// NewInMemoryConsentRepository creates an empty in-memory consent repository.
func NewInMemoryConsentRepository() *InMemoryConsentRepository {
	return &InMemoryConsentRepository{
		consents: make(map[consentKey]*Consent),
	}
}

// GetConsent retrieves the consent for a user and client pair.
func (r *InMemoryConsentRepository) GetConsent(ctx context.Context, userID, clientID string) (*Consent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stored, exists := r.consents[consentKey{userID, clientID}]
	if !exists {
		return nil, ErrConsentNotFound
	}
	return stored.clone(), nil
}

// UpsertConsent stores the consent, replacing any previous record.
func (r *InMemoryConsentRepository) UpsertConsent(ctx context.Context, consent *Consent) (*Consent, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := consentKey{consent.UserID, consent.ClientID}
	stored := consent.clone()
	now := time.Now().UTC()
	if existing, exists := r.consents[key]; exists {
		stored.GrantedAt = existing.GrantedAt
	} else {
		stored.GrantedAt = now
	}
	stored.UpdatedAt = now
	r.consents[key] = stored

	return stored.clone(), nil
}

// DeleteConsent removes the consent for a user and client pair.
func (r *InMemoryConsentRepository) DeleteConsent(ctx context.Context, userID, clientID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := consentKey{userID, clientID}
	if _, exists := r.consents[key]; !exists {
		return ErrConsentNotFound
	}
	delete(r.consents, key)
	return nil
}
