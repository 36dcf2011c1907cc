package tokens

import (
	"context"
	"fmt"
	"sync"
)

// TokenRepository defines the data access operations for refresh tokens and
// access token revocation state.
type TokenRepository interface {
	// StoreRefreshToken persists a newly issued refresh token.
	StoreRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken retrieves a refresh token by its opaque value.
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)

	// RotateRefreshToken marks the token as rotated. The mark is atomic:
	// under concurrent refresh exactly one caller succeeds and the others
	// receive ErrTokenReused with the stored record.
	RotateRefreshToken(ctx context.Context, token string) (*RefreshToken, error)

	// RevokeFamily revokes every refresh token and access token record in
	// the family.
	RevokeFamily(ctx context.Context, familyID string) error

	// RevokeByCode revokes every refresh token and access token record
	// descending from the given authorization code.
	RevokeByCode(ctx context.Context, code string) error

	// StoreAccessToken records an issued access token for revocation checks.
	StoreAccessToken(ctx context.Context, record *AccessTokenRecord) error

	// IsAccessTokenRevoked reports whether the jti has been revoked.
	// Unknown jtis count as revoked; the provider only honors tokens it
	// has a record of.
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// InMemoryTokenRepository implements TokenRepository using in-memory storage.
type InMemoryTokenRepository struct {
	refreshTokens map[string]*RefreshToken
	accessTokens  map[string]*AccessTokenRecord
	mutex         sync.Mutex
}

// NewInMemoryTokenRepository creates an empty in-memory token repository.
func NewInMemoryTokenRepository() *InMemoryTokenRepository {
	return &InMemoryTokenRepository{
		refreshTokens: make(map[string]*RefreshToken),
		accessTokens:  make(map[string]*AccessTokenRecord),
	}
}

// StoreRefreshToken persists a newly issued refresh token.
func (r *InMemoryTokenRepository) StoreRefreshToken(ctx context.Context, token *RefreshToken) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.refreshTokens[token.Token]; exists {
		return fmt.Errorf("refresh token collision")
	}
	r.refreshTokens[token.Token] = token.clone()
	return nil
}

// GetRefreshToken retrieves a refresh token by its opaque value.
func (r *InMemoryTokenRepository) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, exists := r.refreshTokens[token]
	if !exists {
		return nil, ErrTokenNotFound
	}
	return stored.clone(), nil
}

// RotateRefreshToken marks the token as rotated, atomically.
func (r *InMemoryTokenRepository) RotateRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, exists := r.refreshTokens[token]
	if !exists {
		return nil, ErrTokenNotFound
	}
	if stored.Rotated {
		return stored.clone(), ErrTokenReused
	}
	stored.Rotated = true
	return stored.clone(), nil
}

// RevokeFamily revokes every token in the family.
func (r *InMemoryTokenRepository) RevokeFamily(ctx context.Context, familyID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, stored := range r.refreshTokens {
		if stored.FamilyID == familyID {
			stored.Revoked = true
		}
	}
	for _, record := range r.accessTokens {
		if record.FamilyID == familyID {
			record.Revoked = true
		}
	}
	return nil
}

// RevokeByCode revokes every token descending from the authorization code.
func (r *InMemoryTokenRepository) RevokeByCode(ctx context.Context, code string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, stored := range r.refreshTokens {
		if stored.CodeRef == code {
			stored.Revoked = true
		}
	}
	for _, record := range r.accessTokens {
		if record.CodeRef == code {
			record.Revoked = true
		}
	}
	return nil
}

// StoreAccessToken records an issued access token.
func (r *InMemoryTokenRepository) StoreAccessToken(ctx context.Context, record *AccessTokenRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	dup := *record
	r.accessTokens[record.JTI] = &dup
	return nil
}

// IsAccessTokenRevoked reports whether the jti has been revoked.
func (r *InMemoryTokenRepository) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	record, exists := r.accessTokens[jti]
	if !exists {
		return true, nil
	}
	return record.Revoked, nil
}
