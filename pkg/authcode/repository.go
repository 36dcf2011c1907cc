package authcode

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CodeRepository defines the data access operations for authorization codes.
type CodeRepository interface {
	// StoreCode persists a newly issued authorization code.
	StoreCode(ctx context.Context, code *AuthorizationCode) error

	// GetCode retrieves a code without consuming it.
	GetCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// ConsumeCode marks the code as consumed. The mark is atomic: under
	// concurrent redemption exactly one caller succeeds and all others
	// receive ErrCodeConsumed together with the stored record.
	ConsumeCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteExpired removes codes that expired before the cutoff and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// InMemoryCodeRepository implements CodeRepository using in-memory storage.
type InMemoryCodeRepository struct {
	codes map[string]*AuthorizationCode
	mutex sync.Mutex
}

// NewInMemoryCodeRepository creates an empty in-memory code repository.
func NewInMemoryCodeRepository() *InMemoryCodeRepository {
	return &InMemoryCodeRepository{
		codes: make(map[string]*AuthorizationCode),
	}
}

// StoreCode persists a newly issued authorization code.
func (r *InMemoryCodeRepository) StoreCode(ctx context.Context, code *AuthorizationCode) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.codes[code.Code]; exists {
		return fmt.Errorf("authorization code collision")
	}
	r.codes[code.Code] = code.clone()
	return nil
}

// GetCode retrieves a code without consuming it.
func (r *InMemoryCodeRepository) GetCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, exists := r.codes[code]
	if !exists {
		return nil, ErrCodeNotFound
	}
	return stored.clone(), nil
}

// ConsumeCode marks the code as consumed, atomically.
func (r *InMemoryCodeRepository) ConsumeCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, exists := r.codes[code]
	if !exists {
		return nil, ErrCodeNotFound
	}
	if stored.Consumed {
		return stored.clone(), ErrCodeConsumed
	}
	stored.Consumed = true
	return stored.clone(), nil
}

// DeleteExpired removes codes that expired before the cutoff.
func (r *InMemoryCodeRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var removed int64
	for key, stored := range r.codes {
		if stored.ExpiresAt.Before(cutoff) {
			delete(r.codes, key)
			removed++
		}
	}
	return removed, nil
}
