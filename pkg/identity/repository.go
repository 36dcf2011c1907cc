package identity

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// UserRepository defines the data access operations for user accounts.
type UserRepository interface {
	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID string) (*UserProfile, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*UserProfile, error)

	// CreateUser persists a new user and returns the stored record.
	CreateUser(ctx context.Context, user *UserProfile) (*UserProfile, error)
}

// InMemoryUserRepository implements UserRepository using in-memory storage.
type InMemoryUserRepository struct {
	users      map[string]*UserProfile
	byUsername map[string]string
	mutex      sync.RWMutex
}

// NewInMemoryUserRepository creates an empty in-memory user repository.
func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:      make(map[string]*UserProfile),
		byUsername: make(map[string]string),
	}
}

// GetUser retrieves a user by ID.
func (r *InMemoryUserRepository) GetUser(ctx context.Context, userID string) (*UserProfile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	user, exists := r.users[userID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return user.clone(), nil
}

// GetUserByUsername retrieves a user by username.
func (r *InMemoryUserRepository) GetUserByUsername(ctx context.Context, username string) (*UserProfile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	userID, exists := r.byUsername[username]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return r.users[userID].clone(), nil
}

// CreateUser persists a new user and returns the stored record.
func (r *InMemoryUserRepository) CreateUser(ctx context.Context, user *UserProfile) (*UserProfile, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, user.ID)
	}
	if _, exists := r.byUsername[user.Username]; exists {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, user.Username)
	}

	stored := user.clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.users[user.ID] = stored
	r.byUsername[user.Username] = user.ID

	return stored.clone(), nil
}
