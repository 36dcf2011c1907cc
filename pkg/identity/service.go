package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CreateUserParams carries the attributes of a new user account.
type CreateUserParams struct {
	Username      string
	Password      string
	Name          string
	Email         string
	EmailVerified bool
	Picture       string
}

// UserService manages user accounts and password verification for the login
// page.
type UserService struct {
	repository UserRepository
}

// NewUserService creates a new user service backed by the given repository.
func NewUserService(repository UserRepository) *UserService {
	return &UserService{repository: repository}
}

// CreateUser registers a user with a bcrypt-hashed password.
func (s *UserService) CreateUser(ctx context.Context, params CreateUserParams) (*UserProfile, error) {
	if params.Username == "" || params.Password == "" {
		return nil, fmt.Errorf("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.repository.CreateUser(ctx, &UserProfile{
		ID:            uuid.New().String(),
		Username:      params.Username,
		PasswordHash:  string(hash),
		Name:          params.Name,
		Email:         params.Email,
		EmailVerified: params.EmailVerified,
		Picture:       params.Picture,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Created user", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Authenticate verifies a username and password pair. Unknown usernames and
// wrong passwords yield the same error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*UserProfile, error) {
	user, err := s.repository.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(ctx context.Context, userID string) (*UserProfile, error) {
	return s.repository.GetUser(ctx, userID)
}
