package identity

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDatabase(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("openidp_db"),
		postgres.WithUsername("openidp"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, Schema)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

func TestPostgresUserRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo, err := NewPostgresUserRepository(pool)
	require.NoError(t, err)

	created, err := repo.CreateUser(ctx, &UserProfile{
		ID:            "user-1",
		Username:      "alice",
		PasswordHash:  "$2a$10$hash",
		Name:          "Alice Example",
		Email:         "alice@example.com",
		EmailVerified: true,
		Picture:       "https://cdn.example.com/alice.png",
	})
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	byID, err := repo.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.Equal(t, "Alice Example", byID.Name)
	assert.True(t, byID.EmailVerified)

	byUsername, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "user-1", byUsername.ID)

	_, err = repo.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgresCreateUserConflicts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo, err := NewPostgresUserRepository(pool)
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, &UserProfile{ID: "user-1", Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, &UserProfile{ID: "user-1", Username: "other", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = repo.CreateUser(ctx, &UserProfile{ID: "user-2", Username: "alice", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestNewPostgresUserRepositoryNilPool(t *testing.T) {
	_, err := NewPostgresUserRepository(nil)
	assert.Error(t, err)
}
