package consent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasConsentedWithoutGrant(t *testing.T) {
	ctx := context.Background()
	service := NewConsentService(NewInMemoryConsentRepository())

	ok, err := service.HasConsented(ctx, "user-1", "client-1", []string{"openid"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordAndHasConsented(t *testing.T) {
	ctx := context.Background()
	service := NewConsentService(NewInMemoryConsentRepository())

	_, err := service.Record(ctx, "user-1", "client-1", []string{"openid", "profile"})
	require.NoError(t, err)

	ok, err := service.HasConsented(ctx, "user-1", "client-1", []string{"openid", "profile"})
	require.NoError(t, err)
	assert.True(t, ok)

	// A subset of the granted scopes is covered too.
	ok, err = service.HasConsented(ctx, "user-1", "client-1", []string{"openid"})
	require.NoError(t, err)
	assert.True(t, ok)

	// Any scope beyond the grant requires fresh consent.
	ok, err = service.HasConsented(ctx, "user-1", "client-1", []string{"openid", "email"})
	require.NoError(t, err)
	assert.False(t, ok)

	// Grants are scoped to the user and client pair.
	ok, err = service.HasConsented(ctx, "user-2", "client-1", []string{"openid"})
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = service.HasConsented(ctx, "user-1", "client-2", []string{"openid"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordUnionsScopes(t *testing.T) {
	ctx := context.Background()
	service := NewConsentService(NewInMemoryConsentRepository())

	_, err := service.Record(ctx, "user-1", "client-1", []string{"openid", "profile"})
	require.NoError(t, err)

	updated, err := service.Record(ctx, "user-1", "client-1", []string{"openid", "email"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"openid", "profile", "email"}, updated.GrantedScopes)

	ok, err := service.HasConsented(ctx, "user-1", "client-1", []string{"openid", "profile", "email"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordIdempotent(t *testing.T) {
	ctx := context.Background()
	service := NewConsentService(NewInMemoryConsentRepository())

	first, err := service.Record(ctx, "user-1", "client-1", []string{"openid"})
	require.NoError(t, err)

	second, err := service.Record(ctx, "user-1", "client-1", []string{"openid"})
	require.NoError(t, err)

	assert.Equal(t, first.GrantedScopes, second.GrantedScopes)
	assert.Equal(t, first.GrantedAt, second.GrantedAt, "GrantedAt marks the first grant")
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	service := NewConsentService(NewInMemoryConsentRepository())

	_, err := service.Record(ctx, "user-1", "client-1", []string{"openid"})
	require.NoError(t, err)

	require.NoError(t, service.Revoke(ctx, "user-1", "client-1"))

	ok, err := service.HasConsented(ctx, "user-1", "client-1", []string{"openid"})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, service.Revoke(ctx, "user-1", "client-1"), ErrConsentNotFound)
}
