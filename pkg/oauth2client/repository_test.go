package oauth2client

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryClientRepository()

	client := &Client{
		ClientID:                "client-1",
		ClientName:              "First",
		RedirectURIs:            []string{"https://one.example.com/cb"},
		Scopes:                  []string{"openid"},
		ClientType:              ClientTypeConfidential,
		TokenEndpointAuthMethod: AuthMethodSecretBasic,
	}

	created, err := repo.CreateClient(ctx, client)
	if err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set on create")
	}

	if _, err := repo.CreateClient(ctx, client); !errors.Is(err, ErrClientExists) {
		t.Errorf("expected ErrClientExists, got %v", err)
	}

	got, err := repo.GetClient(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	if got.ClientName != "First" {
		t.Errorf("got name %q, want First", got.ClientName)
	}

	got.ClientName = "Mutated"
	again, _ := repo.GetClient(ctx, "client-1")
	if again.ClientName != "First" {
		t.Error("mutating a returned client must not change stored state")
	}

	got.ClientName = "Second"
	updated, err := repo.UpdateClient(ctx, got)
	if err != nil {
		t.Fatalf("UpdateClient failed: %v", err)
	}
	if updated.ClientName != "Second" {
		t.Errorf("got name %q, want Second", updated.ClientName)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("update must preserve CreatedAt")
	}

	list, err := repo.ListClients(ctx)
	if err != nil {
		t.Fatalf("ListClients failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d clients, want 1", len(list))
	}

	if err := repo.DeleteClient(ctx, "client-1"); err != nil {
		t.Fatalf("DeleteClient failed: %v", err)
	}
	if _, err := repo.GetClient(ctx, "client-1"); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("expected ErrClientNotFound, got %v", err)
	}
	if err := repo.DeleteClient(ctx, "client-1"); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("expected ErrClientNotFound on second delete, got %v", err)
	}
}

func TestInMemoryRepositoryUpdateMissing(t *testing.T) {
	repo := NewInMemoryClientRepository()
	_, err := repo.UpdateClient(context.Background(), &Client{ClientID: "ghost"})
	if !errors.Is(err, ErrClientNotFound) {
		t.Errorf("expected ErrClientNotFound, got %v", err)
	}
}
