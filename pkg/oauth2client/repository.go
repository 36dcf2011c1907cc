package oauth2client

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ClientRepository defines the data access operations for registered clients.
type ClientRepository interface {
	// GetClient retrieves a client by client ID.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// CreateClient persists a new client and returns the stored record.
	CreateClient(ctx context.Context, client *Client) (*Client, error)

	// UpdateClient replaces an existing client record.
	UpdateClient(ctx context.Context, client *Client) (*Client, error)

	// DeleteClient removes a client by client ID.
	DeleteClient(ctx context.Context, clientID string) error

	// ListClients returns all registered clients.
	ListClients(ctx context.Context) ([]*Client, error)
}

// InMemoryClientRepository implements ClientRepository using in-memory storage.
type InMemoryClientRepository struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

// NewInMemoryClientRepository creates an empty in-memory client repository.
func NewInMemoryClientRepository() *InMemoryClientRepository {
	return &InMemoryClientRepository{
		clients: make(map[string]*Client),
	}
}

// GetClient retrieves a client by client ID.
func (r *InMemoryClientRepository) GetClient(ctx context.Context, clientID string) (*Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	client, exists := r.clients[clientID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	return client.clone(), nil
}

// CreateClient persists a new client and returns the stored record.
func (r *InMemoryClientRepository) CreateClient(ctx context.Context, client *Client) (*Client, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.clients[client.ClientID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrClientExists, client.ClientID)
	}

	stored := client.clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.clients[client.ClientID] = stored

	return stored.clone(), nil
}

// UpdateClient replaces an existing client record.
func (r *InMemoryClientRepository) UpdateClient(ctx context.Context, client *Client) (*Client, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	existing, exists := r.clients[client.ClientID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, client.ClientID)
	}

	stored := client.clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	r.clients[client.ClientID] = stored

	return stored.clone(), nil
}

// DeleteClient removes a client by client ID.
func (r *InMemoryClientRepository) DeleteClient(ctx context.Context, clientID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.clients[clientID]; !exists {
		return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	delete(r.clients, clientID)
	return nil
}

// ListClients returns all registered clients.
func (r *InMemoryClientRepository) ListClients(ctx context.Context) ([]*Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client.clone())
	}
	return clients, nil
}
