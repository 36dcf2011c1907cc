package oauth2client

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the clients table. Deployments with a migration
// pipeline should mirror it there; tests apply it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS oauth2_clients (
    client_id                  TEXT PRIMARY KEY,
    secret_hash                TEXT NOT NULL DEFAULT '',
    client_name                TEXT NOT NULL,
    redirect_uris              TEXT[] NOT NULL,
    scopes                     TEXT[] NOT NULL,
    client_type                TEXT NOT NULL,
    token_endpoint_auth_method TEXT NOT NULL,
    require_pkce               BOOLEAN NOT NULL DEFAULT FALSE,
    trusted                    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresClientRepository implements ClientRepository using PostgreSQL.
type PostgresClientRepository struct {
	db *pgxpool.Pool
}

// NewPostgresClientRepository creates a PostgreSQL-backed client repository.
func NewPostgresClientRepository(db *pgxpool.Pool) (*PostgresClientRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresClientRepository{db: db}, nil
}

const clientColumns = `client_id, secret_hash, client_name, redirect_uris, scopes,
	client_type, token_endpoint_auth_method, require_pkce, trusted, created_at, updated_at`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ClientID, &c.SecretHash, &c.ClientName, &c.RedirectURIs, &c.Scopes,
		&c.ClientType, &c.TokenEndpointAuthMethod, &c.RequirePKCE, &c.Trusted, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClient retrieves a client by client ID.
func (r *PostgresClientRepository) GetClient(ctx context.Context, clientID string) (*Client, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM oauth2_clients WHERE client_id = $1`, clientID)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// CreateClient persists a new client and returns the stored record.
func (r *PostgresClientRepository) CreateClient(ctx context.Context, client *Client) (*Client, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO oauth2_clients (client_id, secret_hash, client_name, redirect_uris, scopes,
			client_type, token_endpoint_auth_method, require_pkce, trusted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+clientColumns,
		client.ClientID, client.SecretHash, client.ClientName, client.RedirectURIs, client.Scopes,
		client.ClientType, client.TokenEndpointAuthMethod, client.RequirePKCE, client.Trusted)
	created, err := scanClient(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return created, nil
}

// UpdateClient replaces an existing client record.
func (r *PostgresClientRepository) UpdateClient(ctx context.Context, client *Client) (*Client, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE oauth2_clients
		SET secret_hash = $2, client_name = $3, redirect_uris = $4, scopes = $5,
			client_type = $6, token_endpoint_auth_method = $7, require_pkce = $8,
			trusted = $9, updated_at = now()
		WHERE client_id = $1
		RETURNING `+clientColumns,
		client.ClientID, client.SecretHash, client.ClientName, client.RedirectURIs, client.Scopes,
		client.ClientType, client.TokenEndpointAuthMethod, client.RequirePKCE, client.Trusted)
	updated, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrClientNotFound, client.ClientID)
		}
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return updated, nil
}

// DeleteClient removes a client by client ID.
func (r *PostgresClientRepository) DeleteClient(ctx context.Context, clientID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM oauth2_clients WHERE client_id = $1`, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	return nil
}

// ListClients returns all registered clients.
func (r *PostgresClientRepository) ListClients(ctx context.Context) ([]*Client, error) {
	rows, err := r.db.Query(ctx, `SELECT `+clientColumns+` FROM oauth2_clients ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}
