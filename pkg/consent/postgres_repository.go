package consent

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the consents table.
const Schema = `
CREATE TABLE IF NOT EXISTS user_consents (
    user_id        TEXT NOT NULL,
    client_id      TEXT NOT NULL,
    granted_scopes TEXT[] NOT NULL,
    granted_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, client_id)
);`

// PostgresConsentRepository implements ConsentRepository using PostgreSQL.
type PostgresConsentRepository struct {
	db *pgxpool.Pool
}

// NewPostgresConsentRepository creates a PostgreSQL-backed consent repository.
func NewPostgresConsentRepository(db *pgxpool.Pool) (*PostgresConsentRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresConsentRepository{db: db}, nil
}

func scanConsent(row pgx.Row) (*Consent, error) {
	var c Consent
	err := row.Scan(&c.UserID, &c.ClientID, &c.GrantedScopes, &c.GrantedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConsent retrieves the consent for a user and client pair.
func (r *PostgresConsentRepository) GetConsent(ctx context.Context, userID, clientID string) (*Consent, error) {
	row := r.db.QueryRow(ctx, `
		SELECT user_id, client_id, granted_scopes, granted_at, updated_at
		FROM user_consents WHERE user_id = $1 AND client_id = $2`, userID, clientID)
	consent, err := scanConsent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsentNotFound
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return consent, nil
}

// UpsertConsent stores the consent, replacing any previous record.
func (r *PostgresConsentRepository) UpsertConsent(ctx context.Context, consent *Consent) (*Consent, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO user_consents (user_id, client_id, granted_scopes)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, client_id)
		DO UPDATE SET granted_scopes = EXCLUDED.granted_scopes, updated_at = now()
		RETURNING user_id, client_id, granted_scopes, granted_at, updated_at`,
		consent.UserID, consent.ClientID, consent.GrantedScopes)
	stored, err := scanConsent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert consent: %w", err)
	}
	return stored, nil
}

// DeleteConsent removes the consent for a user and client pair.
func (r *PostgresConsentRepository) DeleteConsent(ctx context.Context, userID, clientID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM user_consents WHERE user_id = $1 AND client_id = $2`, userID, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete consent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConsentNotFound
	}
	return nil
}
