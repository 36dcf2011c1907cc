package tokens

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the refresh and access token tables.
const Schema = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
    token      TEXT PRIMARY KEY,
    family_id  TEXT NOT NULL,
    client_id  TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    scopes     TEXT[] NOT NULL,
    code_ref   TEXT NOT NULL DEFAULT '',
    expires_at TIMESTAMPTZ NOT NULL,
    rotated    BOOLEAN NOT NULL DEFAULT FALSE,
    revoked    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_family ON refresh_tokens (family_id);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_code_ref ON refresh_tokens (code_ref);

CREATE TABLE IF NOT EXISTS access_tokens (
    jti        TEXT PRIMARY KEY,
    family_id  TEXT NOT NULL,
    client_id  TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    code_ref   TEXT NOT NULL DEFAULT '',
    expires_at TIMESTAMPTZ NOT NULL,
    revoked    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_access_tokens_family ON access_tokens (family_id);
CREATE INDEX IF NOT EXISTS idx_access_tokens_code_ref ON access_tokens (code_ref);`

// PostgresTokenRepository implements TokenRepository using PostgreSQL.
type PostgresTokenRepository struct {
	db *pgxpool.Pool
}

// NewPostgresTokenRepository creates a PostgreSQL-backed token repository.
func NewPostgresTokenRepository(db *pgxpool.Pool) (*PostgresTokenRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresTokenRepository{db: db}, nil
}

const refreshColumns = `token, family_id, client_id, user_id, scopes, code_ref,
	expires_at, rotated, revoked, created_at`

func scanRefreshToken(row pgx.Row) (*RefreshToken, error) {
	var t RefreshToken
	err := row.Scan(&t.Token, &t.FamilyID, &t.ClientID, &t.UserID, &t.Scopes, &t.CodeRef,
		&t.ExpiresAt, &t.Rotated, &t.Revoked, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// StoreRefreshToken persists a newly issued refresh token.
func (r *PostgresTokenRepository) StoreRefreshToken(ctx context.Context, token *RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (token, family_id, client_id, user_id, scopes, code_ref, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.Token, token.FamilyID, token.ClientID, token.UserID, token.Scopes, token.CodeRef, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token by its opaque value.
func (r *PostgresTokenRepository) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE token = $1`, token)
	stored, err := scanRefreshToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return stored, nil
}

// RotateRefreshToken marks the token as rotated. The conditional UPDATE
// guarantees a single winner under concurrent refresh.
func (r *PostgresTokenRepository) RotateRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE refresh_tokens SET rotated = TRUE
		WHERE token = $1 AND rotated = FALSE
		RETURNING `+refreshColumns, token)
	stored, err := scanRefreshToken(row)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	stored, err = r.GetRefreshToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return stored, ErrTokenReused
}

// RevokeFamily revokes every token in the family.
func (r *PostgresTokenRepository) RevokeFamily(ctx context.Context, familyID string) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE family_id = $1`, familyID); err != nil {
		return fmt.Errorf("failed to revoke refresh token family: %w", err)
	}
	if _, err := r.db.Exec(ctx,
		`UPDATE access_tokens SET revoked = TRUE WHERE family_id = $1`, familyID); err != nil {
		return fmt.Errorf("failed to revoke access token family: %w", err)
	}
	return nil
}

// RevokeByCode revokes every token descending from the authorization code.
func (r *PostgresTokenRepository) RevokeByCode(ctx context.Context, code string) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE code_ref = $1`, code); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens by code: %w", err)
	}
	if _, err := r.db.Exec(ctx,
		`UPDATE access_tokens SET revoked = TRUE WHERE code_ref = $1`, code); err != nil {
		return fmt.Errorf("failed to revoke access tokens by code: %w", err)
	}
	return nil
}

// StoreAccessToken records an issued access token.
func (r *PostgresTokenRepository) StoreAccessToken(ctx context.Context, record *AccessTokenRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO access_tokens (jti, family_id, client_id, user_id, code_ref, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.JTI, record.FamilyID, record.ClientID, record.UserID, record.CodeRef, record.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store access token record: %w", err)
	}
	return nil
}

// IsAccessTokenRevoked reports whether the jti has been revoked.
func (r *PostgresTokenRepository) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := r.db.QueryRow(ctx,
		`SELECT revoked FROM access_tokens WHERE jti = $1`, jti).Scan(&revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("failed to check access token revocation: %w", err)
	}
	return revoked, nil
}
