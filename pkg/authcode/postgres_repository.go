package authcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the authorization codes table.
const Schema = `
CREATE TABLE IF NOT EXISTS authorization_codes (
    code                  TEXT PRIMARY KEY,
    client_id             TEXT NOT NULL,
    user_id               TEXT NOT NULL,
    redirect_uri          TEXT NOT NULL,
    scopes                TEXT[] NOT NULL,
    code_challenge        TEXT NOT NULL DEFAULT '',
    code_challenge_method TEXT NOT NULL DEFAULT '',
    nonce                 TEXT NOT NULL DEFAULT '',
    expires_at            TIMESTAMPTZ NOT NULL,
    consumed              BOOLEAN NOT NULL DEFAULT FALSE,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_authorization_codes_expires_at ON authorization_codes (expires_at);`

// PostgresCodeRepository implements CodeRepository using PostgreSQL.
type PostgresCodeRepository struct {
	db *pgxpool.Pool
}

// NewPostgresCodeRepository creates a PostgreSQL-backed code repository.
func NewPostgresCodeRepository(db *pgxpool.Pool) (*PostgresCodeRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresCodeRepository{db: db}, nil
}

const codeColumns = `code, client_id, user_id, redirect_uri, scopes,
	code_challenge, code_challenge_method, nonce, expires_at, consumed, created_at`

func scanCode(row pgx.Row) (*AuthorizationCode, error) {
	var c AuthorizationCode
	err := row.Scan(&c.Code, &c.ClientID, &c.UserID, &c.RedirectURI, &c.Scopes,
		&c.CodeChallenge, &c.CodeChallengeMethod, &c.Nonce, &c.ExpiresAt, &c.Consumed, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// StoreCode persists a newly issued authorization code.
func (r *PostgresCodeRepository) StoreCode(ctx context.Context, code *AuthorizationCode) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO authorization_codes (code, client_id, user_id, redirect_uri, scopes,
			code_challenge, code_challenge_method, nonce, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		code.Code, code.ClientID, code.UserID, code.RedirectURI, code.Scopes,
		code.CodeChallenge, code.CodeChallengeMethod, code.Nonce, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store authorization code: %w", err)
	}
	return nil
}

// GetCode retrieves a code without consuming it.
func (r *PostgresCodeRepository) GetCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+codeColumns+` FROM authorization_codes WHERE code = $1`, code)
	stored, err := scanCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	return stored, nil
}

// ConsumeCode marks the code as consumed. The conditional UPDATE guarantees a
// single winner even under concurrent redemption; losers fall through to the
// plain SELECT and report ErrCodeConsumed with the stored record.
func (r *PostgresCodeRepository) ConsumeCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE authorization_codes SET consumed = TRUE
		WHERE code = $1 AND consumed = FALSE
		RETURNING `+codeColumns, code)
	stored, err := scanCode(row)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	stored, err = r.GetCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return stored, ErrCodeConsumed
}

// DeleteExpired removes codes that expired before the cutoff.
func (r *PostgresCodeRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM authorization_codes WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired authorization codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
