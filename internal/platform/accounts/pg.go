package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG stores accounts in the accounts table (migrations/002_accounts.sql).
type PG struct {
	pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func (p *PG) CreateUserAccount(ctx context.Context, email, password string, profile Profile) (*Account, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	prof, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	acct := &Account{UID: uuid.New().String(), Email: normalizeEmail(email), Profile: profile}
	err = p.pool.QueryRow(ctx, `
		INSERT INTO accounts (uid, email, password_hash, profile)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING created_at`,
		acct.UID, acct.Email, hash, string(prof)).Scan(&acct.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return acct, nil
}

func (p *PG) DeleteAccount(ctx context.Context, uid string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM accounts WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PG) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	var (
		acct Account
		hash []byte
		prof []byte
	)
	err := p.pool.QueryRow(ctx, `
		SELECT uid, email, password_hash, profile, created_at
		FROM accounts WHERE email = $1`, normalizeEmail(email)).
		Scan(&acct.UID, &acct.Email, &hash, &prof, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if err := checkPassword(hash, password); err != nil {
		return nil, err
	}
	if len(prof) > 0 {
		if err := json.Unmarshal(prof, &acct.Profile); err != nil {
			return nil, fmt.Errorf("unmarshal profile: %w", err)
		}
	}
	return &acct, nil
}
