package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the accounts table read by Postgres.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id              TEXT PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	username        TEXT NOT NULL UNIQUE,
	password_hash   TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'active',
	failed_attempts INTEGER NOT NULL DEFAULT 0,
	locked_until    TIMESTAMPTZ,
	last_login      TIMESTAMPTZ
)`

const selectAccount = `
	SELECT id, email, username, password_hash, status, failed_attempts, locked_until, last_login
	FROM accounts
`

// Querier is the subset of pgxpool.Pool used by Postgres.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres reads accounts from the accounts table.
type Postgres struct {
	db Querier
}

// NewPostgres wraps an existing pool or connection.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects a pool to databaseURL and pings it.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(pool), pool, nil
}

// Migrate applies Schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply accounts schema: %w", err)
	}
	return nil
}

// Insert stores a new account. It is used for seeding.
func (p *Postgres) Insert(ctx context.Context, a authcore.Account) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO accounts (id, email, username, password_hash, status)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.Email, a.Username, a.PasswordHash, a.Status.String())
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (p *Postgres) GetAccountByEmail(ctx context.Context, email string) (authcore.Account, error) {
	return p.getAccount(ctx, selectAccount+`WHERE lower(email) = lower($1)`, email)
}

func (p *Postgres) GetAccountByUsername(ctx context.Context, username string) (authcore.Account, error) {
	return p.getAccount(ctx, selectAccount+`WHERE username = $1`, username)
}

func (p *Postgres) getAccount(ctx context.Context, query, arg string) (authcore.Account, error) {
	var (
		acct   authcore.Account
		status string
	)
	err := p.db.QueryRow(ctx, query, arg).Scan(
		&acct.ID,
		&acct.Email,
		&acct.Username,
		&acct.PasswordHash,
		&status,
		&acct.FailedAttempts,
		&acct.LockedUntil,
		&acct.LastLogin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authcore.Account{}, authcore.ErrAccountNotFound
		}
		return authcore.Account{}, fmt.Errorf("query account: %w", err)
	}

	acct.Status, err = parseStatus(status)
	if err != nil {
		return authcore.Account{}, err
	}
	return acct, nil
}

func (p *Postgres) UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE accounts SET last_login = $2 WHERE id = $1
	`, accountID, at.UTC())
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

func (p *Postgres) UpdateFailedAttempts(ctx context.Context, accountID string, count int, lockedUntil *time.Time) error {
	var until any
	if lockedUntil != nil {
		until = lockedUntil.UTC()
	}
	tag, err := p.db.Exec(ctx, `
		UPDATE accounts SET failed_attempts = $2, locked_until = $3 WHERE id = $1
	`, accountID, count, until)
	if err != nil {
		return fmt.Errorf("update failed attempts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

func parseStatus(s string) (authcore.AccountStatus, error) {
	switch s {
	case "active":
		return authcore.AccountActive, nil
	case "disabled":
		return authcore.AccountDisabled, nil
	default:
		return 0, fmt.Errorf("unknown account status %q", s)
	}
}
