package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smallbiznis/rewardguard/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("repository: duplicate")

// DBTX is the subset of pgx used by the Postgres repositories.
// *pgxpool.Pool, *pgx.Conn and pgx.Tx all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository exposes the minimal account fields the core touches.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (domain.Account, error)
	GetByDeviceID(ctx context.Context, deviceID string) (domain.Account, error)
	Create(ctx context.Context, account domain.Account) (domain.Account, error)
	TouchLogin(ctx context.Context, id int64, at time.Time) error
}

// SecretRepository stores one sealed master secret per account.
type SecretRepository interface {
	// Upsert overwrites any previous secret for the account.
	Upsert(ctx context.Context, secret domain.SealedSecret) error
	Get(ctx context.Context, accountID int64) (domain.SealedSecret, error)
}

// TokenLedger records rotating tokens and enforces single use.
type TokenLedger interface {
	Issue(ctx context.Context, token domain.RotatingToken) error
	// Claim atomically marks the token used. Exactly one concurrent caller
	// can observe ClaimAccepted for a given token.
	Claim(ctx context.Context, accountID int64, token string, now time.Time) (domain.ClaimOutcome, error)
	// Sweep deletes rows whose expiry is before the threshold.
	Sweep(ctx context.Context, expiredBefore time.Time) (int64, error)
}

// SecurityLogRepository appends advisory telemetry rows.
type SecurityLogRepository interface {
	InsertMetric(ctx context.Context, metric domain.SecurityMetric) error
	InsertViolation(ctx context.Context, violation domain.SecurityViolation) error
}
