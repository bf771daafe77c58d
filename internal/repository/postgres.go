package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smallbiznis/rewardguard/internal/domain"
)

// Compile-time interface assertions.
var (
	_ AccountRepository     = (*PostgresAccountRepo)(nil)
	_ SecretRepository      = (*PostgresSecretRepo)(nil)
	_ TokenLedger           = (*PostgresTokenLedger)(nil)
	_ SecurityLogRepository = (*PostgresSecurityLogRepo)(nil)
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// PostgresAccountRepo implements AccountRepository.
type PostgresAccountRepo struct {
	db DBTX
}

func NewPostgresAccountRepo(db DBTX) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const accountColumns = `id, device_id, external_id, points, created_at, last_login_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.DeviceID, &a.ExternalID, &a.Points, &a.CreatedAt, &a.LastLoginAt); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

func (r *PostgresAccountRepo) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *PostgresAccountRepo) GetByDeviceID(ctx context.Context, deviceID string) (domain.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE device_id = $1`, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("get account by device: %w", err)
	}
	return a, nil
}

const insertAccountSQL = `INSERT INTO accounts (id, device_id, external_id, points, created_at, last_login_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + accountColumns

func (r *PostgresAccountRepo) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	created, err := scanAccount(r.db.QueryRow(ctx, insertAccountSQL,
		account.ID,
		account.DeviceID,
		account.ExternalID,
		account.Points,
		account.CreatedAt,
		account.LastLoginAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Account{}, ErrDuplicate
		}
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

func (r *PostgresAccountRepo) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE accounts SET last_login_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}

// PostgresSecretRepo implements SecretRepository.
type PostgresSecretRepo struct {
	db DBTX
}

func NewPostgresSecretRepo(db DBTX) *PostgresSecretRepo {
	return &PostgresSecretRepo{db: db}
}

const upsertSecretSQL = `INSERT INTO master_secrets (account_id, sealed_secret, sealed_salt, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (account_id) DO UPDATE
SET sealed_secret = EXCLUDED.sealed_secret,
    sealed_salt = EXCLUDED.sealed_salt,
    updated_at = EXCLUDED.updated_at`

func (r *PostgresSecretRepo) Upsert(ctx context.Context, secret domain.SealedSecret) error {
	at := secret.UpdatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := r.db.Exec(ctx, upsertSecretSQL, secret.AccountID, secret.SealedSecret, secret.SealedSalt, at); err != nil {
		return fmt.Errorf("upsert master secret: %w", err)
	}
	return nil
}

func (r *PostgresSecretRepo) Get(ctx context.Context, accountID int64) (domain.SealedSecret, error) {
	var s domain.SealedSecret
	err := r.db.QueryRow(ctx,
		`SELECT account_id, sealed_secret, sealed_salt, created_at, updated_at FROM master_secrets WHERE account_id = $1`,
		accountID,
	).Scan(&s.AccountID, &s.SealedSecret, &s.SealedSalt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SealedSecret{}, ErrNotFound
		}
		return domain.SealedSecret{}, fmt.Errorf("get master secret: %w", err)
	}
	return s, nil
}

// PostgresTokenLedger implements TokenLedger on the xreq_tokens table.
type PostgresTokenLedger struct {
	db DBTX
}

func NewPostgresTokenLedger(db DBTX) *PostgresTokenLedger {
	return &PostgresTokenLedger{db: db}
}

const insertTokenSQL = `INSERT INTO xreq_tokens (id, account_id, token, issued_at, expires_at, used)
VALUES ($1, $2, $3, $4, $5, FALSE)`

func (l *PostgresTokenLedger) Issue(ctx context.Context, token domain.RotatingToken) error {
	if _, err := l.db.Exec(ctx, insertTokenSQL, token.ID, token.AccountID, token.Value, token.IssuedAt, token.ExpiresAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("issue token: %w", err)
	}
	return nil
}

// The guard on used/expires_at makes check-and-mark a single statement;
// concurrent claimers serialize on the row lock and only one sees a row.
const claimTokenSQL = `UPDATE xreq_tokens
SET used = TRUE, used_at = $3
WHERE token = $1 AND account_id = $2 AND used = FALSE AND expires_at > $3
RETURNING id`

const classifyTokenSQL = `SELECT used, expires_at FROM xreq_tokens WHERE token = $1 AND account_id = $2`

func (l *PostgresTokenLedger) Claim(ctx context.Context, accountID int64, token string, now time.Time) (domain.ClaimOutcome, error) {
	var id int64
	err := l.db.QueryRow(ctx, claimTokenSQL, token, accountID, now).Scan(&id)
	if err == nil {
		return domain.ClaimAccepted, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("claim token: %w", err)
	}

	// The claim already failed; this read only explains why.
	var (
		used      bool
		expiresAt time.Time
	)
	err = l.db.QueryRow(ctx, classifyTokenSQL, token, accountID).Scan(&used, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClaimUnknown, nil
		}
		return 0, fmt.Errorf("classify token: %w", err)
	}
	if !now.Before(expiresAt) {
		return domain.ClaimExpired, nil
	}
	if used {
		return domain.ClaimReplay, nil
	}
	// Row exists, unused and live, yet the guarded update missed it: a
	// concurrent claimer holds it. Treat as replay.
	return domain.ClaimReplay, nil
}

func (l *PostgresTokenLedger) Sweep(ctx context.Context, expiredBefore time.Time) (int64, error) {
	tag, err := l.db.Exec(ctx, `DELETE FROM xreq_tokens WHERE expires_at < $1`, expiredBefore)
	if err != nil {
		return 0, fmt.Errorf("sweep tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresSecurityLogRepo implements SecurityLogRepository.
type PostgresSecurityLogRepo struct {
	db DBTX
}

func NewPostgresSecurityLogRepo(db DBTX) *PostgresSecurityLogRepo {
	return &PostgresSecurityLogRepo{db: db}
}

func (r *PostgresSecurityLogRepo) InsertMetric(ctx context.Context, m domain.SecurityMetric) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO security_metrics (account_id, route, headers_count, encrypted, created_at) VALUES (NULLIF($1::bigint, 0), $2, $3, $4, $5)`,
		m.AccountID, m.Route, m.HeadersCount, m.Encrypted, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert security metric: %w", err)
	}
	return nil
}

func (r *PostgresSecurityLogRepo) InsertViolation(ctx context.Context, v domain.SecurityViolation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO security_violations (account_id, route, violation_type, message, created_at) VALUES (NULLIF($1::bigint, 0), $2, $3, $4, $5)`,
		v.AccountID, v.Route, v.ViolationType, v.Message, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert security violation: %w", err)
	}
	return nil
}
