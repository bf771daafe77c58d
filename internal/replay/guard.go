// Package replay enforces single-use, time-bounded request tokens.
package replay

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/config"
	"github.com/smallbiznis/rewardguard/internal/domain"
	"github.com/smallbiznis/rewardguard/internal/repository"
	"github.com/smallbiznis/rewardguard/internal/telemetry"
)

const tokenEntropy = 16

// Guard mints rotating tokens and claims them against a shared ledger.
type Guard struct {
	ledger    repository.TokenLedger
	node      *snowflake.Node
	ttl       time.Duration
	retention time.Duration
	minLength int
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option customises a Guard.
type Option func(*Guard)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard builds a Guard using the token settings from cfg.
func NewGuard(ledger repository.TokenLedger, node *snowflake.Node, cfg config.Config, logger *zap.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = zap.L()
	}
	g := &Guard{
		ledger:    ledger,
		node:      node,
		ttl:       cfg.XReqTTL,
		retention: cfg.XReqRetention,
		minLength: cfg.XReqMinLength,
		logger:    logger.Named("replay"),
		tracer:    telemetry.Tracer("replay"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TTL reports the lifetime given to newly minted tokens.
func (g *Guard) TTL() time.Duration { return g.ttl }

// Issue mints a new token for the account and records it in the ledger.
func (g *Guard) Issue(ctx context.Context, accountID int64) (domain.RotatingToken, error) {
	now := g.now().UTC()
	value, err := mintValue(now, accountID)
	if err != nil {
		return domain.RotatingToken{}, err
	}
	token := domain.RotatingToken{
		ID:        g.node.Generate().Int64(),
		AccountID: accountID,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.ledger.Issue(ctx, token); err != nil {
		return domain.RotatingToken{}, fmt.Errorf("record token: %w", err)
	}
	return token, nil
}

// mintValue returns hex(sha256(unix || account || random)).
func mintValue(now time.Time, accountID int64) (string, error) {
	random := make([]byte, tokenEntropy)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(now.Unix(), 10)))
	h.Write([]byte(strconv.FormatInt(accountID, 10)))
	h.Write(random)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WellFormed reports whether token passes the format precondition.
func (g *Guard) WellFormed(token string) bool {
	return len(token) >= g.minLength && strings.TrimSpace(token) == token
}

// Claim redeems token for the account. Only ClaimAccepted permits the request.
// A malformed token never reaches the ledger.
func (g *Guard) Claim(ctx context.Context, accountID int64, token string) (domain.ClaimOutcome, error) {
	ctx, span := g.tracer.Start(ctx, "ReplayGuard.Claim", trace.WithAttributes(
		attribute.Int64("account.id", accountID),
	))
	defer span.End()

	if !g.WellFormed(token) {
		span.SetAttributes(attribute.String("claim.outcome", domain.ClaimMalformed.String()))
		return domain.ClaimMalformed, nil
	}

	outcome, err := g.ledger.Claim(ctx, accountID, token, g.now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return 0, err
	}
	span.SetAttributes(attribute.String("claim.outcome", outcome.String()))
	if outcome != domain.ClaimAccepted {
		g.logger.Info("token rejected",
			zap.Int64("account_id", accountID),
			zap.String("outcome", outcome.String()),
			zap.String("token_prefix", prefix(token)),
		)
	}
	return outcome, nil
}

// Sweep purges tokens that expired more than the retention window ago.
// Failures are logged; correctness never depends on it.
func (g *Guard) Sweep(ctx context.Context) int64 {
	cutoff := g.now().UTC().Add(-g.retention)
	n, err := g.ledger.Sweep(ctx, cutoff)
	if err != nil {
		g.logger.Warn("token sweep failed", zap.Error(err), zap.Time("cutoff", cutoff))
		return 0
	}
	if n > 0 {
		g.logger.Info("token sweep", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return n
}

func prefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
