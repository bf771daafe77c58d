package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/rewardguard/internal/domain"
	"github.com/smallbiznis/rewardguard/internal/repository"
)

const tokenKeyPrefix = "xreq:"

// issueScript records a token hash only if the key is new.
var issueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'account', ARGV[1], 'exp', ARGV[2], 'used', '0')
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// claimScript checks and marks the token in one step.
// Returns 1 accepted, 0 unknown, 2 expired, 3 replay.
var claimScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'account', 'exp', 'used')
if not v[1] or v[1] ~= ARGV[1] then
  return 0
end
if tonumber(v[2]) <= tonumber(ARGV[2]) then
  return 2
end
if v[3] == '1' then
  return 3
end
redis.call('HSET', KEYS[1], 'used', '1', 'used_at', ARGV[2])
return 1
`)

// RedisTokenLedger implements TokenLedger on Redis hashes. Keys expire on
// their own once the retention window passes, so Sweep has nothing to do.
type RedisTokenLedger struct {
	client    redis.UniversalClient
	retention time.Duration
}

var _ repository.TokenLedger = (*RedisTokenLedger)(nil)

// NewRedisTokenLedger constructs a Redis-backed ledger.
func NewRedisTokenLedger(client redis.UniversalClient, retention time.Duration) *RedisTokenLedger {
	return &RedisTokenLedger{client: client, retention: retention}
}

func tokenKey(value string) string { return tokenKeyPrefix + value }

// Issue stores the token with a TTL covering its lifetime plus retention.
// The lifetime comes from the token itself so the caller's clock decides it.
func (l *RedisTokenLedger) Issue(ctx context.Context, token domain.RotatingToken) error {
	keep := l.retention + tokenLifetime(token)
	if keep <= 0 {
		return fmt.Errorf("issue token: non-positive key ttl %s", keep)
	}
	created, err := issueScript.Run(ctx, l.client, []string{tokenKey(token.Value)},
		strconv.FormatInt(token.AccountID, 10),
		strconv.FormatInt(token.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(keep.Milliseconds(), 10),
	).Int()
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	if created == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func tokenLifetime(token domain.RotatingToken) time.Duration {
	if token.IssuedAt.IsZero() {
		return 0
	}
	return max(token.ExpiresAt.Sub(token.IssuedAt), 0)
}

// Claim runs the claim script atomically on the server.
func (l *RedisTokenLedger) Claim(ctx context.Context, accountID int64, token string, now time.Time) (domain.ClaimOutcome, error) {
	res, err := claimScript.Run(ctx, l.client, []string{tokenKey(token)},
		strconv.FormatInt(accountID, 10),
		strconv.FormatInt(now.UnixMilli(), 10),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("claim token: %w", err)
	}
	switch res {
	case 1:
		return domain.ClaimAccepted, nil
	case 2:
		return domain.ClaimExpired, nil
	case 3:
		return domain.ClaimReplay, nil
	default:
		return domain.ClaimUnknown, nil
	}
}

// Sweep is a no-op; Redis expiry removes old tokens.
func (l *RedisTokenLedger) Sweep(context.Context, time.Time) (int64, error) {
	return 0, nil
}
