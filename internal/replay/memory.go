package replay

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/rewardguard/internal/domain"
	"github.com/smallbiznis/rewardguard/internal/repository"
)

var _ repository.TokenLedger = (*MemoryLedger)(nil)

// MemoryLedger is a process-local TokenLedger for single-instance deployments.
type MemoryLedger struct {
	mu     sync.Mutex
	tokens map[string]domain.RotatingToken
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{tokens: make(map[string]domain.RotatingToken)}
}

func (m *MemoryLedger) Issue(_ context.Context, token domain.RotatingToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token.Value]; ok {
		return repository.ErrDuplicate
	}
	m.tokens[token.Value] = token
	return nil
}

func (m *MemoryLedger) Claim(_ context.Context, accountID int64, value string, now time.Time) (domain.ClaimOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[value]
	if !ok || token.AccountID != accountID {
		return domain.ClaimUnknown, nil
	}
	if token.Expired(now) {
		return domain.ClaimExpired, nil
	}
	if token.Used {
		return domain.ClaimReplay, nil
	}
	usedAt := now
	token.Used = true
	token.UsedAt = &usedAt
	m.tokens[value] = token
	return domain.ClaimAccepted, nil
}

func (m *MemoryLedger) Sweep(_ context.Context, expiredBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for value, token := range m.tokens {
		if token.ExpiresAt.Before(expiredBefore) {
			delete(m.tokens, value)
			n++
		}
	}
	return n, nil
}

// Len reports how many tokens are held.
func (m *MemoryLedger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}
