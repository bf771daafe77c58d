package securitylog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/domain"
	"github.com/smallbiznis/rewardguard/internal/securitylog"
)

type memoryLogRepo struct {
	mu         sync.Mutex
	metrics    []domain.SecurityMetric
	violations []domain.SecurityViolation
	err        error
	block      chan struct{}
}

func (m *memoryLogRepo) InsertMetric(_ context.Context, metric domain.SecurityMetric) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, metric)
	return m.err
}

func (m *memoryLogRepo) InsertViolation(_ context.Context, v domain.SecurityViolation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = append(m.violations, v)
	return m.err
}

func TestRecorderWritesOnStop(t *testing.T) {
	repo := &memoryLogRepo{}
	rec := securitylog.NewRecorder(repo, 16, zap.NewNop())
	rec.Start()

	rec.Metric(domain.SecurityMetric{AccountID: 1, Route: "balance", HeadersCount: 5})
	rec.Violation(domain.SecurityViolation{Route: "echo", ViolationType: "XREQ_REPLAY_DETECTED"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rec.Stop(ctx))

	require.Len(t, repo.metrics, 1)
	require.Len(t, repo.violations, 1)
	require.False(t, repo.metrics[0].CreatedAt.IsZero())
	require.Equal(t, "XREQ_REPLAY_DETECTED", repo.violations[0].ViolationType)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	repo := &memoryLogRepo{}
	rec := securitylog.NewRecorder(repo, 2, zap.NewNop())

	// Not started: the buffer fills and further entries drop without blocking.
	for i := 0; i < 5; i++ {
		rec.Metric(domain.SecurityMetric{Route: "balance"})
	}
	require.EqualValues(t, 3, rec.Dropped())

	require.NoError(t, rec.Stop(context.Background()))
	require.Len(t, repo.metrics, 2)
}

func TestRecorderIgnoresStoreErrors(t *testing.T) {
	repo := &memoryLogRepo{err: errors.New("db down")}
	rec := securitylog.NewRecorder(repo, 4, zap.NewNop())
	rec.Start()

	rec.Violation(domain.SecurityViolation{Route: "echo"})
	require.NoError(t, rec.Stop(context.Background()))
	require.Len(t, repo.violations, 1)
}

func TestRecorderAfterStopDoesNotPanic(t *testing.T) {
	rec := securitylog.NewRecorder(&memoryLogRepo{}, 1, zap.NewNop())
	require.NoError(t, rec.Stop(context.Background()))

	require.NotPanics(t, func() {
		rec.Metric(domain.SecurityMetric{Route: "balance"})
	})
	require.EqualValues(t, 1, rec.Dropped())
}

func TestRecorderStopHonoursContext(t *testing.T) {
	repo := &memoryLogRepo{block: make(chan struct{})}
	rec := securitylog.NewRecorder(repo, 4, zap.NewNop())
	rec.Start()
	rec.Metric(domain.SecurityMetric{Route: "balance"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, rec.Stop(ctx), context.DeadlineExceeded)

	close(repo.block)
}
