// Package sweeper periodically purges expired rotating tokens.
package sweeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Target is implemented by replay.Guard.
type Target interface {
	Sweep(ctx context.Context) int64
}

// Sweeper runs Target.Sweep on a fixed interval.
type Sweeper struct {
	target   Target
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Sweeper. A non-positive interval disables the loop.
func New(target Target, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.L()
	}
	return &Sweeper{target: target, interval: interval, logger: logger.Named("sweeper")}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) int64 {
	n := s.target.Sweep(ctx)
	if n > 0 {
		s.logger.Info("swept expired tokens", zap.Int64("count", n))
	}
	return n
}

// Start launches the background loop. Calling Start twice is a no-op.
func (s *Sweeper) Start() {
	if s.interval <= 0 {
		s.logger.Info("token sweeper disabled")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop halts the loop and waits for an in-flight sweep or ctx expiry.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
