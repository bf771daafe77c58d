// Package securitylog records advisory security telemetry off the request path.
package securitylog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/domain"
	"github.com/smallbiznis/rewardguard/internal/repository"
)

const writeTimeout = 2 * time.Second

type entry struct {
	metric    *domain.SecurityMetric
	violation *domain.SecurityViolation
}

// Recorder buffers metrics and violations and writes them from a single
// goroutine. Recording never blocks; a full buffer drops the entry.
type Recorder struct {
	repo    repository.SecurityLogRepository
	logger  *zap.Logger
	queue   chan entry
	dropped atomic.Int64

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	done      chan struct{}
}

// NewRecorder creates a Recorder with the given buffer size.
func NewRecorder(repo repository.SecurityLogRepository, buffer int, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.L()
	}
	if buffer <= 0 {
		buffer = 1
	}
	return &Recorder{
		repo:   repo,
		logger: logger.Named("securitylog"),
		queue:  make(chan entry, buffer),
		done:   make(chan struct{}),
	}
}

// Metric records an accepted request.
func (r *Recorder) Metric(m domain.SecurityMetric) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.enqueue(entry{metric: &m})
}

// Violation records a rejected request.
func (r *Recorder) Violation(v domain.SecurityViolation) {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	r.enqueue(entry{violation: &v})
}

// Dropped reports how many entries were discarded because the buffer was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) enqueue(e entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- e:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("security log buffer full, dropping entries", zap.Int64("dropped", n))
		}
	}
}

// Start launches the writer goroutine.
func (r *Recorder) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

// Stop drains buffered entries and waits for the writer, bounded by ctx.
func (r *Recorder) Stop(ctx context.Context) error {
	r.Start()
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		r.write(e)
	}
}

func (r *Recorder) write(e entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	switch {
	case e.metric != nil:
		if err := r.repo.InsertMetric(ctx, *e.metric); err != nil {
			r.logger.Warn("write security metric failed", zap.Error(err), zap.String("route", e.metric.Route))
		}
	case e.violation != nil:
		if err := r.repo.InsertViolation(ctx, *e.violation); err != nil {
			r.logger.Warn("write security violation failed", zap.Error(err),
				zap.String("route", e.violation.Route),
				zap.String("violation", e.violation.ViolationType),
			)
		}
	}
}
