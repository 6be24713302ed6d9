package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500

	// defaultMaxBatchesPerSweep ограничивает один проход; остаток удаляется на следующем тике.
	defaultMaxBatchesPerSweep = 20
)

// SweepResult описывает один проход очистки ключей Idempotency-Key.
type SweepResult struct {
	Cutoff   time.Time
	Deleted  int
	Batches  int
	Partial  bool
	Duration time.Duration
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

func WithCleanupLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithCleanupMetrics(m *metrics.IdempotencyMetrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

// WithInterval задаёт паузу между проходами; значения <= 0 игнорируются.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт лимит одного DELETE; значения <= 0 игнорируются.
func WithBatchSize(batchSize int) CleanupOption {
	return func(w *CleanupWorker) {
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

// WithMaxBatchesPerSweep ограничивает число порций за один проход.
func WithMaxBatchesPerSweep(n int) CleanupOption {
	return func(w *CleanupWorker) {
		if n > 0 {
			w.maxBatches = n
		}
	}
}

func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// CleanupWorker удаляет записи POST /orders, у которых истёк TTL.
type CleanupWorker struct {
	repo       domain.IdempotencyRepository
	metrics    *metrics.IdempotencyMetrics
	logger     *log.Entry
	now        func() time.Time
	interval   time.Duration
	batchSize  int
	maxBatches int
}

func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:       repo,
		logger:     log.WithField("component", "idempotency-cleanup"),
		now:        func() time.Time { return time.Now().UTC() },
		interval:   defaultCleanupInterval,
		batchSize:  defaultCleanupBatchSize,
		maxBatches: defaultMaxBatchesPerSweep,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run делает проход сразу и затем на каждом тике, пока ctx не отменён.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency store is not configured, cleanup disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	result, err := w.Sweep(ctx, w.now())
	if errors.Is(err, context.Canceled) {
		return
	}

	entry := w.logger.WithFields(log.Fields{
		"cutoff":   result.Cutoff.Format(time.RFC3339),
		"deleted":  result.Deleted,
		"batches":  result.Batches,
		"duration": result.Duration.String(),
	})
	if err != nil {
		w.metrics.RecordCleanupRun("error", result.Deleted)
		entry.WithError(err).Warn("expired idempotency keys sweep failed")
		return
	}

	w.metrics.RecordCleanupRun("ok", result.Deleted)
	switch {
	case result.Partial:
		entry.Info("expired idempotency keys sweep hit batch limit, continuing next tick")
	case result.Deleted > 0:
		entry.Debug("expired idempotency keys removed")
	}
}

// Sweep удаляет ключи с expires_at <= cutoff порциями batchSize,
// не более maxBatches порций за вызов.
func (w *CleanupWorker) Sweep(ctx context.Context, cutoff time.Time) (SweepResult, error) {
	if cutoff.IsZero() {
		cutoff = w.now()
	}
	started := time.Now()
	result := SweepResult{Cutoff: cutoff}

	for result.Batches < w.maxBatches {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(started)
			return result, err
		}

		deleted, err := w.repo.DeleteExpired(ctx, cutoff, w.batchSize)
		if err != nil {
			result.Duration = time.Since(started)
			return result, fmt.Errorf("delete expired idempotency keys (batch %d): %w", result.Batches+1, err)
		}
		result.Batches++
		result.Deleted += deleted
		w.metrics.AddDeleted(deleted)

		if deleted < w.batchSize {
			result.Duration = time.Since(started)
			return result, nil
		}
	}

	result.Partial = true
	result.Duration = time.Since(started)
	return result, nil
}
