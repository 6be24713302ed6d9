// Package idempotency реализует повторяемую отправку заказов по Idempotency-Key
// и очистку просроченных ключей.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
)

// MaxKeyLength ограничивает длину Idempotency-Key.
const MaxKeyLength = 255

// ErrRequestInProgress — запрос с тем же ключом ещё обрабатывается.
var ErrRequestInProgress = errors.New("request with this idempotency key is still in progress")

// Decision возвращается из Begin.
type Decision struct {
	// Replay означает, что нужно вернуть сохранённый ответ, не выполняя запрос.
	Replay bool
	Record domain.IdempotencyRecord
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithTTL задаёт время жизни ключа.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithGuardMetrics подключает метрики.
func WithGuardMetrics(m *metrics.IdempotencyMetrics) GuardOption {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// Guard связывает запрос с ключом идемпотентности и сохраняет его итоговый ответ.
type Guard struct {
	repo    domain.IdempotencyRepository
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.IdempotencyMetrics
	logger  *log.Entry
}

// NewGuard создаёт Guard поверх хранилища ключей.
func NewGuard(repo domain.IdempotencyRepository, options ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    domain.DefaultIdempotencyTTL,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.WithField("component", "idempotency-guard"),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// RequestHash возвращает SHA-256 от метода, пути и тела запроса.
func RequestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateKey проверяет формат ключа.
func ValidateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	if len(key) > MaxKeyLength {
		return domain.InvalidRequest("idempotency key must be at most %d characters", MaxKeyLength)
	}
	return nil
}

// Begin резервирует ключ под новый запрос или сообщает, что ответ нужно воспроизвести.
// Ключ с другим хэшем даёт ErrIdempotencyHashMismatch, незавершённый запрос ErrRequestInProgress.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (Decision, error) {
	if err := ValidateKey(key); err != nil {
		return Decision{}, err
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	switch {
	case err == nil:
		g.metrics.RecordRequest("new")
		return Decision{Record: record}, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		g.metrics.RecordRequest("mismatch")
		return Decision{}, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
	default:
		return Decision{}, fmt.Errorf("reserve idempotency key: %w", err)
	}

	existing, err := g.repo.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("load idempotency key: %w", err)
	}
	if existing.RequestHash != requestHash {
		g.metrics.RecordRequest("mismatch")
		return Decision{}, domain.ErrIdempotencyHashMismatch
	}
	if !existing.Replayable() {
		g.metrics.RecordRequest("in_progress")
		return Decision{}, ErrRequestInProgress
	}

	g.metrics.RecordRequest("replayed")
	return Decision{Replay: true, Record: existing}, nil
}

// Complete сохраняет ответ: 2xx как done, 4xx как failed.
// На 5xx ключ освобождается, чтобы клиент мог повторить запрос.
func (g *Guard) Complete(ctx context.Context, key string, httpStatus int, body []byte) error {
	var err error
	switch {
	case httpStatus >= 200 && httpStatus < 300:
		err = g.repo.MarkDone(ctx, key, body, httpStatus)
	case httpStatus >= 400 && httpStatus < 500:
		err = g.repo.MarkFailed(ctx, key, body, httpStatus)
	default:
		return g.Release(ctx, key)
	}
	if err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		return g.Release(ctx, key)
	}
	return nil
}

// Release удаляет ключ без сохранения ответа.
func (g *Guard) Release(ctx context.Context, key string) error {
	if err := g.repo.Delete(ctx, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
