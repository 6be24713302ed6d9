package outbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

func orderCreated(id, orderID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   orderID,
		EventType:     domain.EventTypeOrderCreated,
		Payload:       []byte(`{"order_id":` + orderID + `}`),
	}
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderCreated("msg-1", "1")}}
	publisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	if sent := worker.ProcessOnce(context.Background()); sent != 1 {
		t.Fatalf("expected 1 published event, got %d", sent)
	}

	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if repo.sentIDs[0] != "msg-1" {
		t.Fatalf("expected sent id msg-1, got %s", repo.sentIDs[0])
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderCreated("msg-2", "2")}}
	publisher := &stubPublisher{err: errors.New("publish failed")}
	dlqPublisher := &stubPublisher{}
	reg := prometheus.NewRegistry()
	m := metrics.NewOutboxMetricsWithRegisterer(reg)

	worker := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlqPublisher),
		WithMetrics(m),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 0 {
		t.Fatalf("expected 0 sent marks, got %d", got)
	}
	if got := len(repo.failedIDs); got != 1 {
		t.Fatalf("expected 1 failed mark, got %d", got)
	}
	if repo.failedIDs[0] != "msg-2" {
		t.Fatalf("expected failed id msg-2, got %s", repo.failedIDs[0])
	}
	if got := dlqPublisher.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}

	record, err := ParseDLQRecord(dlqPublisher.last().Payload)
	require.NoError(t, err)
	assert.Equal(t, "msg-2", record.OutboxID)
	assert.Equal(t, domain.EventTypeOrderCreated, record.EventType)
	assert.JSONEq(t, `{"order_id":2}`, string(record.Payload))
	assert.Contains(t, record.PublishError, "publish failed")

	restored := record.Message(time.Time{})
	assert.Equal(t, "2", restored.AggregateID)
	assert.JSONEq(t, `{"order_id":2}`, string(restored.Payload))

	expected := `
# HELP commerce_outbox_publish_attempts_total Total number of outbox publish attempts grouped by result.
# TYPE commerce_outbox_publish_attempts_total counter
commerce_outbox_publish_attempts_total{result="failed"} 1
commerce_outbox_publish_attempts_total{result="retry_error"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "commerce_outbox_publish_attempts_total"))
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderCreated("msg-3", "3")}}
	publisher := &stubPublisher{
		sequenceErrors: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			nil,
		},
	}

	worker := NewWorker(
		repo,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
}

func TestWorker_PublishesCommittedOrders(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	ctx := context.Background()
	product, err := store.Products().Create(ctx, domain.Product{
		Name: "Yerba", Price: decimal.NewFromInt(10), Stock: 5, Status: domain.ProductStatusActive,
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.SalesTx) error {
		order := domain.Order{Lines: []domain.OrderLine{{ProductID: product.ID, Quantity: 1, UnitPrice: product.Price}}}
		order.Total = order.ComputeTotal()
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}
		msg, err := domain.NewOrderCreatedMessage(order)
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msg)
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	publisher := &stubPublisher{}
	worker := NewWorker(store.Outbox(), publisher, WithMetrics(metrics.NewOutboxMetricsWithRegisterer(reg)))

	assert.Equal(t, 1, worker.ProcessOnce(ctx))
	assert.Empty(t, store.Outbox().AllPending())
	assert.Equal(t, "1", publisher.last().AggregateID)

	pending, err := testutil.GatherAndCount(reg, "commerce_outbox_pending_records")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	// повторный цикл ничего не публикует
	assert.Zero(t, worker.ProcessOnce(ctx))
	assert.Equal(t, 1, publisher.calls())
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(10*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, worker.retryBackoff(1))
	assert.Equal(t, 40*time.Millisecond, worker.retryBackoff(3))

	worker = NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(0))
	assert.Zero(t, worker.retryBackoff(5))
}

type stubOutboxRepo struct {
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(_ context.Context) (domain.OutboxStats, error) {
	stats := domain.OutboxStats{
		PendingCount: len(s.pending),
	}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.published = append(s.published, event)
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}

	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.published) == 0 {
		return domain.OutboxMessage{}
	}
	return s.published[len(s.published)-1]
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{}
	publisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestParseDLQRecord_Rejects(t *testing.T) {
	tests := map[string]string{
		"not json":        `nope`,
		"missing id":      `{"payload":{"a":1}}`,
		"missing payload": `{"outbox_id":"msg-1"}`,
		"null payload":    `{"outbox_id":"msg-1","payload":null}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDLQRecord([]byte(raw))
			assert.Error(t, err)
		})
	}
}
