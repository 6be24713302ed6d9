package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

const defaultLockTimeout = 2 * time.Second

// Option настраивает Store.
type Option func(*Store)

// WithLockTimeout задаёт максимальное ожидание блокировки хранилища.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = timeout
	}
}

// WithClock подменяет источник времени (используется в тестах).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store — in-memory хранилище каталога, клиентов и продаж.
// Все операции сериализуются одной блокировкой с ограниченным ожиданием,
// транзакции продаж применяют изменения только при commit.
type Store struct {
	lock        chan struct{}
	lockTimeout time.Duration
	now         func() time.Time

	products  map[int64]domain.Product
	customers map[int64]domain.Customer
	orders    []domain.Order

	productSeq  int64
	customerSeq int64
	orderSeq    int64
	lineSeq     int64

	outbox *OutboxRepository
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore(options ...Option) *Store {
	s := &Store{
		lock:        make(chan struct{}, 1),
		lockTimeout: defaultLockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		products:    make(map[int64]domain.Product),
		customers:   make(map[int64]domain.Customer),
		outbox:      NewOutboxRepository(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Products возвращает репозиторий каталога поверх хранилища.
func (s *Store) Products() domain.ProductRepository {
	return &productRepository{store: s}
}

// Customers возвращает репозиторий клиентов поверх хранилища.
func (s *Store) Customers() domain.CustomerRepository {
	return &customerRepository{store: s}
}

// History возвращает read-only проекции продаж.
func (s *Store) History() domain.SalesHistoryRepository {
	return &historyRepository{store: s}
}

// Outbox возвращает outbox, куда попадают события закоммиченных заказов.
func (s *Store) Outbox() *OutboxRepository {
	return s.outbox
}

// acquire ждёт блокировку не дольше lockTimeout.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		timer := time.NewTimer(s.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case s.lock <- struct{}{}:
		return func() { <-s.lock }, nil
	case <-timeout:
		return nil, domain.ConcurrencyConflict(fmt.Errorf("memory store lock not acquired within %s", s.lockTimeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WithinTx выполняет fn в изолированной транзакции.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.SalesTx) error) error {
	if fn == nil {
		return errors.New("transaction func is nil")
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	tx := newSalesTx(s)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.commit()
	return nil
}

var _ domain.Transactor = (*Store)(nil)
