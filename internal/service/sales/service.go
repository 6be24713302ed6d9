package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
)

// Service оформляет заказы и отдаёт историю продаж.
type Service struct {
	tx       domain.Transactor
	products domain.ProductRepository
	history  domain.SalesHistoryRepository
	retry    RetryPolicy
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithRetryPolicy задаёт политику повторов при конфликтах.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *Service) {
		s.retry = policy
	}
}

// WithMetrics подключает метрики заказов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService создаёт сервис продаж.
func NewService(tx domain.Transactor, products domain.ProductRepository, history domain.SalesHistoryRepository, options ...Option) *Service {
	s := &Service{
		tx:       tx,
		products: products,
		history:  history,
		retry:    DefaultRetryPolicy(),
		logger:   log.WithField("component", "sales-service"),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// CreateOrder атомарно оформляет заказ: либо сохраняются заказ, позиции,
// списание остатков и событие outbox, либо ничего.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	started := time.Now()
	s.metrics.RecordStarted()

	logger := s.logger.WithField("lines", len(req.Lines))
	if req.CustomerID != nil {
		logger = logger.WithField("customer_id", *req.CustomerID)
	}

	if err := req.Validate(); err != nil {
		s.recordFailure(logger, err, started)
		return domain.Order{}, err
	}

	var order domain.Order
	err := s.retry.Do(ctx, logger, func(attempt int) error {
		if attempt > 1 {
			s.metrics.RecordRetry()
		}
		created, err := s.createOnce(ctx, req)
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		s.recordFailure(logger, err, started)
		return domain.Order{}, err
	}

	s.metrics.RecordCreated(order.Units(), time.Since(started))
	logger.WithFields(log.Fields{
		"order_id": order.ID,
		"total":    order.Total.StringFixed(2),
	}).Info("order created")

	return order, nil
}

func (s *Service) createOnce(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	var order domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.SalesTx) error {
		if req.CustomerID != nil {
			if _, err := tx.FindCustomer(ctx, *req.CustomerID); err != nil {
				if errors.Is(err, domain.ErrCustomerNotFound) {
					return domain.InvalidRequest("customer %d does not exist", *req.CustomerID)
				}
				return fmt.Errorf("find customer: %w", err)
			}
		}

		locked, err := tx.LockProducts(ctx, req.ProductIDs())
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		built, err := buildOrder(req, locked)
		if err != nil {
			return err
		}

		for _, line := range built.Lines {
			if err := tx.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
		}

		if err := tx.InsertOrder(ctx, &built); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		msg, err := domain.NewOrderCreatedMessage(built)
		if err != nil {
			return fmt.Errorf("build order event: %w", err)
		}
		if err := tx.EnqueueOutbox(ctx, msg); err != nil {
			return fmt.Errorf("enqueue order event: %w", err)
		}

		order = built
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if err := order.ValidateInvariants(); err != nil {
		return domain.Order{}, fmt.Errorf("created order violates invariants: %w", err)
	}
	return order, nil
}

// buildOrder проверяет позиции в порядке запроса по заблокированным товарам.
// Повторяющийся товар видит остаток, уже занятый предыдущими позициями.
func buildOrder(req domain.CreateOrderRequest, locked map[int64]domain.Product) (domain.Order, error) {
	remaining := make(map[int64]int, len(locked))
	for id, product := range locked {
		remaining[id] = product.Stock
	}

	order := domain.Order{
		CustomerID: req.CustomerID,
		Lines:      make([]domain.OrderLine, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		product, ok := locked[line.ProductID]
		if !ok {
			return domain.Order{}, domain.ProductNotFound(line.ProductID)
		}

		if remaining[product.ID] < line.Quantity {
			product.Stock = remaining[product.ID]
			return domain.Order{}, domain.InsufficientStock(product, line.Quantity)
		}
		if product.Status != domain.ProductStatusActive {
			return domain.Order{}, domain.ProductNotActive(product)
		}

		remaining[product.ID] -= line.Quantity
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
		})
	}

	order.Total = order.ComputeTotal()
	return order, nil
}

func (s *Service) recordFailure(logger *log.Entry, err error, started time.Time) {
	kind := domain.KindOf(err)
	s.metrics.RecordFailed(string(kind), time.Since(started))

	entry := logger.WithError(err).WithField("kind", kind)
	switch kind {
	case domain.KindInternal:
		entry.Error("order creation failed")
	case domain.KindConcurrencyConflict:
		entry.Warn("order creation conflicted")
	default:
		entry.Info("order rejected")
	}
}

// ListLineHistory возвращает страницу позиций от новых продаж к старым.
func (s *Service) ListLineHistory(ctx context.Context, filter domain.LineHistoryFilter) (domain.Page[domain.LineHistoryRow], error) {
	filter.PageRequest = filter.PageRequest.Normalize()
	filter.ProductName = strings.TrimSpace(filter.ProductName)

	rows, total, err := s.history.ListLines(ctx, filter)
	if err != nil {
		return domain.Page[domain.LineHistoryRow]{}, fmt.Errorf("list line history: %w", err)
	}
	return domain.NewPage(rows, filter.PageRequest, total), nil
}

// ProductHistory возвращает продажи товара. Удалённый товар считается отсутствующим.
func (s *Service) ProductHistory(ctx context.Context, productID int64) ([]domain.LineHistoryRow, error) {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Status == domain.ProductStatusDeleted {
		return nil, domain.ProductNotFound(productID)
	}

	rows, err := s.history.LinesByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list product %d history: %w", productID, err)
	}
	if rows == nil {
		rows = []domain.LineHistoryRow{}
	}
	return rows, nil
}

// OrderHistoryQuery — сырые параметры агрегированной истории.
type OrderHistoryQuery struct {
	Product  string
	Date     string
	Customer string
}

// OrderHistory возвращает заказы от новых к старым с позициями.
func (s *Service) OrderHistory(ctx context.Context, query OrderHistoryQuery) ([]domain.OrderSummary, error) {
	filter := domain.OrderHistoryFilter{
		Product:  strings.TrimSpace(query.Product),
		Customer: strings.TrimSpace(query.Customer),
	}
	if raw := strings.TrimSpace(query.Date); raw != "" {
		date, err := time.ParseInLocation(domain.HistoryDateLayout, raw, time.UTC)
		if err != nil {
			return nil, domain.InvalidRequest("date %q must be in YYYY-MM-DD format", raw)
		}
		filter.Date = date
	}

	summaries, err := s.history.OrderSummaries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list order history: %w", err)
	}
	if summaries == nil {
		summaries = []domain.OrderSummary{}
	}
	return summaries, nil
}
