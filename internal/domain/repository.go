package domain

import "context"

// ProductRepository описывает требования к хранилищу каталога.
type ProductRepository interface {
	// Create сохраняет новый товар и возвращает его с присвоенным ID.
	Create(ctx context.Context, product Product) (Product, error)
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id int64) (Product, error)
	// List возвращает страницу товаров и общее количество по фильтру.
	List(ctx context.Context, filter ProductFilter) ([]Product, int64, error)
	// Update перезаписывает редактируемые поля товара.
	Update(ctx context.Context, product Product) (Product, error)
	// SetStatus меняет только статус, не трогая остаток.
	SetStatus(ctx context.Context, id int64, status ProductStatus) (Product, error)
}

// CustomerRepository описывает требования к хранилищу клиентов.
type CustomerRepository interface {
	// Create сохраняет клиента; занятый email даёт ErrEmailTaken.
	Create(ctx context.Context, customer Customer) (Customer, error)
	// Get возвращает клиента или ErrCustomerNotFound.
	Get(ctx context.Context, id int64) (Customer, error)
	List(ctx context.Context, filter CustomerFilter) ([]Customer, int64, error)
	Update(ctx context.Context, customer Customer) (Customer, error)
	SetStatus(ctx context.Context, id int64, status CustomerStatus) (Customer, error)
	// SetPhoto сохраняет ключ фото (пустая строка очищает его).
	SetPhoto(ctx context.Context, id int64, photoKey string) (Customer, error)
}

// SalesHistoryRepository отдаёт read-only проекции продаж.
type SalesHistoryRepository interface {
	// ListLines возвращает позиции от новых продаж к старым и общее количество.
	ListLines(ctx context.Context, filter LineHistoryFilter) ([]LineHistoryRow, int64, error)
	// LinesByProduct возвращает все продажи товара, новые первыми.
	LinesByProduct(ctx context.Context, productID int64) ([]LineHistoryRow, error)
	// OrderSummaries возвращает агрегированную историю заказов.
	OrderSummaries(ctx context.Context, filter OrderHistoryFilter) ([]OrderSummary, error)
}

// SalesTx — операции, выполняемые внутри одной транзакции оформления заказа.
type SalesTx interface {
	// FindCustomer возвращает клиента в любом статусе или ErrCustomerNotFound.
	FindCustomer(ctx context.Context, id int64) (Customer, error)
	// LockProducts блокирует строки товаров до конца транзакции.
	// Отсутствующие товары в результат не попадают.
	LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	// DecrementStock уменьшает остаток; если остаток меньше qty, возвращает ErrConcurrencyConflict.
	DecrementStock(ctx context.Context, productID int64, qty int) error
	// InsertOrder сохраняет заказ с позициями и проставляет ID.
	InsertOrder(ctx context.Context, order *Order) error
	// EnqueueOutbox пишет событие в outbox в той же транзакции.
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) error
}

// Transactor задаёт границу commit/rollback для оформления заказа.
type Transactor interface {
	// WithinTx коммитит изменения, только если fn вернула nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx SalesTx) error) error
}
