package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// salesTx накапливает изменения до commit; при ошибке они просто отбрасываются.
type salesTx struct {
	store    *Store
	products map[int64]domain.Product
	orders   []domain.Order
	outbox   []domain.OutboxMessage
	orderSeq int64
	lineSeq  int64
}

func newSalesTx(store *Store) *salesTx {
	return &salesTx{
		store:    store,
		products: make(map[int64]domain.Product),
		orderSeq: store.orderSeq,
		lineSeq:  store.lineSeq,
	}
}

func (tx *salesTx) FindCustomer(_ context.Context, id int64) (domain.Customer, error) {
	customer, ok := tx.store.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

func (tx *salesTx) LockProducts(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		product, ok := tx.product(id)
		if !ok {
			continue
		}
		tx.products[id] = product
		result[id] = product
	}
	return result, nil
}

func (tx *salesTx) DecrementStock(_ context.Context, productID int64, qty int) error {
	product, ok := tx.product(productID)
	if !ok {
		return fmt.Errorf("decrement stock of product %d: %w", productID, domain.ErrProductNotFound)
	}
	if product.Stock < qty {
		return domain.ConcurrencyConflict(fmt.Errorf("stock of product %d is %d, cannot take %d", productID, product.Stock, qty))
	}

	product.Stock -= qty
	product.UpdatedAt = tx.store.now()
	tx.products[productID] = product
	return nil
}

func (tx *salesTx) InsertOrder(_ context.Context, order *domain.Order) error {
	if order == nil {
		return fmt.Errorf("insert order: order is nil")
	}

	tx.orderSeq++
	order.ID = tx.orderSeq
	if order.CreatedAt.IsZero() {
		order.CreatedAt = tx.store.now()
	}
	for i := range order.Lines {
		tx.lineSeq++
		order.Lines[i].ID = tx.lineSeq
		order.Lines[i].OrderID = order.ID
	}

	tx.orders = append(tx.orders, cloneOrder(*order))
	return nil
}

func (tx *salesTx) EnqueueOutbox(_ context.Context, msg domain.OutboxMessage) error {
	tx.outbox = append(tx.outbox, msg)
	return nil
}

// product возвращает версию товара с учётом изменений внутри транзакции.
func (tx *salesTx) product(id int64) (domain.Product, bool) {
	if product, ok := tx.products[id]; ok {
		return product, true
	}
	product, ok := tx.store.products[id]
	return product, ok
}

func (tx *salesTx) commit() {
	for id, product := range tx.products {
		tx.store.products[id] = product
	}
	tx.store.orders = append(tx.store.orders, tx.orders...)
	tx.store.orderSeq = tx.orderSeq
	tx.store.lineSeq = tx.lineSeq
	for _, msg := range tx.outbox {
		_, _ = tx.store.outbox.Enqueue(msg)
	}
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Lines = append([]domain.OrderLine(nil), src.Lines...)
	if src.CustomerID != nil {
		id := *src.CustomerID
		dst.CustomerID = &id
	}
	return dst
}

var _ domain.SalesTx = (*salesTx)(nil)
