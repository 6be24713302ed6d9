package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// WithinTx выполняет fn в одной транзакции READ COMMITTED.
// Ожидание блокировок ограничено lock_timeout; его срабатывание, дедлок
// и serialization failure возвращаются как domain.ErrConcurrencyConflict.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.SalesTx) error) (err error) {
	if s == nil || s.dbx == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	tx, err := s.dbx.BeginTxx(ctx, nil)
	if err != nil {
		return classifyTxError(fmt.Errorf("begin sales tx: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.lockTimeout > 0 {
		// SET LOCAL не принимает параметры, значение подставляется форматированием.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err = fn(ctx, &salesTx{tx: tx}); err != nil {
		return classifyTxError(err)
	}

	if err = tx.Commit(); err != nil {
		return classifyTxError(fmt.Errorf("commit sales tx: %w", err))
	}
	return nil
}

type salesTx struct {
	tx *sqlx.Tx
}

func (t *salesTx) FindCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	return getCustomer(ctx, t.tx, id)
}

// LockProducts берёт FOR UPDATE по одной строке в порядке возрастания id,
// чтобы параллельные заказы блокировали товары в одинаковом порядке.
func (t *salesTx) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	locked := make(map[int64]domain.Product, len(ids))
	for _, id := range sortedUnique(ids) {
		var row productRow
		err := t.tx.GetContext(ctx, &row, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, classifyTxError(fmt.Errorf("lock product %d: %w", id, err))
		}
		locked[id] = row.toDomain()
	}
	return locked, nil
}

// DecrementStock списывает остаток условным UPDATE; ноль затронутых строк
// означает, что остатка уже не хватает.
func (t *salesTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $1,
		    updated_at = NOW()
		WHERE id = $2 AND stock >= $1
	`, qty, productID)
	if err != nil {
		return classifyTxError(fmt.Errorf("decrement stock of product %d: %w", productID, err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for product %d: %w", productID, err)
	}
	if affected == 0 {
		return domain.ConcurrencyConflict(fmt.Errorf("stock of product %d changed concurrently", productID))
	}
	return nil
}

func (t *salesTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	var customerID sql.NullInt64
	if order.CustomerID != nil {
		customerID = sql.NullInt64{Int64: *order.CustomerID, Valid: true}
	}

	if err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO orders (customer_id, total, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, customerID, order.Total, order.CreatedAt).Scan(&order.ID); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		if err := t.tx.QueryRowxContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, line.OrderID, line.ProductID, line.Quantity, line.UnitPrice).Scan(&line.ID); err != nil {
			return fmt.Errorf("insert order line for product %d: %w", line.ProductID, err)
		}
	}

	return nil
}

func (t *salesTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	_, err := insertOutboxMessage(ctx, t.tx, msg)
	return err
}

func sortedUnique(ids []int64) []int64 {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

var (
	_ domain.Transactor = (*Store)(nil)
	_ domain.SalesTx    = (*salesTx)(nil)
)
