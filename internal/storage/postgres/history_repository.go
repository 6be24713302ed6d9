package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// Имя и остаток товара берутся из живой строки products.
const lineHistoryFrom = `
	FROM order_lines l
	JOIN orders o ON o.id = l.order_id
	LEFT JOIN products p ON p.id = l.product_id`

const lineHistoryColumns = `
	l.id AS line_id,
	l.order_id,
	l.product_id,
	COALESCE(p.name, '') AS product_name,
	l.unit_price,
	l.quantity,
	COALESCE(p.stock, 0) AS current_stock,
	o.created_at AS sold_at`

// HistoryRepository — read-only проекции продаж поверх sqlx.
type HistoryRepository struct {
	db *sqlx.DB
}

func (r *HistoryRepository) ListLines(ctx context.Context, filter domain.LineHistoryFilter) ([]domain.LineHistoryRow, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page := filter.PageRequest.Normalize()
	where := "1 = 1"
	var args []any
	if name := strings.TrimSpace(filter.ProductName); name != "" {
		where = "p.name ILIKE ?"
		args = append(args, likePattern(name))
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*)`+lineHistoryFrom+` WHERE `+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count sale lines: %w", err)
	}

	query := r.db.Rebind(`SELECT` + lineHistoryColumns + lineHistoryFrom + ` WHERE ` + where +
		` ORDER BY o.created_at DESC, l.id DESC LIMIT ? OFFSET ?`)
	rows := []domain.LineHistoryRow{}
	if err := r.db.SelectContext(ctx, &rows, query, append(args, page.Size, page.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("list sale lines: %w", err)
	}

	return normalizeLineRows(rows), total, nil
}

func (r *HistoryRepository) LinesByProduct(ctx context.Context, productID int64) ([]domain.LineHistoryRow, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := r.db.Rebind(`SELECT` + lineHistoryColumns + lineHistoryFrom +
		` WHERE l.product_id = ? ORDER BY o.created_at DESC, l.id DESC`)
	rows := []domain.LineHistoryRow{}
	if err := r.db.SelectContext(ctx, &rows, query, productID); err != nil {
		return nil, fmt.Errorf("list sale lines of product %d: %w", productID, err)
	}

	return normalizeLineRows(rows), nil
}

type orderSummaryRow struct {
	ID           int64           `db:"id"`
	CustomerName string          `db:"customer_name"`
	CreatedAt    time.Time       `db:"created_at"`
	Total        decimal.Decimal `db:"total"`
}

type orderSummaryItemRow struct {
	OrderID     int64  `db:"order_id"`
	ProductName string `db:"product_name"`
	Quantity    int    `db:"quantity"`
}

// OrderSummaries возвращает заказы от новых к старым с позициями.
func (r *HistoryRepository) OrderSummaries(ctx context.Context, filter domain.OrderHistoryFilter) ([]domain.OrderSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	conditions := []string{"1 = 1"}
	var args []any
	if product := strings.TrimSpace(filter.Product); product != "" {
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM order_lines fl
			JOIN products fp ON fp.id = fl.product_id
			WHERE fl.order_id = o.id AND fp.name ILIKE ?
		)`)
		args = append(args, likePattern(product))
	}
	if customer := strings.TrimSpace(filter.Customer); customer != "" {
		conditions = append(conditions, "c.first_name || ' ' || c.last_name ILIKE ?")
		args = append(args, likePattern(customer))
	}
	if !filter.Date.IsZero() {
		day := filter.Date.UTC().Truncate(24 * time.Hour)
		conditions = append(conditions, "o.created_at >= ?", "o.created_at < ?")
		args = append(args, day, day.Add(24*time.Hour))
	}

	query := r.db.Rebind(`
		SELECT o.id,
		       COALESCE(TRIM(c.first_name || ' ' || c.last_name), '') AS customer_name,
		       o.created_at,
		       o.total
		FROM orders o
		LEFT JOIN customers c ON c.id = o.customer_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY o.created_at DESC, o.id DESC`)

	var rows []orderSummaryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list order summaries: %w", err)
	}
	if len(rows) == 0 {
		return []domain.OrderSummary{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	itemsQuery, itemsArgs, err := sqlx.In(`
		SELECT l.order_id, COALESCE(p.name, '') AS product_name, l.quantity
		FROM order_lines l
		LEFT JOIN products p ON p.id = l.product_id
		WHERE l.order_id IN (?)
		ORDER BY l.order_id, l.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("build order items query: %w", err)
	}

	var items []orderSummaryItemRow
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(itemsQuery), itemsArgs...); err != nil {
		return nil, fmt.Errorf("list order summary items: %w", err)
	}

	byOrder := make(map[int64][]domain.OrderSummaryItem, len(rows))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], domain.OrderSummaryItem{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
		})
	}

	summaries := make([]domain.OrderSummary, 0, len(rows))
	for _, row := range rows {
		name := row.CustomerName
		if name == "" {
			name = domain.NoCustomerName
		}
		summaries = append(summaries, domain.OrderSummary{
			ID:           row.ID,
			CustomerName: name,
			CreatedAt:    row.CreatedAt.UTC(),
			Total:        row.Total,
			Items:        byOrder[row.ID],
		})
	}
	return summaries, nil
}

func normalizeLineRows(rows []domain.LineHistoryRow) []domain.LineHistoryRow {
	for i := range rows {
		rows[i].SoldAt = rows[i].SoldAt.UTC()
	}
	return rows
}

var _ domain.SalesHistoryRepository = (*HistoryRepository)(nil)
