package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

func TestHistoryRepository_ListLinesNewestFirst(t *testing.T) {
	store, mock := newMockStore(t)
	soldAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM order_lines l`).
		WithArgs("%yer%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY o.created_at DESC, l.id DESC LIMIT $2 OFFSET $3`)).
		WithArgs("%yer%", domain.DefaultPageSize, 0).
		WillReturnRows(sqlmock.NewRows([]string{"line_id", "order_id", "product_id", "product_name", "unit_price", "quantity", "current_stock", "sold_at"}).
			AddRow(int64(5), int64(2), int64(1), "Yerba", "10.00", 2, 3, soldAt))

	rows, total, err := store.History().ListLines(context.Background(), domain.LineHistoryFilter{ProductName: "yer"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].CurrentStock)
	assert.Equal(t, "Yerba", rows[0].ProductName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_OrderSummaries(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`o.created_at >= \$2 AND o.created_at < \$3\s+ORDER BY o.created_at DESC, o.id DESC`).
		WithArgs("%ana%", day, day.Add(24*time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_name", "created_at", "total"}).
			AddRow(int64(8), "", now, "12.00").
			AddRow(int64(3), "Ana Gómez", now.Add(-time.Hour), "35.10"))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE l.order_id IN ($1, $2)`)).
		WithArgs(int64(8), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "product_name", "quantity"}).
			AddRow(int64(3), "Yerba", 2).
			AddRow(int64(3), "Mate", 1).
			AddRow(int64(8), "Yerba", 1))

	summaries, err := store.History().OrderSummaries(context.Background(), domain.OrderHistoryFilter{
		Customer: "ana",
		Date:     now,
	})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, domain.NoCustomerName, summaries[0].CustomerName)
	assert.Len(t, summaries[0].Items, 1)
	assert.Equal(t, "Ana Gómez", summaries[1].CustomerName)
	assert.Equal(t, []domain.OrderSummaryItem{{ProductName: "Yerba", Quantity: 2}, {ProductName: "Mate", Quantity: 1}}, summaries[1].Items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_OrderSummariesEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM orders o`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_name", "created_at", "total"}))

	summaries, err := store.History().OrderSummaries(context.Background(), domain.OrderHistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, summaries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_LinesByProductKeepsSnapshotPrice(t *testing.T) {
	store, mock := newMockStore(t)
	soldAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	// Цена берётся из строки заказа, остаток из текущей строки товара.
	mock.ExpectQuery(`l\.unit_price,\s+l\.quantity,\s+COALESCE\(p\.stock, 0\) AS current_stock[\s\S]+WHERE l\.product_id = \$1 ORDER BY o\.created_at DESC, l\.id DESC`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"line_id", "order_id", "product_id", "product_name", "unit_price", "quantity", "current_stock", "sold_at"}).
			AddRow(int64(5), int64(2), int64(1), "Yerba", "10.00", 3, 20, soldAt))

	rows, err := store.History().LinesByProduct(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].UnitPrice.Equal(decimal.RequireFromString("10.00")), "unexpected unit price %s", rows[0].UnitPrice)
	assert.Equal(t, 20, rows[0].CurrentStock)
	require.NoError(t, mock.ExpectationsWereMet())
}
