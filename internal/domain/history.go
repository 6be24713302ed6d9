package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NoCustomerName подставляется в историю для анонимных продаж.
const NoCustomerName = "Sin cliente"

// HistoryDateLayout — формат фильтра по дате продажи.
const HistoryDateLayout = "2006-01-02"

// LineHistoryRow — плоская проекция позиции заказа.
// CurrentStock отражает остаток товара на момент запроса, а не на момент продажи.
type LineHistoryRow struct {
	LineID       int64           `db:"line_id"`
	OrderID      int64           `db:"order_id"`
	ProductID    int64           `db:"product_id"`
	ProductName  string          `db:"product_name"`
	UnitPrice    decimal.Decimal `db:"unit_price"`
	Quantity     int             `db:"quantity"`
	CurrentStock int             `db:"current_stock"`
	SoldAt       time.Time       `db:"sold_at"`
}

// LineHistoryFilter задаёт условия постраничной истории позиций.
type LineHistoryFilter struct {
	ProductName string
	PageRequest
}

// OrderHistoryFilter задаёт условия агрегированной истории заказов.
type OrderHistoryFilter struct {
	Product  string
	Customer string
	// Date задаёт день продажи (UTC); нулевое значение отключает фильтр.
	Date time.Time
}

// OrderSummary — агрегированная запись истории заказов.
type OrderSummary struct {
	ID           int64
	CustomerName string
	CreatedAt    time.Time
	Total        decimal.Decimal
	Items        []OrderSummaryItem
}

// OrderSummaryItem — позиция в агрегированной истории.
type OrderSummaryItem struct {
	ProductName string
	Quantity    int
}
