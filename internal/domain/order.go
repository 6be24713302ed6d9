package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LineRequest описывает запрошенную позицию заказа.
type LineRequest struct {
	ProductID int64
	Quantity  int
}

// CreateOrderRequest — входные данные для оформления продажи.
type CreateOrderRequest struct {
	CustomerID *int64
	Lines      []LineRequest
}

// Validate выполняет проверки, не требующие обращения к хранилищу.
func (r CreateOrderRequest) Validate() error {
	if len(r.Lines) == 0 {
		return InvalidRequest("order must contain at least one line")
	}
	if r.CustomerID != nil && *r.CustomerID <= 0 {
		return InvalidRequest("customer id must be positive")
	}
	for i, line := range r.Lines {
		if line.ProductID <= 0 {
			return InvalidRequest("line %d: product id must be positive", i)
		}
		if line.Quantity < 1 {
			return InvalidRequest("line %d: quantity must be at least 1", i)
		}
	}
	return nil
}

// ProductIDs возвращает уникальные id товаров по возрастанию.
// В этом порядке строки блокируются, чтобы параллельные заказы не ловили deadlock.
func (r CreateOrderRequest) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(r.Lines))
	ids := make([]int64, 0, len(r.Lines))
	for _, line := range r.Lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Order — оформленная продажа. После создания не изменяется.
type Order struct {
	ID         int64
	CustomerID *int64
	Total      decimal.Decimal
	CreatedAt  time.Time
	Lines      []OrderLine
}

// OrderLine — позиция заказа с зафиксированной ценой.
type OrderLine struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Subtotal возвращает quantity * unit price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ComputeTotal суммирует позиции заказа.
func (o Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// ValidateInvariants проверяет согласованность заказа перед сохранением.
func (o Order) ValidateInvariants() error {
	if len(o.Lines) == 0 {
		return InvalidRequest("order must contain at least one line")
	}
	for i, line := range o.Lines {
		if line.Quantity < 1 {
			return InvalidRequest("line %d: quantity must be at least 1", i)
		}
		if line.UnitPrice.IsNegative() {
			return InvalidRequest("line %d: unit price must be non-negative", i)
		}
	}
	if !o.Total.Equal(o.ComputeTotal()) {
		return InvalidRequest("order total %s does not match lines sum %s", o.Total, o.ComputeTotal())
	}
	return nil
}

// Units возвращает суммарное количество единиц товара в заказе.
func (o Order) Units() int {
	units := 0
	for _, line := range o.Lines {
		units += line.Quantity
	}
	return units
}
