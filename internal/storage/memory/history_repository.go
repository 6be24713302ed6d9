package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type historyRepository struct {
	store *Store
}

func (r *historyRepository) ListLines(ctx context.Context, filter domain.LineHistoryFilter) ([]domain.LineHistoryRow, int64, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	name := strings.ToLower(strings.TrimSpace(filter.ProductName))
	rows := r.lineRows(func(row domain.LineHistoryRow) bool {
		return name == "" || strings.Contains(strings.ToLower(row.ProductName), name)
	})

	return paginate(rows, filter.PageRequest), int64(len(rows)), nil
}

func (r *historyRepository) LinesByProduct(ctx context.Context, productID int64) ([]domain.LineHistoryRow, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return r.lineRows(func(row domain.LineHistoryRow) bool {
		return row.ProductID == productID
	}), nil
}

func (r *historyRepository) OrderSummaries(ctx context.Context, filter domain.OrderHistoryFilter) ([]domain.OrderSummary, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	product := strings.ToLower(strings.TrimSpace(filter.Product))
	customerQuery := strings.ToLower(strings.TrimSpace(filter.Customer))
	day := ""
	if !filter.Date.IsZero() {
		day = filter.Date.UTC().Format(domain.HistoryDateLayout)
	}

	summaries := make([]domain.OrderSummary, 0, len(r.store.orders))
	for _, order := range r.store.orders {
		if day != "" && order.CreatedAt.UTC().Format(domain.HistoryDateLayout) != day {
			continue
		}

		customerName := domain.NoCustomerName
		if order.CustomerID != nil {
			if customer, ok := r.store.customers[*order.CustomerID]; ok {
				customerName = customer.FullName()
			}
		}
		if customerQuery != "" && (order.CustomerID == nil || !strings.Contains(strings.ToLower(customerName), customerQuery)) {
			continue
		}

		summary := domain.OrderSummary{
			ID:           order.ID,
			CustomerName: customerName,
			CreatedAt:    order.CreatedAt,
			Total:        order.Total,
			Items:        make([]domain.OrderSummaryItem, 0, len(order.Lines)),
		}
		productMatched := product == ""
		for _, line := range order.Lines {
			name := r.productName(line)
			if !productMatched && strings.Contains(strings.ToLower(name), product) {
				productMatched = true
			}
			summary.Items = append(summary.Items, domain.OrderSummaryItem{ProductName: name, Quantity: line.Quantity})
		}
		if !productMatched {
			continue
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// lineRows строит проекции позиций с текущими именем и остатком товара.
func (r *historyRepository) lineRows(keep func(domain.LineHistoryRow) bool) []domain.LineHistoryRow {
	rows := make([]domain.LineHistoryRow, 0)
	for _, order := range r.store.orders {
		for _, line := range order.Lines {
			row := domain.LineHistoryRow{
				LineID:      line.ID,
				OrderID:     order.ID,
				ProductID:   line.ProductID,
				ProductName: r.productName(line),
				UnitPrice:   line.UnitPrice,
				Quantity:    line.Quantity,
				SoldAt:      order.CreatedAt,
			}
			if product, ok := r.store.products[line.ProductID]; ok {
				row.CurrentStock = product.Stock
			}
			if keep(row) {
				rows = append(rows, row)
			}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SoldAt.Equal(rows[j].SoldAt) {
			return rows[i].LineID > rows[j].LineID
		}
		return rows[i].SoldAt.After(rows[j].SoldAt)
	})
	return rows
}

func (r *historyRepository) productName(line domain.OrderLine) string {
	if product, ok := r.store.products[line.ProductID]; ok {
		return product.Name
	}
	return line.ProductName
}

var _ domain.SalesHistoryRepository = (*historyRepository)(nil)
