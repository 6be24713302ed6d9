package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// money сериализуется числом с двумя знаками после запятой.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

// statusValue принимает статус строкой ("active") или старым числовым кодом (1).
type statusValue string

func (s *statusValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*s = statusValue(raw)
		return nil
	}
	var code json.Number
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("status must be a string or a number: %w", err)
	}
	*s = statusValue(code.String())
	return nil
}

type pageResponse[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

func toPageResponse[S, T any](page domain.Page[S], convert func(S) T) pageResponse[T] {
	content := make([]T, 0, len(page.Content))
	for _, item := range page.Content {
		content = append(content, convert(item))
	}
	return pageResponse[T]{
		Content:       content,
		Page:          page.Page,
		Size:          page.Size,
		TotalElements: page.TotalElements,
		TotalPages:    page.TotalPages(),
	}
}

// Заказы.

type createOrderRequest struct {
	CustomerID *int64             `json:"customerId"`
	Lines      []orderLineRequest `json:"lines"`
}

type orderLineRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

func (r createOrderRequest) toDomain() domain.CreateOrderRequest {
	req := domain.CreateOrderRequest{
		CustomerID: r.CustomerID,
		Lines:      make([]domain.LineRequest, 0, len(r.Lines)),
	}
	for _, line := range r.Lines {
		req.Lines = append(req.Lines, domain.LineRequest{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return req
}

type orderResponse struct {
	ID         int64               `json:"id"`
	CreatedAt  time.Time           `json:"createdAt"`
	Total      money               `json:"total"`
	CustomerID *int64              `json:"customerId,omitempty"`
	Lines      []orderLineResponse `json:"lines"`
}

type orderLineResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   money  `json:"unitPrice"`
}

func toOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:         order.ID,
		CreatedAt:  order.CreatedAt,
		Total:      money(order.Total),
		CustomerID: order.CustomerID,
		Lines:      make([]orderLineResponse, 0, len(order.Lines)),
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ID:          line.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   money(line.UnitPrice),
		})
	}
	return resp
}

type lineHistoryResponse struct {
	ID           int64     `json:"id"`
	OrderID      int64     `json:"orderId"`
	ProductID    int64     `json:"productId"`
	ProductName  string    `json:"productName"`
	UnitPrice    money     `json:"unitPrice"`
	Quantity     int       `json:"quantity"`
	CurrentStock int       `json:"currentStock"`
	SoldAt       time.Time `json:"soldAt"`
}

func toLineHistoryResponse(row domain.LineHistoryRow) lineHistoryResponse {
	return lineHistoryResponse{
		ID:           row.LineID,
		OrderID:      row.OrderID,
		ProductID:    row.ProductID,
		ProductName:  row.ProductName,
		UnitPrice:    money(row.UnitPrice),
		Quantity:     row.Quantity,
		CurrentStock: row.CurrentStock,
		SoldAt:       row.SoldAt,
	}
}

type orderSummaryResponse struct {
	ID           int64                      `json:"id"`
	CustomerName string                     `json:"customerName"`
	Date         time.Time                  `json:"date"`
	Total        money                      `json:"total"`
	Items        []orderSummaryItemResponse `json:"items"`
}

type orderSummaryItemResponse struct {
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
}

func toOrderSummaryResponse(summary domain.OrderSummary) orderSummaryResponse {
	resp := orderSummaryResponse{
		ID:           summary.ID,
		CustomerName: summary.CustomerName,
		Date:         summary.CreatedAt,
		Total:        money(summary.Total),
		Items:        make([]orderSummaryItemResponse, 0, len(summary.Items)),
	}
	for _, item := range summary.Items {
		resp.Items = append(resp.Items, orderSummaryItemResponse{ProductName: item.ProductName, Quantity: item.Quantity})
	}
	return resp
}

// Товары.

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Status      statusValue     `json:"status"`
}

type productResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       money     `json:"price"`
	Stock       int       `json:"stock"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money(p.Price),
		Stock:       p.Stock,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Клиенты.

type customerRequest struct {
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone"`
	Status    statusValue `json:"status"`
}

type customerResponse struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	HasPhoto  bool      `json:"hasPhoto"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toCustomerResponse(c domain.Customer) customerResponse {
	return customerResponse{
		ID:        c.ID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Phone:     c.Phone,
		HasPhoto:  c.PhotoKey != "",
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
