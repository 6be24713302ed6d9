package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	// MaxNameLength ограничивает длину имён товаров и полей клиента.
	MaxNameLength = 100
	// MoneyScale соответствует NUMERIC(12,2).
	MoneyScale = 2

	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Product — товар каталога; Stock является единственным источником истины по остатку.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Status      ProductStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate проверяет инварианты товара.
func (p Product) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return InvalidRequest("product name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return InvalidRequest("product name must be at most %d characters", MaxNameLength)
	}
	if p.Price.IsNegative() {
		return InvalidRequest("product price must be non-negative")
	}
	if !p.Price.Equal(p.Price.Round(MoneyScale)) {
		return InvalidRequest("product price must have at most %d decimal places", MoneyScale)
	}
	if p.Stock < 0 {
		return InvalidRequest("product stock must be non-negative")
	}
	if !p.Status.Valid() {
		return InvalidRequest("unknown product status %q", p.Status)
	}
	return nil
}

// Customer — клиент магазина.
type Customer struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Phone     string
	PhotoKey  string
	Status    CustomerStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName возвращает "имя фамилия" без лишних пробелов.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Validate проверяет обязательные поля клиента.
func (c Customer) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"first name", c.FirstName},
		{"last name", c.LastName},
		{"email", c.Email},
	}
	for _, f := range fields {
		value := strings.TrimSpace(f.value)
		if value == "" {
			return InvalidRequest("customer %s is required", f.name)
		}
		if utf8.RuneCountInString(value) > MaxNameLength {
			return InvalidRequest("customer %s must be at most %d characters", f.name, MaxNameLength)
		}
	}
	if !strings.Contains(c.Email, "@") {
		return InvalidRequest("customer email %q is malformed", c.Email)
	}
	if !c.Status.Valid() {
		return InvalidRequest("unknown customer status %q", c.Status)
	}
	return nil
}

// PageRequest описывает 0-based пагинацию.
type PageRequest struct {
	Page int
	Size int
}

// Normalize подставляет значения по умолчанию и ограничивает размер страницы.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset возвращает смещение первой записи страницы.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page содержит одну страницу результатов.
type Page[T any] struct {
	Content       []T
	Page          int
	Size          int
	TotalElements int64
}

// NewPage собирает страницу из выборки и общего количества.
func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	return Page[T]{Content: content, Page: req.Page, Size: req.Size, TotalElements: total}
}

// TotalPages возвращает количество страниц.
func (p Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return int((p.TotalElements + int64(p.Size) - 1) / int64(p.Size))
}

// ProductFilter задаёт условия выборки каталога.
type ProductFilter struct {
	Name string
	// Status, если задан, также оставляет только товары с положительным остатком.
	Status ProductStatus
	PageRequest
}

// CustomerFilter задаёт условия выборки клиентов.
type CustomerFilter struct {
	// Query ищется подстрокой в имени, фамилии и email.
	Query string
	PageRequest
}
