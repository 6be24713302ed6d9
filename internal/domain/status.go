package domain

import (
	"fmt"
	"strings"
)

// ProductStatus описывает состояние товара в каталоге.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
	ProductStatusDeleted  ProductStatus = "deleted"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusActive, ProductStatusInactive, ProductStatusDeleted:
		return true
	default:
		return false
	}
}

// CustomerStatus описывает состояние клиента.
type CustomerStatus string

const (
	CustomerStatusActive   CustomerStatus = "active"
	CustomerStatusInactive CustomerStatus = "inactive"
	CustomerStatusDeleted  CustomerStatus = "deleted"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s CustomerStatus) Valid() bool {
	switch s {
	case CustomerStatusActive, CustomerStatusInactive, CustomerStatusDeleted:
		return true
	default:
		return false
	}
}

// ParseProductStatus принимает имя статуса или старый числовой код (1/0/2).
func ParseProductStatus(raw string) (ProductStatus, error) {
	name, err := parseLifecycleStatus(raw)
	if err != nil {
		return "", err
	}
	return ProductStatus(name), nil
}

// ParseCustomerStatus принимает имя статуса или старый числовой код (1/0/2).
func ParseCustomerStatus(raw string) (CustomerStatus, error) {
	name, err := parseLifecycleStatus(raw)
	if err != nil {
		return "", err
	}
	return CustomerStatus(name), nil
}

func parseLifecycleStatus(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "1":
		return "active", nil
	case "inactive", "0":
		return "inactive", nil
	case "deleted", "2":
		return "deleted", nil
	default:
		return "", InvalidRequest("unknown status %q", raw)
	}
}

// toggleTarget возвращает противоположный статус для пары active/inactive.
func toggleTarget(current string) (string, error) {
	switch current {
	case "active":
		return "inactive", nil
	case "inactive":
		return "active", nil
	case "deleted":
		return "", InvalidRequest("cannot toggle status of a deleted entity")
	default:
		return "", fmt.Errorf("unexpected status %q", current)
	}
}

// Toggled возвращает статус после переключения active<->inactive.
func (s ProductStatus) Toggled() (ProductStatus, error) {
	next, err := toggleTarget(string(s))
	return ProductStatus(next), err
}

// Toggled возвращает статус после переключения active<->inactive.
func (s CustomerStatus) Toggled() (CustomerStatus, error) {
	next, err := toggleTarget(string(s))
	return CustomerStatus(next), err
}
