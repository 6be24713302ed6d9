package domain

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует ошибки, видимые клиенту.
type ErrorKind string

const (
	KindInternal            ErrorKind = "internal"
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindProductNotFound     ErrorKind = "product_not_found"
	KindInsufficientStock   ErrorKind = "insufficient_stock"
	KindProductNotActive    ErrorKind = "product_not_active"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
)

var (
	// ErrInvalidRequest — некорректный запрос (пустые позиции, неизвестный клиент и т.п.).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock возвращается, если количество превышает остаток.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductNotActive — товар неактивен или удалён.
	ErrProductNotActive = errors.New("product is not active")
	// ErrConcurrencyConflict — проигранная гонка за строку; операцию можно повторить.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrNotFound оборачивается ошибками отсутствующих сущностей.
	ErrNotFound = errors.New("not found")
	// ErrConflict означает, что состояние сущности не допускает операцию.
	ErrConflict = errors.New("conflict")

	// ErrCustomerNotFound возвращается, если клиент не найден.
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrEmailTaken возвращается при повторной регистрации email.
	ErrEmailTaken = fmt.Errorf("email already registered: %w", ErrConflict)
	// ErrAlreadyDeleted — повторное логическое удаление.
	ErrAlreadyDeleted = fmt.Errorf("entity already deleted: %w", ErrConflict)
	// ErrPhotoNotFound возвращается, если у клиента нет фотографии.
	ErrPhotoNotFound = fmt.Errorf("photo %w", ErrNotFound)

	// ErrOutboxPublish возвращается при ошибке публикации из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// Error — типизированная ошибка с контекстом по товару.
type Error struct {
	Kind        ErrorKind
	Message     string
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
	Err         error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if sentinel := kindSentinel(e.Kind); sentinel != nil {
		return sentinel.Error()
	}
	return string(e.Kind)
}

// Unwrap позволяет errors.Is находить и sentinel вида, и исходную причину.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel := kindSentinel(e.Kind); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func kindSentinel(kind ErrorKind) error {
	switch kind {
	case KindInvalidRequest:
		return ErrInvalidRequest
	case KindProductNotFound:
		return ErrProductNotFound
	case KindInsufficientStock:
		return ErrInsufficientStock
	case KindProductNotActive:
		return ErrProductNotActive
	case KindConcurrencyConflict:
		return ErrConcurrencyConflict
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	default:
		return nil
	}
}

// InvalidRequest создаёт ошибку некорректного запроса.
func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// ProductNotFound создаёт ошибку отсутствующего товара.
func ProductNotFound(productID int64) *Error {
	return &Error{
		Kind:      KindProductNotFound,
		Message:   fmt.Sprintf("product %d not found", productID),
		ProductID: productID,
	}
}

// InsufficientStock создаёт ошибку нехватки остатка.
func InsufficientStock(product Product, requested int) *Error {
	return &Error{
		Kind:        KindInsufficientStock,
		Message:     fmt.Sprintf("insufficient stock for product %q: available %d, requested %d", product.Name, product.Stock, requested),
		ProductID:   product.ID,
		ProductName: product.Name,
		Available:   product.Stock,
		Requested:   requested,
	}
}

// ProductNotActive создаёт ошибку продажи неактивного товара.
func ProductNotActive(product Product) *Error {
	return &Error{
		Kind:        KindProductNotActive,
		Message:     fmt.Sprintf("product %q is not active for sale (status %s)", product.Name, product.Status),
		ProductID:   product.ID,
		ProductName: product.Name,
		Available:   product.Stock,
	}
}

// ConcurrencyConflict оборачивает ошибку блокировки/сериализации.
func ConcurrencyConflict(cause error) *Error {
	return &Error{
		Kind:    KindConcurrencyConflict,
		Message: "concurrent update detected, retry the request",
		Err:     cause,
	}
}

// NotFound создаёт ошибку отсутствующей сущности.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict создаёт ошибку недопустимого состояния.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf возвращает вид ошибки; неизвестные ошибки считаются внутренними.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrProductNotFound):
		return KindProductNotFound
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrProductNotActive):
		return KindProductNotActive
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsRetryable сообщает, можно ли безопасно повторить операцию целиком.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConcurrencyConflict
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже использован.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
