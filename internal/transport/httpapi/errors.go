package httpapi

import (
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
)

// retryAfterSeconds подсказывает клиенту паузу перед повтором после конфликта.
const retryAfterSeconds = "1"

type errorResponse struct {
	Timestamp      time.Time `json:"timestamp"`
	Status         int       `json:"status"`
	Error          string    `json:"error"`
	Message        string    `json:"message"`
	Path           string    `json:"path"`
	ProductID      *int64    `json:"productId,omitempty"`
	ProductName    string    `json:"productName,omitempty"`
	AvailableStock *int      `json:"availableStock,omitempty"`
	Retryable      bool      `json:"retryable,omitempty"`
}

// statusFor сопоставляет ошибку с HTTP-статусом.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, idempotency.ErrRequestInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest
	}

	switch domain.KindOf(err) {
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindProductNotFound, domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindConcurrencyConflict, domain.KindConflict:
		return http.StatusConflict
	case domain.KindProductNotActive:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{
		Timestamp: h.now(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   err.Error(),
		Path:      r.URL.Path,
	}

	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		body.Message = "internal server error"
	}

	var typed *domain.Error
	if errors.As(err, &typed) {
		switch typed.Kind {
		case domain.KindProductNotFound:
			body.ProductID = &typed.ProductID
		case domain.KindInsufficientStock, domain.KindProductNotActive:
			body.ProductID = &typed.ProductID
			body.ProductName = typed.ProductName
			available := typed.Available
			body.AvailableStock = &available
		}
	}

	if domain.IsRetryable(err) {
		body.Retryable = true
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	writeJSON(w, status, body)
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	h.writeError(w, r, domain.InvalidRequest(format, args...))
}
