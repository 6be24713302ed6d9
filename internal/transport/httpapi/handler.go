// Package httpapi реализует REST-интерфейс магазина поверх gorilla/mux.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/catalog"
	"github.com/vladislavdragonenkov/commerce/internal/service/customer"
	"github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
	"github.com/vladislavdragonenkov/commerce/internal/service/sales"
)

// maxJSONBodyBytes ограничивает размер JSON-тела запроса.
const maxJSONBodyBytes = 1 << 20

// Services — прикладные сервисы, которые обслуживает API.
type Services struct {
	Sales     *sales.Service
	Catalog   *catalog.Service
	Customers *customer.Service
	// Idempotency может быть nil: тогда заголовок Idempotency-Key игнорируется.
	Idempotency *idempotency.Guard
}

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт logger API.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics подключает HTTP-метрики.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithClock подменяет источник времени для тел ошибок.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// Handler вызывает прикладные сервисы из HTTP-обработчиков.
type Handler struct {
	sales       *sales.Service
	catalog     *catalog.Service
	customers   *customer.Service
	idempotency *idempotency.Guard
	metrics     *metrics.HTTPMetrics
	logger      *log.Entry
	now         func() time.Time
}

// NewHandler создаёт Handler.
func NewHandler(services Services, options ...Option) *Handler {
	h := &Handler{
		sales:       services.Sales,
		catalog:     services.Catalog,
		customers:   services.Customers,
		idempotency: services.Idempotency,
		logger:      log.WithField("component", "http-api"),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

// Router возвращает готовый http.Handler со всеми маршрутами.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	r.Use(h.instrument, h.recoverPanic)
	r.NotFoundHandler = h.instrument(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h.writeError(w, req, domain.NotFound("route %s not found", req.URL.Path))
	}))
	r.MethodNotAllowedHandler = h.instrument(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
			Timestamp: h.now(),
			Status:    http.StatusMethodNotAllowed,
			Error:     http.StatusText(http.StatusMethodNotAllowed),
			Message:   fmt.Sprintf("method %s is not allowed", req.Method),
			Path:      req.URL.Path,
		})
	}))
	return r
}

// RegisterRoutes регистрирует маршруты на переданном роутере.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Заказы
	r.Handle("/orders", h.idempotent(http.HandlerFunc(h.createOrder))).Methods(http.MethodPost)
	r.HandleFunc("/orders/items", h.listLineHistory).Methods(http.MethodGet)
	r.HandleFunc("/orders/by-product/{productId:[0-9]+}", h.productHistory).Methods(http.MethodGet)
	r.HandleFunc("/orders/history", h.orderHistory).Methods(http.MethodGet)

	// Товары
	r.HandleFunc("/products", h.createProduct).Methods(http.MethodPost)
	r.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/{id:[0-9]+}", h.getProduct).Methods(http.MethodGet)
	r.HandleFunc("/products/{id:[0-9]+}", h.updateProduct).Methods(http.MethodPut)
	r.HandleFunc("/products/{id:[0-9]+}", h.deleteProduct).Methods(http.MethodDelete)
	r.HandleFunc("/products/{id:[0-9]+}/toggle-status", h.toggleProduct).Methods(http.MethodPatch)

	// Клиенты
	r.HandleFunc("/customers", h.createCustomer).Methods(http.MethodPost)
	r.HandleFunc("/customers", h.listCustomers).Methods(http.MethodGet)
	r.HandleFunc("/customers/{id:[0-9]+}", h.getCustomer).Methods(http.MethodGet)
	r.HandleFunc("/customers/{id:[0-9]+}", h.updateCustomer).Methods(http.MethodPut)
	r.HandleFunc("/customers/{id:[0-9]+}", h.deleteCustomer).Methods(http.MethodDelete)
	r.HandleFunc("/customers/{id:[0-9]+}/toggle-status", h.toggleCustomer).Methods(http.MethodPatch)
	r.HandleFunc("/customers/{id:[0-9]+}/photo", h.uploadPhoto).Methods(http.MethodPost)
	r.HandleFunc("/customers/{id:[0-9]+}/photo", h.getPhoto).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to write response body")
	}
}

// decodeJSON читает тело запроса в dst.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.badRequest(w, r, "request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			h.badRequest(w, r, "request body is empty")
		default:
			h.badRequest(w, r, "invalid json: %v", err)
		}
		return false
	}
	return true
}

// pathID читает числовой параметр маршрута.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(w, r, "%s must be a positive integer", name)
		return 0, false
	}
	return id, true
}

// pageRequest читает page и size из query.
func (h *Handler) pageRequest(w http.ResponseWriter, r *http.Request) (domain.PageRequest, bool) {
	var page domain.PageRequest
	query := r.URL.Query()
	for name, dst := range map[string]*int{"page": &page.Page, "size": &page.Size} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			h.badRequest(w, r, "%s must be a non-negative integer", name)
			return domain.PageRequest{}, false
		}
		*dst = value
	}
	return page.Normalize(), true
}

// firstQuery возвращает первое непустое значение из перечисленных параметров.
func firstQuery(r *http.Request, names ...string) string {
	query := r.URL.Query()
	for _, name := range names {
		if value := query.Get(name); value != "" {
			return value
		}
	}
	return ""
}
