package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commerce/internal/blobstore"
	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/catalog"
	"github.com/vladislavdragonenkov/commerce/internal/service/customer"
	"github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
	"github.com/vladislavdragonenkov/commerce/internal/service/sales"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
	"github.com/vladislavdragonenkov/commerce/internal/transport/httpapi"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testAPI struct {
	store    *memory.Store
	registry *prometheus.Registry
	router   http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := memory.NewStore()
	registry := prometheus.NewRegistry()
	handler := httpapi.NewHandler(httpapi.Services{
		Sales:       sales.NewService(store, store.Products(), store.History(), sales.WithMetrics(metrics.NewOrderMetricsWithRegisterer(registry))),
		Catalog:     catalog.NewService(store.Products()),
		Customers:   customer.NewService(store.Customers(), blobstore.NewMemoryStore(), customer.WithMaxPhotoBytes(64)),
		Idempotency: idempotency.NewGuard(memory.NewIdempotencyRepository()),
	},
		httpapi.WithMetrics(metrics.NewHTTPMetricsWithRegisterer(registry)),
		httpapi.WithClock(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)

	return &testAPI{store: store, registry: registry, router: handler.Router()}
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) product(t *testing.T, name, price string, stock int, status domain.ProductStatus) domain.Product {
	t.Helper()
	p, err := a.store.Products().Create(context.Background(), domain.Product{
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Status: status,
	})
	require.NoError(t, err)
	return p
}

func (a *testAPI) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := a.store.Products().Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestProducts_CreateAndRenderMoney(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/products", `{"name":"Mouse","description":"usb","price":10.5,"stock":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"price":10.50`)

	body := decode(t, rec)
	assert.Equal(t, "active", body["status"])
	id := int64(body["id"].(float64))

	rec = api.do(t, http.MethodPut, "/products/"+itoa(id), `{"name":"Mouse","price":"11","stock":5,"status":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "inactive", decode(t, rec)["status"])

	rec = api.do(t, http.MethodGet, "/products?status=inactive&size=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	assert.EqualValues(t, 1, page["totalElements"])
	assert.EqualValues(t, 5, page["size"])
}

func TestProducts_ValidationAndLookup(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/products", `{"name":"","price":1,"stock":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/products", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "invalid json")

	rec = api.do(t, http.MethodGet, "/products/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.EqualValues(t, 42, decode(t, rec)["productId"])

	rec = api.do(t, http.MethodGet, "/products?page=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProducts_RejectsSubCentPriceAndKeepsTotalsExact(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/products", `{"name":"Chicle","price":"0.005","stock":10}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, decode(t, rec)["message"], "decimal places")

	rec = api.do(t, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["totalElements"])

	rec = api.do(t, http.MethodPost, "/products", `{"name":"Chicle","price":"0.33","stock":10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := int64(decode(t, rec)["id"].(float64))

	rec = api.do(t, http.MethodPost, "/orders", `{"lines":[{"productId":`+itoa(id)+`,"quantity":3}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order struct {
		Total decimal.Decimal `json:"total"`
		Lines []struct {
			Quantity  int64           `json:"quantity"`
			UnitPrice decimal.Decimal `json:"unitPrice"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	require.Len(t, order.Lines, 1)

	sum := decimal.Zero
	for _, line := range order.Lines {
		sum = sum.Add(line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
	}
	assert.True(t, order.Total.Equal(sum), "total %s must equal sum of lines %s", order.Total, sum)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("0.99")), "unexpected total %s", order.Total)
}

func TestProducts_DeleteAndToggle(t *testing.T) {
	api := newTestAPI(t)
	p := api.product(t, "Desk", "100.00", 1, domain.ProductStatusActive)

	rec := api.do(t, http.MethodPatch, "/products/"+itoa(p.ID)+"/toggle-status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inactive", decode(t, rec)["status"])

	rec = api.do(t, http.MethodDelete, "/products/"+itoa(p.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodDelete, "/products/"+itoa(p.ID), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOrders_CreateReturnsSnapshot(t *testing.T) {
	api := newTestAPI(t)
	a := api.product(t, "A", "10.00", 5, domain.ProductStatusActive)
	b := api.product(t, "B", "4.55", 5, domain.ProductStatusActive)

	body := `{"lines":[{"productId":` + itoa(a.ID) + `,"quantity":3},{"productId":` + itoa(b.ID) + `,"quantity":2}]}`
	rec := api.do(t, http.MethodPost, "/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"total":39.10`)

	order := decode(t, rec)
	lines := order["lines"].([]any)
	require.Len(t, lines, 2)
	assert.Equal(t, "A", lines[0].(map[string]any)["productName"])
	assert.Equal(t, 2, api.stock(t, a.ID))
	assert.Equal(t, 3, api.stock(t, b.ID))
}

func TestOrders_ErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	p := api.product(t, "P", "1.00", 2, domain.ProductStatusActive)
	off := api.product(t, "Off", "1.00", 2, domain.ProductStatusInactive)

	rec := api.do(t, http.MethodPost, "/orders", `{"lines":[{"productId":`+itoa(p.ID)+`,"quantity":3}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, p.ID, body["productId"])
	assert.Equal(t, "P", body["productName"])
	assert.EqualValues(t, 2, body["availableStock"])
	assert.Equal(t, "/orders", body["path"])

	rec = api.do(t, http.MethodPost, "/orders", `{"lines":[{"productId":`+itoa(off.ID)+`,"quantity":1}]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/orders", `{"lines":[{"productId":999,"quantity":1}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/orders", `{"lines":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 2, api.stock(t, p.ID))
}

func TestOrders_IdempotencyKeyReplaysResponse(t *testing.T) {
	api := newTestAPI(t)
	p := api.product(t, "P", "2.50", 5, domain.ProductStatusActive)
	body := `{"lines":[{"productId":` + itoa(p.ID) + `,"quantity":1}]}`

	first := api.do(t, http.MethodPost, "/orders", body, "Idempotency-Key", "order-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := api.do(t, http.MethodPost, "/orders", body, "Idempotency-Key", "order-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 4, api.stock(t, p.ID))

	other := `{"lines":[{"productId":` + itoa(p.ID) + `,"quantity":2}]}`
	mismatch := api.do(t, http.MethodPost, "/orders", other, "Idempotency-Key", "order-1")
	assert.Equal(t, http.StatusUnprocessableEntity, mismatch.Code)
	assert.Equal(t, 4, api.stock(t, p.ID))
}

func TestOrders_IdempotencyKeyStoresBusinessFailure(t *testing.T) {
	api := newTestAPI(t)
	p := api.product(t, "P", "2.50", 1, domain.ProductStatusActive)
	body := `{"lines":[{"productId":` + itoa(p.ID) + `,"quantity":2}]}`

	first := api.do(t, http.MethodPost, "/orders", body, "Idempotency-Key", "k")
	require.Equal(t, http.StatusConflict, first.Code)

	// Пополнение склада не меняет уже сохранённый ответ.
	_, err := api.store.Products().Update(context.Background(), domain.Product{
		ID: p.ID, Name: p.Name, Price: p.Price, Stock: 10, Status: p.Status,
	})
	require.NoError(t, err)

	second := api.do(t, http.MethodPost, "/orders", body, "Idempotency-Key", "k")
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 10, api.stock(t, p.ID))
}

func TestOrders_History(t *testing.T) {
	api := newTestAPI(t)
	p := api.product(t, "Lamp", "3.00", 10, domain.ProductStatusActive)
	for i := 0; i < 3; i++ {
		rec := api.do(t, http.MethodPost, "/orders", `{"lines":[{"productId":`+itoa(p.ID)+`,"quantity":1}]}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := api.do(t, http.MethodGet, "/orders/items?productName=lam&size=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	assert.EqualValues(t, 3, page["totalElements"])
	assert.EqualValues(t, 2, page["totalPages"])
	first := page["content"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 7, first["currentStock"])

	rec = api.do(t, http.MethodGet, "/orders/by-product/"+itoa(p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 3)

	rec = api.do(t, http.MethodGet, "/orders/history?producto=lamp", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 3)
	assert.Equal(t, domain.NoCustomerName, summaries[0]["customerName"])

	rec = api.do(t, http.MethodGet, "/orders/history?fecha=01-02-2024", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/orders/by-product/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCustomers_CRUDAndPhoto(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/customers", `{"firstName":"Ana","lastName":"Diaz","email":"Ana@Example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, "ana@example.com", created["email"])
	assert.Equal(t, false, created["hasPhoto"])
	id := int64(created["id"].(float64))

	rec = api.do(t, http.MethodPost, "/customers", `{"firstName":"Ana","lastName":"Dup","email":"ana@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/customers/"+itoa(id)+"/photo", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	upload := func(data []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		form := multipart.NewWriter(&buf)
		part, err := form.CreateFormFile("file", "me.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
		require.NoError(t, form.Close())

		req := httptest.NewRequest(http.MethodPost, "/customers/"+itoa(id)+"/photo", &buf)
		req.Header.Set("Content-Type", form.FormDataContentType())
		out := httptest.NewRecorder()
		api.router.ServeHTTP(out, req)
		return out
	}

	rec = upload(pngHeader)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["hasPhoto"])

	rec = upload(bytes.Repeat([]byte{1}, 65))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/customers/"+itoa(id)+"/photo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngHeader, rec.Body.Bytes())

	rec = api.do(t, http.MethodGet, "/customers?query=diaz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["totalElements"])

	rec = api.do(t, http.MethodDelete, "/customers/"+itoa(id), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouter_UnknownRoutesAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = api.do(t, http.MethodDelete, "/orders", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	p := api.product(t, "P", "1.00", 1, domain.ProductStatusActive)
	rec = api.do(t, http.MethodGet, "/products/"+itoa(p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	count := testutil.CollectAndCount(api.registry, "commerce_http_requests_total")
	assert.GreaterOrEqual(t, count, 3)

	families, err := api.registry.Gather()
	require.NoError(t, err)
	var routes []string
	for _, family := range families {
		if family.GetName() != "commerce_http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "route" {
					routes = append(routes, label.GetValue())
				}
			}
		}
	}
	assert.Contains(t, routes, "/products/{id:[0-9]+}")
	assert.Contains(t, routes, "unmatched")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
