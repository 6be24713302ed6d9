package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	methodCreateOrder     = "CreateOrder"
	methodOrdersByProduct = "OrdersByProduct"
	transportErrorCode    = "transport_error"
)

type orderLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type createOrderBody struct {
	CustomerID *int64      `json:"customerId,omitempty"`
	Lines      []orderLine `json:"lines"`
}

type createdOrder struct {
	ID int64 `json:"id"`
}

// scenarioRunner выполняет один сценарий нагрузки против HTTP API.
type scenarioRunner struct {
	client *http.Client
	cfg    config
	runID  string
	col    *collector
}

func (r *scenarioRunner) run(ctx context.Context, index int) error {
	started := time.Now()
	code := "ok"
	ok := true
	defer func() {
		r.col.record(scenarioMethod, time.Since(started), code, ok)
	}()

	productID := r.cfg.productIDs[index%len(r.cfg.productIDs)]
	body := createOrderBody{Lines: []orderLine{{ProductID: productID, Quantity: r.cfg.quantity}}}
	if r.cfg.customerID > 0 {
		customerID := r.cfg.customerID
		body.CustomerID = &customerID
	}

	status, order, err := r.createOrder(ctx, body, fmt.Sprintf("lt-%s-%d", r.runID, index))
	switch {
	case err != nil:
		code, ok = transportErrorCode, false
		return err
	case status == http.StatusConflict && r.cfg.allowConflict:
		code = strconv.Itoa(status)
		return nil
	case status != http.StatusCreated:
		code, ok = strconv.Itoa(status), false
		return fmt.Errorf("create order: unexpected status %d", status)
	case order.ID == 0:
		code, ok = "empty_id", false
		return errors.New("create response returned empty order id")
	}

	if r.cfg.mode != modeOrderRead {
		return nil
	}

	if err := r.ordersByProduct(ctx, productID); err != nil {
		code, ok = "read_failed", false
		return err
	}
	return nil
}

func (r *scenarioRunner) createOrder(ctx context.Context, body createOrderBody, key string) (int, createdOrder, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, createdOrder{}, err
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if r.cfg.idempotency {
		headers["Idempotency-Key"] = key
	}

	var order createdOrder
	status, err := r.call(ctx, methodCreateOrder, http.MethodPost, "/orders", payload, headers, http.StatusCreated, &order)
	return status, order, err
}

func (r *scenarioRunner) ordersByProduct(ctx context.Context, productID int64) error {
	var rows []json.RawMessage
	status, err := r.call(ctx, methodOrdersByProduct, http.MethodGet, "/orders/by-product/"+strconv.FormatInt(productID, 10), nil, nil, http.StatusOK, &rows)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("orders by product: unexpected status %d", status)
	}
	return nil
}

// call выполняет запрос и записывает результат в collector; тело декодируется только при wantStatus.
func (r *scenarioRunner) call(ctx context.Context, method, httpMethod, path string, body []byte, headers map[string]string, wantStatus int, out any) (int, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, httpMethod, r.cfg.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.col.record(method, time.Since(start), transportErrorCode, false)
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == wantStatus && out != nil {
		err = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	r.col.record(method, time.Since(start), strconv.Itoa(resp.StatusCode), resp.StatusCode == wantStatus && err == nil)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", method, err)
	}
	return resp.StatusCode, nil
}
