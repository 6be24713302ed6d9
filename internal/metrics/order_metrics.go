package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики оформления заказов.
type OrderMetrics struct {
	// Счётчики исходов
	ordersCreated prometheus.Counter
	ordersFailed  *prometheus.CounterVec
	retries       prometheus.Counter
	unitsSold     prometheus.Counter

	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

// NewOrderMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_orders_created_total",
			Help: "Total number of orders committed",
		}),
		ordersFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "commerce_orders_failed_total",
			Help: "Total number of rejected order attempts by error kind",
		}, []string{"kind"}),
		retries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_order_retries_total",
			Help: "Total number of order transactions retried after a concurrency conflict",
		}),
		unitsSold: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commerce_units_sold_total",
			Help: "Total number of product units sold",
		}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "commerce_order_duration_seconds",
			Help:    "Duration of order creation including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "commerce_orders_in_flight",
			Help: "Number of order creations currently running",
		}),
	}
}

// RecordStarted отмечает начало оформления заказа.
func (m *OrderMetrics) RecordStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// RecordCreated фиксирует успешный заказ.
func (m *OrderMetrics) RecordCreated(units int, duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.ordersCreated.Inc()
	m.unitsSold.Add(float64(units))
	m.duration.Observe(duration.Seconds())
}

// RecordFailed фиксирует отказ с видом ошибки.
func (m *OrderMetrics) RecordFailed(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.ordersFailed.WithLabelValues(kind).Inc()
	m.duration.Observe(duration.Seconds())
}

// RecordRetry увеличивает счётчик повторов транзакции.
func (m *OrderMetrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
