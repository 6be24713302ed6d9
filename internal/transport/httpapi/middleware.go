package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
)

// replayedHeader помечает ответ, воспроизведённый по Idempotency-Key.
const replayedHeader = "Idempotent-Replayed"

// statusRecorder запоминает статус ответа и, при необходимости, его тело.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	capture bool
	body    bytes.Buffer
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	if r.capture {
		r.body.Write(p)
	}
	return r.ResponseWriter.Write(p)
}

func (r *statusRecorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// instrument пишет access log и HTTP-метрики по шаблону маршрута.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}

		duration := time.Since(started)
		h.metrics.Observe(r.Method, route, rec.statusCode(), duration)
		h.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"route":       route,
			"status":      rec.statusCode(),
			"duration_ms": duration.Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("http request")
	})
}

// recoverPanic превращает панику обработчика в ответ 500.
func (h *Handler) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				h.writeError(w, r, fmt.Errorf("panic: %v", p))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// idempotent обеспечивает семантику Idempotency-Key для обработчика.
func (h *Handler) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if h.idempotency == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
		if err != nil {
			h.badRequest(w, r, "request body exceeds %d bytes", maxJSONBodyBytes)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		decision, err := h.idempotency.Begin(r.Context(), key, idempotency.RequestHash(r.Method, r.URL.Path, body))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if decision.Replay {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(replayedHeader, "true")
			w.WriteHeader(decision.Record.HTTPStatus)
			_, _ = w.Write(decision.Record.ResponseBody)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, capture: true}
		next.ServeHTTP(rec, r)

		// Ответ уже отправлен; сохраняем его, даже если клиент отключился.
		ctx := context.WithoutCancel(r.Context())
		logger := h.logger.WithField("idempotency_key", key)
		if rec.Header().Get("Retry-After") != "" {
			if err := h.idempotency.Release(ctx, key); err != nil {
				logger.WithError(err).Warn("failed to release idempotency key")
			}
			return
		}
		if err := h.idempotency.Complete(ctx, key, rec.statusCode(), rec.body.Bytes()); err != nil {
			logger.WithError(err).Warn("failed to complete idempotency key")
		}
	})
}
