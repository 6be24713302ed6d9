// Package app собирает сервис: хранилище, прикладные сервисы, HTTP API,
// служебные HTTP и gRPC серверы и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/commerce/internal/health"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/catalog"
	"github.com/vladislavdragonenkov/commerce/internal/service/customer"
	"github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
	"github.com/vladislavdragonenkov/commerce/internal/service/outbox"
	"github.com/vladislavdragonenkov/commerce/internal/service/sales"
	"github.com/vladislavdragonenkov/commerce/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/commerce/internal/version"
)

const (
	readHeaderTimeout = 5 * time.Second
	grpcServiceName   = "commerce"
)

// Run запускает сервис и блокируется до отмены ctx или ошибки одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	pubs := initPublishers(cfg, logger)
	defer closeKafkaProducer(pubs.producer, logger)

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	registry := newRegistry()
	idempotencyMetrics := metrics.NewIdempotencyMetricsWithRegisterer(registry)
	apiHandler := newAPIHandler(cfg, deps, registry, idempotencyMetrics)
	healthHandler := health.NewHandler(version.GetVersion(), cfg.StorageDriver)
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("outbox", health.NewOutboxChecker(deps.outboxRepo, cfg.OutboxMaxLag))

	grpcHealth := grpchealth.NewServer()
	grpcServer := newAdminGRPCServer(registry, grpcHealth)

	outboxWorker := outbox.NewWorker(deps.outboxRepo, pubs.events,
		outbox.WithDLQPublisher(pubs.dlq),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(registry)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	cleanupWorker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithCleanupMetrics(idempotencyMetrics),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	apiListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http api %s: %w", cfg.HTTPAddr, err)
	}
	opsListener, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = apiListener.Close()
		return fmt.Errorf("listen metrics %s: %w", cfg.MetricsAddr, err)
	}
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = apiListener.Close()
		_ = opsListener.Close()
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	apiServer := &http.Server{Handler: apiHandler.Router(), ReadHeaderTimeout: readHeaderTimeout}
	opsServer := &http.Server{Handler: newOpsMux(registry, healthHandler), ReadHeaderTimeout: readHeaderTimeout}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("HTTP API слушает %s", apiListener.Addr())
		return serveHTTP(apiServer, apiListener)
	})
	g.Go(func() error {
		logger.Infof("метрики доступны по адресу %s/metrics", opsListener.Addr())
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", opsListener.Addr(), opsListener.Addr(), opsListener.Addr())
		return serveHTTP(opsServer, opsListener)
	})
	g.Go(func() error {
		logger.Infof("gRPC admin сервер слушает %s", grpcListener.Addr())
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		grpcHealth.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		outboxWorker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		cleanupWorker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		grpcHealth.Shutdown()
		stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
		shutdownHTTP(apiServer, cfg.ShutdownTimeout, logger)
		shutdownHTTP(opsServer, cfg.ShutdownTimeout, logger)
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// newAPIHandler собирает прикладные сервисы поверх выбранного хранилища.
func newAPIHandler(cfg Config, deps *runtimeDependencies, registry prometheus.Registerer, idempotencyMetrics *metrics.IdempotencyMetrics) *httpapi.Handler {
	retry := sales.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.OrderMaxAttempts
	retry.InitialDelay = cfg.OrderRetryDelay

	salesService := sales.NewService(deps.tx, deps.products, deps.history,
		sales.WithRetryPolicy(retry),
		sales.WithMetrics(metrics.NewOrderMetricsWithRegisterer(registry)),
	)
	guard := idempotency.NewGuard(deps.idempotencyRepo,
		idempotency.WithTTL(cfg.IdempotencyTTL),
		idempotency.WithGuardMetrics(idempotencyMetrics),
	)

	return httpapi.NewHandler(httpapi.Services{
		Sales:       salesService,
		Catalog:     catalog.NewService(deps.products),
		Customers:   customer.NewService(deps.customers, deps.blobs, customer.WithMaxPhotoBytes(cfg.MaxPhotoBytes)),
		Idempotency: guard,
	}, httpapi.WithMetrics(metrics.NewHTTPMetricsWithRegisterer(registry)))
}

// newRegistry создаёт реестр метрик с коллекторами рантайма и процесса.
func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// newAdminGRPCServer создаёт служебный gRPC сервер: health, reflection и метрики.
func newAdminGRPCServer(registry prometheus.Registerer, healthServer *grpchealth.Server) *grpc.Server {
	grpcMetrics := promgrpc.NewServerMetrics()
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	grpcMetrics.InitializeMetrics(server)
	if err := registry.Register(grpcMetrics); err != nil {
		log.WithError(err).Warn("failed to register grpc metrics")
	}
	return server
}

// newOpsMux отдаёт /metrics и health endpoints.
func newOpsMux(registry *prometheus.Registry, healthHandler *health.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// stopGRPC останавливает gRPC сервер, переходя к Stop после таймаута.
func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
