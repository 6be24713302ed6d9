package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/app"
	"github.com/vladislavdragonenkov/commerce/internal/version"
)

const (
	envHTTPAddr                    = "COMMERCE_HTTP_ADDR"
	envGRPCAddr                    = "COMMERCE_GRPC_ADDR"
	envMetricsAddr                 = "COMMERCE_METRICS_ADDR"
	envStorageDriver               = "COMMERCE_STORAGE_DRIVER"
	envPostgresDSN                 = "COMMERCE_POSTGRES_DSN"
	envPostgresDriver              = "COMMERCE_POSTGRES_DRIVER"
	envPostgresAutoMigrate         = "COMMERCE_POSTGRES_AUTO_MIGRATE"
	envLockTimeout                 = "COMMERCE_LOCK_TIMEOUT"
	envOrderMaxAttempts            = "COMMERCE_ORDER_MAX_ATTEMPTS"
	envOrderRetryDelay             = "COMMERCE_ORDER_RETRY_DELAY"
	envOutboxPollInterval          = "COMMERCE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "COMMERCE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "COMMERCE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "COMMERCE_OUTBOX_RETRY_DELAY"
	envOutboxMaxLag                = "COMMERCE_OUTBOX_MAX_LAG"
	envIdempotencyTTL              = "COMMERCE_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "COMMERCE_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "COMMERCE_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envPhotoDir                    = "COMMERCE_PHOTO_DIR"
	envMaxPhotoBytes               = "COMMERCE_MAX_PHOTO_BYTES"
	envShutdownTimeout             = "COMMERCE_SHUTDOWN_TIMEOUT"
	envLogLevel                    = "COMMERCE_LOG_LEVEL"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envKafkaTopic                  = "KAFKA_TOPIC"
	envKafkaDLQTopic               = "KAFKA_DLQ_TOPIC"
)

// envLookup совпадает по сигнатуре с os.LookupEnv.
type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		log.WithError(err).WithField("env", envLogLevel).Warn("invalid log level, using info")
		return
	}
	log.SetLevel(level)
}

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения пропускаются и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	positiveInt := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	positive := func(d time.Duration) bool { return d > 0 }
	nonNegative := func(d time.Duration) bool { return d >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envPostgresDriver, &cfg.PostgresDriver)
	cfg.PostgresDriver = strings.ToLower(cfg.PostgresDriver)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	duration(envLockTimeout, &cfg.LockTimeout, nonNegative, "must be >= 0")

	positiveInt(envOrderMaxAttempts, &cfg.OrderMaxAttempts)
	duration(envOrderRetryDelay, &cfg.OrderRetryDelay, nonNegative, "must be >= 0")

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	positiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	positiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0")
	duration(envOutboxMaxLag, &cfg.OutboxMaxLag, nonNegative, "must be >= 0")

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positive, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")
	positiveInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	str(envPhotoDir, &cfg.PhotoDir)
	positiveInt(envMaxPhotoBytes, &cfg.MaxPhotoBytes)

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaTopic, &cfg.KafkaTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)

	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positive, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields(version.Fields())).WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
	}).Info("запускаем commerce-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("commerce-service остановлен")
}
