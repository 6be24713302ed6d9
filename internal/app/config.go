package app

import (
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/customer"
	"github.com/vladislavdragonenkov/commerce/internal/storage/postgres"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса (dev, тесты).
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresDriver      string
	PostgresAutoMigrate bool
	LockTimeout         time.Duration

	OrderMaxAttempts int
	OrderRetryDelay  time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// После OutboxMaxLag ожидания старейшего события /healthz отдаёт degraded.
	OutboxMaxLag time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	// Пустой PhotoDir хранит фотографии клиентов в памяти.
	PhotoDir      string
	MaxPhotoBytes int

	// KafkaBrokers перечисляются через запятую; без них события только логируются.
	KafkaBrokers  string
	KafkaTopic    string
	KafkaDLQTopic string

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresDriver:      postgres.DriverPgx,
		PostgresAutoMigrate: true,
		LockTimeout:         postgres.DefaultLockTimeout,

		OrderMaxAttempts: 3,
		OrderRetryDelay:  50 * time.Millisecond,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,
		OutboxMaxLag:       5 * time.Minute,

		IdempotencyTTL:              domain.DefaultIdempotencyTTL,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		MaxPhotoBytes: customer.DefaultMaxPhotoBytes,

		ShutdownTimeout: 5 * time.Second,
	}
}
