package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/blobstore"
	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/health"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
	"github.com/vladislavdragonenkov/commerce/internal/storage/postgres"
)

// runtimeDependencies содержит хранилища, выбранные по Config.StorageDriver.
type runtimeDependencies struct {
	tx              domain.Transactor
	products        domain.ProductRepository
	customers       domain.CustomerRepository
	history         domain.SalesHistoryRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	blobs           blobstore.Store
	storageChecker  health.Checker
	closeFn         func() error
}

// initRuntimeDependencies открывает хранилище и файловое хранилище фотографий.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps.blobs, err = initBlobStore(cfg.PhotoDir, logger)
	if err != nil {
		deps.close(logger)
		return nil, err
	}
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		store := memory.NewStore(memory.WithLockTimeout(cfg.LockTimeout))
		logger.Info("используем in-memory хранилище")
		return &runtimeDependencies{
			tx:              store,
			products:        store.Products(),
			customers:       store.Customers(),
			history:         store.History(),
			outboxRepo:      store.Outbox(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			storageChecker:  health.NewFuncChecker("storage", func(context.Context) error { return nil }),
		}, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
		}

		store, err := postgres.Open(ctx, dsn,
			postgres.WithDriver(cfg.PostgresDriver),
			postgres.WithLockTimeout(cfg.LockTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		logger.WithField("driver", store.Driver()).Info("используем PostgreSQL хранилище")
		return &runtimeDependencies{
			tx:              store,
			products:        store.Products(),
			customers:       store.Customers(),
			history:         store.History(),
			outboxRepo:      store.Outbox(),
			idempotencyRepo: store.Idempotency(),
			storageChecker:  health.NewDatabaseChecker(store),
			closeFn:         store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q (use %s|%s)", cfg.StorageDriver, StorageDriverMemory, StorageDriverPostgres)
	}
}

func initBlobStore(dir string, logger *log.Entry) (blobstore.Store, error) {
	if strings.TrimSpace(dir) == "" {
		logger.Warn("photo dir is not set, customer photos are kept in memory")
		return blobstore.NewMemoryStore(), nil
	}

	store, err := blobstore.NewFSStore(dir)
	if err != nil {
		return nil, fmt.Errorf("init photo store: %w", err)
	}
	logger.WithField("photo_dir", store.Dir()).Info("customer photos are stored on disk")
	return store, nil
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
