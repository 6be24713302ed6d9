package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	// DriverPgx — драйвер database/sql из pgx/v5/stdlib.
	DriverPgx = "pgx"
	// DriverPQ — драйвер github.com/lib/pq.
	DriverPQ = "postgres"

	// DefaultLockTimeout ограничивает ожидание блокировок строк товара.
	DefaultLockTimeout = 2 * time.Second

	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db          *sql.DB
	dbx         *sqlx.DB
	driver      string
	lockTimeout time.Duration
}

// Option настраивает Store.
type Option func(*Store)

// WithDriver выбирает драйвер database/sql: "pgx" (по умолчанию) или "postgres".
func WithDriver(driver string) Option {
	return func(s *Store) {
		if driver != "" {
			s.driver = driver
		}
	}
}

// WithLockTimeout задаёт lock_timeout для транзакций оформления заказа.
// Нулевое значение отключает ограничение.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.lockTimeout = timeout
		}
	}
}

func newStore(options []Option) *Store {
	s := &Store{driver: DriverPgx, lockTimeout: DefaultLockTimeout}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	s := newStore(options)
	switch s.driver {
	case DriverPgx, DriverPQ:
	default:
		return nil, fmt.Errorf("unsupported postgres driver %q", s.driver)
	}

	db, err := sql.Open(s.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s.attach(db)
	return s, nil
}

// NewStore оборачивает уже открытое подключение (например, sqlmock в тестах).
func NewStore(db *sql.DB, options ...Option) *Store {
	s := newStore(options)
	s.attach(db)
	return s
}

func (s *Store) attach(db *sql.DB) {
	s.db = db
	s.dbx = sqlx.NewDb(db, s.driver)
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver возвращает имя используемого драйвера.
func (s *Store) Driver() string {
	return s.driver
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Products возвращает репозиторий каталога.
func (s *Store) Products() *ProductRepository {
	return &ProductRepository{db: s.dbx}
}

// Customers возвращает репозиторий клиентов.
func (s *Store) Customers() *CustomerRepository {
	return &CustomerRepository{db: s.dbx}
}

// History возвращает read-only проекции продаж.
func (s *Store) History() *HistoryRepository {
	return &HistoryRepository{db: s.dbx}
}

// Outbox возвращает репозиторий transactional outbox.
func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{db: s.db}
}

// Idempotency возвращает репозиторий idempotency-ключей.
func (s *Store) Idempotency() *IdempotencyRepository {
	return &IdempotencyRepository{db: s.db}
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
