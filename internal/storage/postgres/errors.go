package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// SQLSTATE коды, которые различает хранилище.
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
)

// sqlState извлекает код ошибки PostgreSQL независимо от драйвера.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == sqlStateUniqueViolation
}

// isConcurrencyConflict отмечает ошибки, после которых транзакцию имеет смысл повторить.
func isConcurrencyConflict(err error) bool {
	switch sqlState(err) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return true
	default:
		return false
	}
}

// classifyTxError поднимает конфликт блокировок до domain.ErrConcurrencyConflict.
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) == domain.KindConcurrencyConflict {
		return err
	}
	if isConcurrencyConflict(err) {
		return domain.ConcurrencyConflict(err)
	}
	return err
}

// likePattern экранирует спецсимволы LIKE и оборачивает строку в %...%.
func likePattern(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.TrimSpace(value)) + "%"
}
