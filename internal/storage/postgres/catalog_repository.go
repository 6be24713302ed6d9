package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

const (
	productColumns  = `id, name, description, price, stock, status, created_at, updated_at`
	customerColumns = `id, first_name, last_name, email, phone, photo_key, status, created_at, updated_at`
)

type productRow struct {
	ID          int64           `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Stock       int             `db:"stock"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		Status:      domain.ProductStatus(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type customerRow struct {
	ID        int64          `db:"id"`
	FirstName string         `db:"first_name"`
	LastName  string         `db:"last_name"`
	Email     string         `db:"email"`
	Phone     string         `db:"phone"`
	PhotoKey  sql.NullString `db:"photo_key"`
	Status    string         `db:"status"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r customerRow) toDomain() domain.Customer {
	return domain.Customer{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone,
		PhotoKey:  r.PhotoKey.String,
		Status:    domain.CustomerStatus(r.Status),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// ProductRepository — PostgreSQL-реализация каталога.
type ProductRepository struct {
	db *sqlx.DB
}

func (r *ProductRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	var row productRow
	err := r.db.GetContext(ctx, &row, `
		INSERT INTO products (name, description, price, stock, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+productColumns,
		strings.TrimSpace(product.Name),
		product.Description,
		product.Price,
		product.Stock,
		string(product.Status),
		now,
	)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	return row.toDomain(), nil
}

func (r *ProductRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row productRow
	err := r.db.GetContext(ctx, &row, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ProductNotFound(id)
		}
		return domain.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}

	return row.toDomain(), nil
}

func (r *ProductRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page := filter.PageRequest.Normalize()
	conditions := []string{"1 = 1"}
	args := make([]any, 0, 4)
	if name := strings.TrimSpace(filter.Name); name != "" {
		conditions = append(conditions, "name ILIKE ?")
		args = append(args, likePattern(name))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?", "stock > 0")
		args = append(args, string(filter.Status))
	}
	where := strings.Join(conditions, " AND ")

	var total int64
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM products WHERE `+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	var rows []productRow
	query := r.db.Rebind(`SELECT ` + productColumns + ` FROM products WHERE ` + where + ` ORDER BY id LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &rows, query, append(args, page.Size, page.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toDomain())
	}
	return products, total, nil
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row productRow
	err := r.db.GetContext(ctx, &row, `
		UPDATE products
		SET name = $1,
		    description = $2,
		    price = $3,
		    stock = $4,
		    status = $5,
		    updated_at = $6
		WHERE id = $7
		RETURNING `+productColumns,
		strings.TrimSpace(product.Name),
		product.Description,
		product.Price,
		product.Stock,
		string(product.Status),
		time.Now().UTC(),
		product.ID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ProductNotFound(product.ID)
		}
		return domain.Product{}, fmt.Errorf("update product %d: %w", product.ID, err)
	}

	return row.toDomain(), nil
}

func (r *ProductRepository) SetStatus(ctx context.Context, id int64, status domain.ProductStatus) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row productRow
	err := r.db.GetContext(ctx, &row, `
		UPDATE products SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING `+productColumns,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ProductNotFound(id)
		}
		return domain.Product{}, fmt.Errorf("set product %d status: %w", id, err)
	}

	return row.toDomain(), nil
}

// CustomerRepository хранит клиентов в PostgreSQL.
type CustomerRepository struct {
	db *sqlx.DB
}

func (r *CustomerRepository) Create(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	var row customerRow
	err := r.db.GetContext(ctx, &row, `
		INSERT INTO customers (first_name, last_name, email, phone, photo_key, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $7)
		RETURNING `+customerColumns,
		strings.TrimSpace(customer.FirstName),
		strings.TrimSpace(customer.LastName),
		strings.TrimSpace(customer.Email),
		strings.TrimSpace(customer.Phone),
		customer.PhotoKey,
		string(customer.Status),
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Customer{}, domain.ErrEmailTaken
		}
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}

	return row.toDomain(), nil
}

func (r *CustomerRepository) Get(ctx context.Context, id int64) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return getCustomer(ctx, r.db, id)
}

func (r *CustomerRepository) List(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page := filter.PageRequest.Normalize()
	where := "1 = 1"
	args := make([]any, 0, 3)
	if query := strings.TrimSpace(filter.Query); query != "" {
		where = "(first_name || ' ' || last_name ILIKE ? OR email ILIKE ?)"
		pattern := likePattern(query)
		args = append(args, pattern, pattern)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM customers WHERE `+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	var rows []customerRow
	query := r.db.Rebind(`SELECT ` + customerColumns + ` FROM customers WHERE ` + where + ` ORDER BY id LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &rows, query, append(args, page.Size, page.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}

	customers := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		customers = append(customers, row.toDomain())
	}
	return customers, total, nil
}

func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row customerRow
	err := r.db.GetContext(ctx, &row, `
		UPDATE customers
		SET first_name = $1,
		    last_name = $2,
		    email = $3,
		    phone = $4,
		    status = $5,
		    updated_at = $6
		WHERE id = $7
		RETURNING `+customerColumns,
		strings.TrimSpace(customer.FirstName),
		strings.TrimSpace(customer.LastName),
		strings.TrimSpace(customer.Email),
		strings.TrimSpace(customer.Phone),
		string(customer.Status),
		time.Now().UTC(),
		customer.ID,
	)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return domain.Customer{}, domain.ErrCustomerNotFound
		case isUniqueViolation(err):
			return domain.Customer{}, domain.ErrEmailTaken
		}
		return domain.Customer{}, fmt.Errorf("update customer %d: %w", customer.ID, err)
	}

	return row.toDomain(), nil
}

func (r *CustomerRepository) SetStatus(ctx context.Context, id int64, status domain.CustomerStatus) (domain.Customer, error) {
	return r.updateColumn(ctx, id, "status", string(status))
}

func (r *CustomerRepository) SetPhoto(ctx context.Context, id int64, photoKey string) (domain.Customer, error) {
	return r.updateColumn(ctx, id, "photo_key", sql.NullString{String: photoKey, Valid: photoKey != ""})
}

// updateColumn обновляет одну колонку из фиксированного набора.
func (r *CustomerRepository) updateColumn(ctx context.Context, id int64, column string, value any) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row customerRow
	err := r.db.GetContext(ctx, &row, `
		UPDATE customers SET `+column+` = $1, updated_at = $2
		WHERE id = $3
		RETURNING `+customerColumns,
		value, time.Now().UTC(), id,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("set customer %d %s: %w", id, column, err)
	}

	return row.toDomain(), nil
}

func getCustomer(ctx context.Context, q sqlx.QueryerContext, id int64) (domain.Customer, error) {
	var row customerRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("get customer %d: %w", id, err)
	}
	return row.toDomain(), nil
}

var (
	_ domain.ProductRepository  = (*ProductRepository)(nil)
	_ domain.CustomerRepository = (*CustomerRepository)(nil)
)
