// Package catalog реализует управление товарами каталога.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// ProductInput — редактируемые поля товара.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	// Status учитывается только в Update; пустое значение сохраняет текущий статус.
	Status domain.ProductStatus
}

// Service управляет каталогом. Остаток меняется здесь только явным редактированием,
// продажи списывают его через транзакцию заказа.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository) *Service {
	return &Service{
		products: products,
		logger:   log.WithField("component", "catalog-service"),
	}
}

// Create добавляет товар; новый товар всегда активен.
func (s *Service) Create(ctx context.Context, in ProductInput) (domain.Product, error) {
	product := domain.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		Stock:       in.Stock,
		Status:      domain.ProductStatusActive,
	}
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	created, err := s.products.Create(ctx, product)
	if err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	s.logger.WithField("product_id", created.ID).Info("product created")
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, notFound(id, err)
	}
	return product, nil
}

// List возвращает страницу каталога.
func (s *Service) List(ctx context.Context, filter domain.ProductFilter) (domain.Page[domain.Product], error) {
	filter.PageRequest = filter.PageRequest.Normalize()
	filter.Name = strings.TrimSpace(filter.Name)
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.Page[domain.Product]{}, domain.InvalidRequest("unknown product status %q", filter.Status)
	}

	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("list products: %w", err)
	}
	return domain.NewPage(products, filter.PageRequest, total), nil
}

// Update перезаписывает поля товара.
func (s *Service) Update(ctx context.Context, id int64, in ProductInput) (domain.Product, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := current
	updated.Name = strings.TrimSpace(in.Name)
	updated.Description = strings.TrimSpace(in.Description)
	updated.Price = in.Price
	updated.Stock = in.Stock
	if in.Status != "" {
		updated.Status = in.Status
	}
	if err := updated.Validate(); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.products.Update(ctx, updated)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product %d: %w", id, notFound(id, err))
	}
	return saved, nil
}

// Delete выполняет логическое удаление.
func (s *Service) Delete(ctx context.Context, id int64) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == domain.ProductStatusDeleted {
		return &domain.Error{
			Kind:    domain.KindConflict,
			Message: fmt.Sprintf("product %d is already deleted", id),
			Err:     domain.ErrAlreadyDeleted,
		}
	}

	if _, err := s.products.SetStatus(ctx, id, domain.ProductStatusDeleted); err != nil {
		return fmt.Errorf("delete product %d: %w", id, notFound(id, err))
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

// ToggleStatus переключает active<->inactive.
func (s *Service) ToggleStatus(ctx context.Context, id int64) (domain.Product, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	next, err := current.Status.Toggled()
	if err != nil {
		return domain.Product{}, err
	}

	product, err := s.products.SetStatus(ctx, id, next)
	if err != nil {
		return domain.Product{}, fmt.Errorf("toggle product %d: %w", id, notFound(id, err))
	}
	return product, nil
}

func notFound(id int64, err error) error {
	if errors.Is(err, domain.ErrProductNotFound) {
		return domain.ProductNotFound(id)
	}
	return err
}
