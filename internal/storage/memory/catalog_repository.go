package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type productRepository struct {
	store *Store
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	defer release()

	now := r.store.now()
	r.store.productSeq++
	product.ID = r.store.productSeq
	product.CreatedAt = now
	product.UpdatedAt = now
	r.store.products[product.ID] = product
	return product, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	defer release()

	product, ok := r.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	name := strings.ToLower(strings.TrimSpace(filter.Name))
	matched := make([]domain.Product, 0, len(r.store.products))
	for _, product := range r.store.products {
		if name != "" && !strings.Contains(strings.ToLower(product.Name), name) {
			continue
		}
		if filter.Status != "" && (product.Status != filter.Status || product.Stock <= 0) {
			continue
		}
		matched = append(matched, product)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return paginate(matched, filter.PageRequest), int64(len(matched)), nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	defer release()

	existing, ok := r.store.products[product.ID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = r.store.now()
	r.store.products[product.ID] = product
	return product, nil
}

func (r *productRepository) SetStatus(ctx context.Context, id int64, status domain.ProductStatus) (domain.Product, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	defer release()

	product, ok := r.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	product.Status = status
	product.UpdatedAt = r.store.now()
	r.store.products[id] = product
	return product, nil
}

type customerRepository struct {
	store *Store
}

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	defer release()

	if r.emailTaken(customer.Email, 0) {
		return domain.Customer{}, domain.ErrEmailTaken
	}

	now := r.store.now()
	r.store.customerSeq++
	customer.ID = r.store.customerSeq
	customer.CreatedAt = now
	customer.UpdatedAt = now
	r.store.customers[customer.ID] = customer
	return customer, nil
}

func (r *customerRepository) Get(ctx context.Context, id int64) (domain.Customer, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	defer release()

	customer, ok := r.store.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

func (r *customerRepository) List(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, int64, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	matched := make([]domain.Customer, 0, len(r.store.customers))
	for _, customer := range r.store.customers {
		if query != "" &&
			!strings.Contains(strings.ToLower(customer.FirstName), query) &&
			!strings.Contains(strings.ToLower(customer.LastName), query) &&
			!strings.Contains(strings.ToLower(customer.Email), query) {
			continue
		}
		matched = append(matched, customer)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return paginate(matched, filter.PageRequest), int64(len(matched)), nil
}

func (r *customerRepository) Update(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	defer release()

	existing, ok := r.store.customers[customer.ID]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	if r.emailTaken(customer.Email, customer.ID) {
		return domain.Customer{}, domain.ErrEmailTaken
	}

	customer.PhotoKey = existing.PhotoKey
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = r.store.now()
	r.store.customers[customer.ID] = customer
	return customer, nil
}

func (r *customerRepository) SetStatus(ctx context.Context, id int64, status domain.CustomerStatus) (domain.Customer, error) {
	return r.mutate(ctx, id, func(c *domain.Customer) { c.Status = status })
}

func (r *customerRepository) SetPhoto(ctx context.Context, id int64, photoKey string) (domain.Customer, error) {
	return r.mutate(ctx, id, func(c *domain.Customer) { c.PhotoKey = photoKey })
}

func (r *customerRepository) mutate(ctx context.Context, id int64, apply func(*domain.Customer)) (domain.Customer, error) {
	release, err := r.store.acquire(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	defer release()

	customer, ok := r.store.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	apply(&customer)
	customer.UpdatedAt = r.store.now()
	r.store.customers[id] = customer
	return customer, nil
}

func (r *customerRepository) emailTaken(email string, exceptID int64) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for id, customer := range r.store.customers {
		if id != exceptID && strings.ToLower(customer.Email) == email {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page domain.PageRequest) []T {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return append([]T(nil), items[start:end]...)
}

var (
	_ domain.ProductRepository  = (*productRepository)(nil)
	_ domain.CustomerRepository = (*customerRepository)(nil)
)
