// Package customer реализует управление клиентами и их фотографиями.
package customer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/blobstore"
	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// DefaultMaxPhotoBytes ограничивает размер загружаемой фотографии.
const DefaultMaxPhotoBytes = 5 << 20

// Input — редактируемые поля клиента.
type Input struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	// Status пустой: при создании active, при обновлении сохраняется текущий.
	Status domain.CustomerStatus
}

// Photo содержит фотографию клиента и её MIME-тип.
type Photo struct {
	Data        []byte
	ContentType string
}

// Service управляет клиентами.
type Service struct {
	customers     domain.CustomerRepository
	blobs         blobstore.Store
	maxPhotoBytes int
	logger        *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithMaxPhotoBytes задаёт лимит размера фотографии.
func WithMaxPhotoBytes(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxPhotoBytes = limit
		}
	}
}

// NewService создаёт сервис клиентов.
func NewService(customers domain.CustomerRepository, blobs blobstore.Store, options ...Option) *Service {
	s := &Service{
		customers:     customers,
		blobs:         blobs,
		maxPhotoBytes: DefaultMaxPhotoBytes,
		logger:        log.WithField("component", "customer-service"),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// MaxPhotoBytes возвращает действующий лимит размера фотографии.
func (s *Service) MaxPhotoBytes() int {
	return s.maxPhotoBytes
}

func (s *Service) Create(ctx context.Context, in Input) (domain.Customer, error) {
	customer := apply(domain.Customer{Status: domain.CustomerStatusActive}, in)
	if err := customer.Validate(); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.customers.Create(ctx, customer)
	if err != nil {
		return domain.Customer{}, mapError(customer.ID, err)
	}
	s.logger.WithField("customer_id", created.ID).Info("customer created")
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Customer, error) {
	customer, err := s.customers.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, mapError(id, err)
	}
	return customer, nil
}

func (s *Service) List(ctx context.Context, filter domain.CustomerFilter) (domain.Page[domain.Customer], error) {
	filter.PageRequest = filter.PageRequest.Normalize()
	filter.Query = strings.TrimSpace(filter.Query)

	customers, total, err := s.customers.List(ctx, filter)
	if err != nil {
		return domain.Page[domain.Customer]{}, fmt.Errorf("list customers: %w", err)
	}
	return domain.NewPage(customers, filter.PageRequest, total), nil
}

// Update перезаписывает поля клиента, фото не трогает.
func (s *Service) Update(ctx context.Context, id int64, in Input) (domain.Customer, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := apply(current, in)
	if err := updated.Validate(); err != nil {
		return domain.Customer{}, err
	}

	saved, err := s.customers.Update(ctx, updated)
	if err != nil {
		return domain.Customer{}, mapError(id, err)
	}
	return saved, nil
}

// Delete помечает клиента удалённым и удаляет его фотографию.
func (s *Service) Delete(ctx context.Context, id int64) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == domain.CustomerStatusDeleted {
		return &domain.Error{
			Kind:    domain.KindConflict,
			Message: fmt.Sprintf("customer %d is already deleted", id),
			Err:     domain.ErrAlreadyDeleted,
		}
	}

	if _, err := s.customers.SetStatus(ctx, id, domain.CustomerStatusDeleted); err != nil {
		return mapError(id, err)
	}
	if current.PhotoKey != "" {
		if _, err := s.customers.SetPhoto(ctx, id, ""); err != nil {
			return mapError(id, err)
		}
		s.deleteBlob(ctx, id, current.PhotoKey)
	}
	s.logger.WithField("customer_id", id).Info("customer deleted")
	return nil
}

// ToggleStatus переключает active<->inactive.
func (s *Service) ToggleStatus(ctx context.Context, id int64) (domain.Customer, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	next, err := current.Status.Toggled()
	if err != nil {
		return domain.Customer{}, err
	}

	customer, err := s.customers.SetStatus(ctx, id, next)
	if err != nil {
		return domain.Customer{}, mapError(id, err)
	}
	return customer, nil
}

// UploadPhoto сохраняет новую фотографию и удаляет предыдущую.
func (s *Service) UploadPhoto(ctx context.Context, id int64, filename string, data []byte) (domain.Customer, error) {
	if len(data) == 0 {
		return domain.Customer{}, domain.InvalidRequest("photo file is empty")
	}
	if len(data) > s.maxPhotoBytes {
		return domain.Customer{}, domain.InvalidRequest("photo exceeds %d bytes", s.maxPhotoBytes)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if current.Status == domain.CustomerStatusDeleted {
		return domain.Customer{}, domain.NotFound("customer %d not found", id)
	}

	key, err := s.blobs.Put(ctx, filename, data)
	if errors.Is(err, blobstore.ErrInvalidName) {
		return domain.Customer{}, domain.InvalidRequest("invalid photo file name %q", filename)
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("store photo of customer %d: %w", id, err)
	}

	updated, err := s.customers.SetPhoto(ctx, id, key)
	if err != nil {
		s.deleteBlob(ctx, id, key)
		return domain.Customer{}, mapError(id, err)
	}
	if current.PhotoKey != "" {
		s.deleteBlob(ctx, id, current.PhotoKey)
	}
	return updated, nil
}

// Photo возвращает фотографию клиента.
func (s *Service) Photo(ctx context.Context, id int64) (Photo, error) {
	customer, err := s.Get(ctx, id)
	if err != nil {
		return Photo{}, err
	}
	if customer.PhotoKey == "" {
		return Photo{}, fmt.Errorf("customer %d: %w", id, domain.ErrPhotoNotFound)
	}

	data, err := s.blobs.Get(ctx, customer.PhotoKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		return Photo{}, fmt.Errorf("customer %d: %w", id, domain.ErrPhotoNotFound)
	}
	if err != nil {
		return Photo{}, fmt.Errorf("read photo of customer %d: %w", id, err)
	}
	return Photo{Data: data, ContentType: http.DetectContentType(data)}, nil
}

func (s *Service) deleteBlob(ctx context.Context, id int64, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"customer_id": id,
			"photo_key":   key,
		}).Warn("failed to delete customer photo")
	}
}

func apply(customer domain.Customer, in Input) domain.Customer {
	customer.FirstName = strings.TrimSpace(in.FirstName)
	customer.LastName = strings.TrimSpace(in.LastName)
	customer.Email = strings.ToLower(strings.TrimSpace(in.Email))
	customer.Phone = strings.TrimSpace(in.Phone)
	if in.Status != "" {
		customer.Status = in.Status
	}
	return customer
}

func mapError(id int64, err error) error {
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		return &domain.Error{Kind: domain.KindConflict, Message: "email is already registered", Err: domain.ErrEmailTaken}
	case errors.Is(err, domain.ErrCustomerNotFound):
		return &domain.Error{Kind: domain.KindNotFound, Message: fmt.Sprintf("customer %d not found", id), Err: domain.ErrCustomerNotFound}
	default:
		return fmt.Errorf("customer %d: %w", id, err)
	}
}
