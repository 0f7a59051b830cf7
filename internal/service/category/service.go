package category

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/liveexchange/auction-backend/internal/domain/category"
	"github.com/liveexchange/auction-backend/internal/domain/errors"
	"github.com/liveexchange/auction-backend/internal/infrastructure/repository"
)

// Store is the persistence surface the category service needs.
type Store interface {
	Create(ctx context.Context, c *category.Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*category.Category, error)
	List(ctx context.Context) ([]*category.Category, error)
}

// Service owns category browsing and creation.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates the category service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Create stores a category; names are unique.
func (s *Service) Create(ctx context.Context, name, description string) (*category.Category, error) {
	c, err := category.NewCategory(name, description)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_CATEGORY", err.Error())
	}

	if err := s.store.Create(ctx, c); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, errors.NewValidationError("CATEGORY_NAME_TAKEN", "a category with this name already exists")
		}
		return nil, errors.NewInternalError("failed to create category").WithCause(err)
	}

	s.logger.InfoContext(ctx, "category created", "category_id", c.ID, "name", c.Name)
	return c, nil
}

// Get retrieves a single category.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*category.Category, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.ErrCategoryNotFound
		}
		return nil, errors.NewInternalError("failed to load category").WithCause(err)
	}
	return c, nil
}

// List returns every category.
func (s *Service) List(ctx context.Context) ([]*category.Category, error) {
	categories, err := s.store.List(ctx)
	if err != nil {
		return nil, errors.NewInternalError("failed to list categories").WithCause(err)
	}
	return categories, nil
}
