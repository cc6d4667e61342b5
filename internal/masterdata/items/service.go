package items

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service coordinates item master operations.
type Service struct {
	repo *Repository
}

// NewService builds Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) validate(it Item) error {
	if strings.TrimSpace(it.Code) == "" {
		return fmt.Errorf("%w: item code required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(it.Name) == "" {
		return fmt.Errorf("%w: item name required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(it.UOM) == "" {
		return fmt.Errorf("%w: unit of measure required", shared.ErrInvalidInput)
	}
	return nil
}

// List returns items matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	return s.repo.List(ctx, filters)
}

// Get loads one item.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, fmt.Errorf("%w: invalid item id", shared.ErrInvalidInput)
	}
	return s.repo.Get(ctx, companyID, id)
}

// Create registers a new item.
func (s *Service) Create(ctx context.Context, it Item) (Item, error) {
	if err := s.validate(it); err != nil {
		return Item{}, err
	}
	it.IsActive = true
	return s.repo.Create(ctx, it)
}

// Update rewrites the mutable item fields.
func (s *Service) Update(ctx context.Context, companyID, id int64, it Item) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid item id", shared.ErrInvalidInput)
	}
	if err := s.validate(it); err != nil {
		return err
	}
	return s.repo.Update(ctx, companyID, id, it)
}
