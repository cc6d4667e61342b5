package warehouses

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service coordinates warehouse master operations.
type Service struct {
	repo *Repository
}

// NewService builds Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) validate(w Warehouse) error {
	if w.BranchID <= 0 {
		return fmt.Errorf("%w: branch required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(w.Code) == "" {
		return fmt.Errorf("%w: warehouse code required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: warehouse name required", shared.ErrInvalidInput)
	}
	return nil
}

// List returns warehouses matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

// Get loads one warehouse.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, fmt.Errorf("%w: invalid warehouse id", shared.ErrInvalidInput)
	}
	return s.repo.Get(ctx, companyID, id)
}

// Create registers a new warehouse.
func (s *Service) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	if err := s.validate(w); err != nil {
		return Warehouse{}, err
	}
	w.IsActive = true
	return s.repo.Create(ctx, w)
}

// Update rewrites the mutable warehouse fields.
func (s *Service) Update(ctx context.Context, companyID, id int64, w Warehouse) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid warehouse id", shared.ErrInvalidInput)
	}
	if err := s.validate(w); err != nil {
		return err
	}
	return s.repo.Update(ctx, companyID, id, w)
}
