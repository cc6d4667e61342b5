package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service coordinates product master operations.
type Service struct {
	repo *Repository
}

// NewService builds Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("%w: product code required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(p.UOM) == "" {
		return fmt.Errorf("%w: unit of measure required", shared.ErrInvalidInput)
	}
	if p.Price.IsNegative() || p.Cost.IsNegative() {
		return fmt.Errorf("%w: price and cost must be >= 0", shared.ErrInvalidInput)
	}
	return nil
}

// List returns products matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

// Get loads one product.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", shared.ErrInvalidInput)
	}
	return s.repo.Get(ctx, companyID, id)
}

// Create registers a new product.
func (s *Service) Create(ctx context.Context, p Product) (Product, error) {
	if err := s.validate(p); err != nil {
		return Product{}, err
	}
	p.IsActive = true
	return s.repo.Create(ctx, p)
}

// Update rewrites the mutable product fields.
func (s *Service) Update(ctx context.Context, companyID, id int64, p Product) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid product id", shared.ErrInvalidInput)
	}
	if err := s.validate(p); err != nil {
		return err
	}
	return s.repo.Update(ctx, companyID, id, p)
}
