package batches

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Insert(ctx context.Context, b Batch) (int64, error)
	GetByID(ctx context.Context, companyID, id int64) (Batch, error)
	ListActiveByItem(ctx context.Context, companyID, itemID int64) ([]Batch, error)
}

// PlanCachePort caches FEFO previews for dashboard reads. Nil disables caching.
type PlanCachePort interface {
	Get(ctx context.Context, companyID, itemID int64, need decimal.Decimal) (FefoPlan, bool)
	Set(ctx context.Context, companyID int64, plan FefoPlan)
	Invalidate(ctx context.Context, companyID, itemID int64)
}

// Service coordinates batch operations.
type Service struct {
	repo  RepositoryPort
	cache PlanCachePort
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache PlanCachePort) *Service {
	return &Service{repo: repo, cache: cache}
}

// Create registers a new batch, typically from a receiving workflow.
// Current quantity starts at the initial quantity.
func (s *Service) Create(ctx context.Context, b Batch) (Batch, error) {
	if b.CompanyID == 0 || b.ItemID == 0 {
		return Batch{}, fmt.Errorf("%w: company and item required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(b.BatchNumber) == "" {
		return Batch{}, fmt.Errorf("%w: batch number required", shared.ErrInvalidInput)
	}
	if b.InitialQty.IsNegative() || b.UnitCost.IsNegative() {
		return Batch{}, ErrInvalidQuantity
	}
	if b.ExpiryDate != nil && !b.MfgDate.IsZero() && b.ExpiryDate.Before(b.MfgDate) {
		return Batch{}, fmt.Errorf("%w: expiry before manufacturing date", shared.ErrInvalidInput)
	}
	b.CurrentQty = b.InitialQty
	b.Status = StatusActive
	if b.CurrentQty.IsZero() {
		b.Status = StatusDepleted
	}
	id, err := s.repo.Insert(ctx, b)
	if err != nil {
		return Batch{}, err
	}
	s.invalidatePlans(ctx, b.CompanyID, b.ItemID)
	return s.repo.GetByID(ctx, b.CompanyID, id)
}

// invalidatePlans drops cached previews after an operator-visible change.
// Movements recorded inside a foreign unit of work rely on the TTL instead;
// the preview contract tolerates brief staleness.
func (s *Service) invalidatePlans(ctx context.Context, companyID, itemID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, companyID, itemID)
	}
}

// Get loads one batch.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Batch, error) {
	return s.repo.GetByID(ctx, companyID, id)
}

// Adjust applies a quantity delta to a batch inside the caller's unit of
// work, holding a row lock for the read-modify-write. Depleted/active
// transitions are automatic; quarantine and expired are sticky and only an
// explicit ChangeStatus leaves them.
func (s *Service) Adjust(ctx context.Context, tx TxRepository, companyID, batchID int64, qty decimal.Decimal, dir Direction) (Batch, error) {
	if !qty.IsPositive() {
		return Batch{}, ErrInvalidQuantity
	}
	if dir != DirectionIn && dir != DirectionOut {
		return Batch{}, fmt.Errorf("%w: invalid direction", shared.ErrInvalidInput)
	}
	b, err := tx.GetForUpdate(ctx, companyID, batchID)
	if err != nil {
		return Batch{}, err
	}
	delta := qty
	if dir == DirectionOut {
		delta = qty.Neg()
	}
	next := b.CurrentQty.Add(delta)
	if next.IsNegative() {
		return Batch{}, ErrInsufficientQuantity
	}
	status := b.Status
	switch status {
	case StatusActive:
		if next.IsZero() {
			status = StatusDepleted
		}
	case StatusDepleted:
		if next.IsPositive() {
			status = StatusActive
		}
	}
	if err := tx.UpdateQuantityStatus(ctx, b.ID, next, status); err != nil {
		return Batch{}, err
	}
	b.CurrentQty = next
	b.Status = status
	return b, nil
}

// AdjustStandalone wraps Adjust in its own transaction for callers outside
// a movement unit of work.
func (s *Service) AdjustStandalone(ctx context.Context, companyID, batchID int64, qty decimal.Decimal, dir Direction) (Batch, error) {
	var out Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := s.Adjust(ctx, tx, companyID, batchID, qty, dir)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.invalidatePlans(ctx, out.CompanyID, out.ItemID)
	return out, nil
}

// ChangeStatus applies an explicit operator status change. Requesting
// ACTIVE on an empty batch lands on DEPLETED so the depleted invariant holds.
func (s *Service) ChangeStatus(ctx context.Context, companyID, batchID int64, status Status) (Batch, error) {
	if !status.IsValid() {
		return Batch{}, ErrInvalidStatusChange
	}
	var out Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetForUpdate(ctx, companyID, batchID)
		if err != nil {
			return err
		}
		next := status
		if next == StatusActive && b.CurrentQty.IsZero() {
			next = StatusDepleted
		}
		if next == StatusDepleted && b.CurrentQty.IsPositive() {
			return ErrInvalidStatusChange
		}
		if err := tx.UpdateQuantityStatus(ctx, b.ID, b.CurrentQty, next); err != nil {
			return err
		}
		b.Status = next
		out = b
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.invalidatePlans(ctx, out.CompanyID, out.ItemID)
	return out, nil
}

// PlanFEFO walks active batches in first-expiry-first-out order and plans
// consumption for the requested quantity. It is read-only and takes no
// locks; callers apply the plan through movement recording, which
// re-validates availability at commit time. The full plan is returned even
// when it under-allocates.
func (s *Service) PlanFEFO(ctx context.Context, companyID, itemID int64, need decimal.Decimal) (FefoPlan, error) {
	if itemID == 0 {
		return FefoPlan{}, fmt.Errorf("%w: item required", shared.ErrInvalidInput)
	}
	if !need.IsPositive() {
		return FefoPlan{}, ErrInvalidQuantity
	}
	if s.cache != nil {
		if plan, ok := s.cache.Get(ctx, companyID, itemID, need); ok {
			return plan, nil
		}
	}
	list, err := s.repo.ListActiveByItem(ctx, companyID, itemID)
	if err != nil {
		return FefoPlan{}, err
	}
	plan := FefoPlan{ItemID: itemID, Requested: need, TotalPlanned: decimal.Zero}
	remaining := need
	for _, b := range list {
		if !remaining.IsPositive() {
			break
		}
		consume := decimal.Min(remaining, b.CurrentQty)
		plan.Lines = append(plan.Lines, PlanLine{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Available:   b.CurrentQty,
			Consume:     consume,
			ExpiryDate:  b.ExpiryDate,
		})
		plan.TotalPlanned = plan.TotalPlanned.Add(consume)
		remaining = remaining.Sub(consume)
	}
	if s.cache != nil {
		s.cache.Set(ctx, companyID, plan)
	}
	return plan, nil
}
