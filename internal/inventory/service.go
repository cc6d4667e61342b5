package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/inventory/batches"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// valuationScale is the decimal precision kept on the moving-average rate.
const valuationScale = 4

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, key StockKey) (Balance, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// BatchPort adjusts batch quantity inside the recorder's unit of work.
type BatchPort interface {
	Adjust(ctx context.Context, tx batches.TxRepository, companyID, batchID int64, qty decimal.Decimal, dir batches.Direction) (batches.Batch, error)
}

// ReferencePort resolves item/product/warehouse references within the
// tenant. A failed resolution surfaces as shared.ErrNotFound before any
// write. Nil disables resolution (tests, trusted internal callers).
type ReferencePort interface {
	ResolveItem(ctx context.Context, companyID, itemID int64) error
	ResolveProduct(ctx context.Context, companyID, productID int64) error
	ResolveWarehouse(ctx context.Context, companyID, warehouseID int64) error
}

// Service is the movement recorder: the single entry point every workflow
// uses to change on-hand stock. It records one immutable ledger entry,
// maintains the balance aggregate under a row lock and delegates batch
// updates, all inside one unit of work.
type Service struct {
	repo    RepositoryPort
	batches BatchPort
	refs    ReferencePort
	audit   AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, batchPort BatchPort, refs ReferencePort, audit AuditPort) *Service {
	return &Service{repo: repo, batches: batchPort, refs: refs, audit: audit}
}

func (s *Service) validate(ctx context.Context, mv Movement) error {
	if mv.CompanyID == 0 || mv.WarehouseID == 0 {
		return fmt.Errorf("%w: company and warehouse required", ErrInvalidMovement)
	}
	if (mv.ItemID == 0) == (mv.ProductID == 0) {
		return fmt.Errorf("%w: exactly one of item or product must be set", ErrInvalidMovement)
	}
	if mv.Direction != DirectionIn && mv.Direction != DirectionOut {
		return fmt.Errorf("%w: direction must be IN or OUT", ErrInvalidMovement)
	}
	if !mv.TxType.IsValid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidMovement, mv.TxType)
	}
	if !mv.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidMovement)
	}
	if mv.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost must be >= 0", ErrInvalidMovement)
	}
	if mv.RefID != "" {
		if _, err := uuid.Parse(mv.RefID); err != nil {
			return fmt.Errorf("%w: invalid ref id: %v", ErrInvalidMovement, err)
		}
	}
	if s.refs != nil {
		if err := s.refs.ResolveWarehouse(ctx, mv.CompanyID, mv.WarehouseID); err != nil {
			return fmt.Errorf("warehouse %d: %w", mv.WarehouseID, err)
		}
		if mv.ItemID != 0 {
			if err := s.refs.ResolveItem(ctx, mv.CompanyID, mv.ItemID); err != nil {
				return fmt.Errorf("item %d: %w", mv.ItemID, err)
			}
		}
		if mv.ProductID != 0 {
			if err := s.refs.ResolveProduct(ctx, mv.CompanyID, mv.ProductID); err != nil {
				return fmt.Errorf("product %d: %w", mv.ProductID, err)
			}
		}
	}
	return nil
}

// Record applies one movement inside the caller-supplied unit of work. It
// never starts its own transaction; document workflows compose N calls
// with their own status updates and commit them atomically.
func (s *Service) Record(ctx context.Context, tx TxRepository, mv Movement) (LedgerEntry, error) {
	if err := s.validate(ctx, mv); err != nil {
		return LedgerEntry{}, err
	}
	now := time.Now().UTC()
	txDate := mv.TxDate
	if txDate.IsZero() {
		txDate = now
	}

	balance, err := tx.GetBalanceForUpdate(ctx, mv.Key())
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return LedgerEntry{}, err
	}
	// A missing row is a zero balance; the upsert below creates it.

	var newQty decimal.Decimal
	entry := LedgerEntry{
		CompanyID:   mv.CompanyID,
		BranchID:    mv.BranchID,
		WarehouseID: mv.WarehouseID,
		ItemID:      mv.ItemID,
		ProductID:   mv.ProductID,
		BatchID:     mv.BatchID,
		TxType:      mv.TxType,
		TxDate:      txDate,
		RefType:     mv.RefType,
		RefID:       mv.RefID,
		RefNumber:   mv.RefNumber,
		SerialNo:    mv.SerialNo,
		Narration:   mv.Narration,
		CreatedBy:   mv.ActorID,
		CreatedAt:   now,
	}

	switch mv.Direction {
	case DirectionIn:
		newQty = balance.AvailableQty.Add(mv.Quantity)
		entry.QtyIn = mv.Quantity
		entry.UnitCost = mv.UnitCost
		// Moving-average valuation over the incoming cost.
		total := balance.AvailableQty.Mul(balance.ValuationRate).Add(mv.Quantity.Mul(mv.UnitCost))
		if newQty.IsPositive() {
			balance.ValuationRate = total.DivRound(newQty, valuationScale)
		} else {
			balance.ValuationRate = mv.UnitCost
		}
		if mv.TxType == TxTypeGRNReceipt {
			balance.LastPurchaseDate = txDate
		}
	case DirectionOut:
		if mv.Quantity.GreaterThan(balance.AvailableQty) {
			return LedgerEntry{}, fmt.Errorf("%w: requested %s, available %s",
				ErrInsufficientStock, mv.Quantity.String(), balance.AvailableQty.String())
		}
		newQty = balance.AvailableQty.Sub(mv.Quantity)
		entry.QtyOut = mv.Quantity
		entry.UnitCost = mv.UnitCost
		if entry.UnitCost.IsZero() {
			entry.UnitCost = balance.ValuationRate
		}
	}
	entry.RunningBalance = newQty

	id, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return LedgerEntry{}, err
	}
	entry.ID = id

	balance.AvailableQty = newQty
	balance.LastMovementDate = txDate
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return LedgerEntry{}, err
	}

	if mv.BatchID != 0 && s.batches != nil {
		dir := batches.DirectionIn
		if mv.Direction == DirectionOut {
			dir = batches.DirectionOut
		}
		if _, err := s.batches.Adjust(ctx, tx.Batches(), mv.CompanyID, mv.BatchID, mv.Quantity, dir); err != nil {
			return LedgerEntry{}, err
		}
	}
	return entry, nil
}

// RecordStandalone wraps Record in its own transaction for single-movement
// callers such as a scrap entry or one GRN line.
func (s *Service) RecordStandalone(ctx context.Context, mv Movement) (LedgerEntry, error) {
	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := s.Record(ctx, tx, mv)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: mv.CompanyID,
			ActorID:   mv.ActorID,
			Action:    fmt.Sprintf("inventory:%s", mv.TxType),
			Entity:    "inventory_ledger",
			EntityID:  fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"warehouse_id": mv.WarehouseID,
				"item_id":      mv.ItemID,
				"product_id":   mv.ProductID,
				"direction":    mv.Direction,
				"qty":          mv.Quantity.String(),
			},
		})
	}
	return entry, nil
}

// GetStockBalance looks up the aggregate for a stock key. Callers use it
// for availability checks and current-cost resolution.
func (s *Service) GetStockBalance(ctx context.Context, key StockKey) (Balance, error) {
	if key.CompanyID == 0 || key.WarehouseID == 0 {
		return Balance{}, fmt.Errorf("%w: company and warehouse required", ErrInvalidMovement)
	}
	if (key.ItemID == 0) == (key.ProductID == 0) {
		return Balance{}, fmt.Errorf("%w: exactly one of item or product must be set", ErrInvalidMovement)
	}
	return s.repo.GetBalance(ctx, key)
}

// ListEntries lists ledger history for a stock key.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error) {
	if filter.CompanyID == 0 || filter.WarehouseID == 0 {
		return nil, fmt.Errorf("%w: company and warehouse required", ErrInvalidMovement)
	}
	if (filter.ItemID == 0) == (filter.ProductID == 0) {
		return nil, fmt.Errorf("%w: exactly one of item or product must be set", ErrInvalidMovement)
	}
	return s.repo.ListEntries(ctx, filter)
}
