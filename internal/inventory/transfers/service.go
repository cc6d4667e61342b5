package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, companyID, id int64) (*StockTransfer, error)
	List(ctx context.Context, filter ListFilter) ([]StockTransfer, int, error)
	NextTransferNumber(ctx context.Context, companyID int64, date time.Time) (string, error)
}

// RecorderPort is the movement recorder composed into the workflow's unit
// of work. Every stock effect of a transfer goes through it.
type RecorderPort interface {
	Record(ctx context.Context, tx inventory.TxRepository, mv inventory.Movement) (inventory.LedgerEntry, error)
}

// ReferencePort resolves warehouse/item/product references within the tenant.
type ReferencePort interface {
	ResolveItem(ctx context.Context, companyID, itemID int64) error
	ResolveProduct(ctx context.Context, companyID, productID int64) error
	ResolveWarehouse(ctx context.Context, companyID, warehouseID int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the transfer state machine. Stock moves only on the
// dispatch, receive and cancel transitions; each transition's movements and
// status update share one transaction.
type Service struct {
	repo     RepositoryPort
	recorder RecorderPort
	refs     ReferencePort
	audit    AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, recorder RecorderPort, refs ReferencePort, audit AuditPort) *Service {
	return &Service{repo: repo, recorder: recorder, refs: refs, audit: audit}
}

func (s *Service) validateHeader(ctx context.Context, req CreateRequest) error {
	if !req.Type.IsValid() {
		return fmt.Errorf("%w: unknown transfer type %q", shared.ErrInvalidInput, req.Type)
	}
	if req.FromWarehouseID == req.ToWarehouseID {
		return ErrSameWarehouse
	}
	switch req.Type {
	case TypeInterWarehouse:
		if req.FromBranchID != req.ToBranchID {
			return fmt.Errorf("%w: inter-warehouse requires the same branch", ErrBranchPairing)
		}
	case TypeInterBranch:
		if req.FromBranchID == req.ToBranchID {
			return fmt.Errorf("%w: inter-branch requires different branches", ErrBranchPairing)
		}
	}
	if s.refs != nil {
		if err := s.refs.ResolveWarehouse(ctx, req.CompanyID, req.FromWarehouseID); err != nil {
			return fmt.Errorf("source warehouse %d: %w", req.FromWarehouseID, err)
		}
		if err := s.refs.ResolveWarehouse(ctx, req.CompanyID, req.ToWarehouseID); err != nil {
			return fmt.Errorf("destination warehouse %d: %w", req.ToWarehouseID, err)
		}
	}
	return nil
}

func (s *Service) validateLines(ctx context.Context, companyID int64, lines []CreateLineReq) error {
	if len(lines) == 0 {
		return ErrEmptyLines
	}
	for i, line := range lines {
		if (line.ItemID == 0) == (line.ProductID == 0) {
			return fmt.Errorf("line %d: %w", i+1, ErrItemCardinality)
		}
		if !line.Quantity.IsPositive() {
			return fmt.Errorf("line %d: %w", i+1, ErrInvalidQuantity)
		}
		if line.UnitCost.IsNegative() {
			return fmt.Errorf("line %d: %w: unit cost must be >= 0", i+1, shared.ErrInvalidInput)
		}
		if s.refs != nil {
			if line.ItemID != 0 {
				if err := s.refs.ResolveItem(ctx, companyID, line.ItemID); err != nil {
					return fmt.Errorf("line %d item %d: %w", i+1, line.ItemID, err)
				}
			}
			if line.ProductID != 0 {
				if err := s.refs.ResolveProduct(ctx, companyID, line.ProductID); err != nil {
					return fmt.Errorf("line %d product %d: %w", i+1, line.ProductID, err)
				}
			}
		}
	}
	return nil
}

// Create registers a draft transfer. Drafts have no stock impact.
func (s *Service) Create(ctx context.Context, req CreateRequest, createdBy int64) (*StockTransfer, error) {
	if err := s.validateHeader(ctx, req); err != nil {
		return nil, err
	}
	if err := s.validateLines(ctx, req.CompanyID, req.Lines); err != nil {
		return nil, err
	}
	transferDate := req.TransferDate
	if transferDate.IsZero() {
		transferDate = time.Now().UTC()
	}

	// Numbering reads the current sequence outside the insert, so a
	// concurrent create can take the same number; the unique constraint
	// catches it and we regenerate.
	const numberAttempts = 3
	var transferID int64
	for attempt := 1; ; attempt++ {
		number, err := s.repo.NextTransferNumber(ctx, req.CompanyID, transferDate)
		if err != nil {
			return nil, fmt.Errorf("generate transfer number: %w", err)
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			id, err := tx.InsertTransfer(ctx, StockTransfer{
				CompanyID:       req.CompanyID,
				TransferNumber:  number,
				Type:            req.Type,
				Status:          StatusDraft,
				FromBranchID:    req.FromBranchID,
				ToBranchID:      req.ToBranchID,
				FromWarehouseID: req.FromWarehouseID,
				ToWarehouseID:   req.ToWarehouseID,
				TransferDate:    transferDate,
				Notes:           req.Notes,
				CreatedBy:       createdBy,
			})
			if err != nil {
				return fmt.Errorf("insert transfer: %w", err)
			}
			transferID = id
			for i, reqLine := range req.Lines {
				line := Line{
					TransferID:  id,
					LineNo:      i + 1,
					ItemID:      reqLine.ItemID,
					ProductID:   reqLine.ProductID,
					BatchID:     reqLine.BatchID,
					Quantity:    reqLine.Quantity,
					ReceivedQty: decimal.Zero,
					UnitCost:    reqLine.UnitCost,
					UOM:         reqLine.UOM,
				}
				if _, err := tx.InsertLine(ctx, line); err != nil {
					return fmt.Errorf("insert line %d: %w", i+1, err)
				}
			}
			return nil
		})
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateNumber) && attempt < numberAttempts {
			continue
		}
		return nil, err
	}
	s.recordAudit(ctx, req.CompanyID, createdBy, "transfer:create", transferID, nil)
	return s.repo.GetByID(ctx, req.CompanyID, transferID)
}

// Update replaces the editable header fields and the full line set.
// Permitted only while the transfer is a draft.
func (s *Service) Update(ctx context.Context, companyID, id int64, req UpdateRequest, actorID int64) (*StockTransfer, error) {
	existing, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if !existing.Status.CanEdit() {
		return nil, fmt.Errorf("%w: %s", ErrCannotEdit, existing.Status)
	}
	if req.Lines != nil {
		if err := s.validateLines(ctx, companyID, *req.Lines); err != nil {
			return nil, err
		}
	}

	updates := make(map[string]any)
	if req.TransferDate != nil {
		updates["transfer_date"] = *req.TransferDate
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if len(updates) > 0 {
			if err := tx.UpdateTransfer(ctx, id, updates); err != nil {
				return err
			}
		}
		if req.Lines != nil {
			if err := tx.DeleteLines(ctx, id); err != nil {
				return fmt.Errorf("delete lines: %w", err)
			}
			for i, reqLine := range *req.Lines {
				line := Line{
					TransferID:  id,
					LineNo:      i + 1,
					ItemID:      reqLine.ItemID,
					ProductID:   reqLine.ProductID,
					BatchID:     reqLine.BatchID,
					Quantity:    reqLine.Quantity,
					ReceivedQty: decimal.Zero,
					UnitCost:    reqLine.UnitCost,
					UOM:         reqLine.UOM,
				}
				if _, err := tx.InsertLine(ctx, line); err != nil {
					return fmt.Errorf("insert line %d: %w", i+1, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, companyID, actorID, "transfer:update", id, nil)
	return s.repo.GetByID(ctx, companyID, id)
}

// Approve moves a draft to approved. Pure status transition, no stock impact.
func (s *Service) Approve(ctx context.Context, companyID, id, approvedBy int64) (*StockTransfer, error) {
	existing, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if !existing.Status.CanApprove() {
		return nil, fmt.Errorf("%w: %s", ErrCannotApprove, existing.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, id, existing.Status, StatusApproved, map[string]any{"approved_by": approvedBy})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, companyID, approvedBy, "transfer:approve", id, nil)
	return s.repo.GetByID(ctx, companyID, id)
}

// Dispatch books one OUT movement per line at the source warehouse and
// moves the transfer in transit. Lines without a cost pick up the source
// warehouse valuation rate and keep it for receipt. Any insufficient-stock
// failure aborts the whole dispatch.
func (s *Service) Dispatch(ctx context.Context, companyID, id, actorID int64) (*StockTransfer, error) {
	existing, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if !existing.Status.CanDispatch() {
		return nil, fmt.Errorf("%w: %s", ErrCannotDispatch, existing.Status)
	}
	if len(existing.Lines) == 0 {
		return nil, ErrEmptyLines
	}

	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range existing.Lines {
			entry, err := s.recorder.Record(ctx, tx.Inventory(), inventory.Movement{
				CompanyID:   companyID,
				BranchID:    existing.FromBranchID,
				WarehouseID: existing.FromWarehouseID,
				ItemID:      line.ItemID,
				ProductID:   line.ProductID,
				BatchID:     line.BatchID,
				TxType:      inventory.TxTypeTransferOut,
				TxDate:      now,
				RefType:     "STOCK_TRANSFER",
				RefNumber:   existing.TransferNumber,
				Direction:   inventory.DirectionOut,
				Quantity:    line.Quantity,
				UOM:         line.UOM,
				UnitCost:    line.UnitCost,
				Narration:   fmt.Sprintf("Transfer %s line %d to warehouse %d", existing.TransferNumber, line.LineNo, existing.ToWarehouseID),
				ActorID:     actorID,
			})
			if err != nil {
				return fmt.Errorf("dispatch line %d: %w", line.LineNo, err)
			}
			// Freeze the resolved cost on the line so receipt books the same value.
			if line.UnitCost.IsZero() && !entry.UnitCost.IsZero() {
				if err := tx.UpdateLineCost(ctx, line.ID, entry.UnitCost); err != nil {
					return err
				}
			}
		}
		return tx.UpdateStatus(ctx, id, existing.Status, StatusInTransit, map[string]any{"dispatched_at": now})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, companyID, actorID, "transfer:dispatch", id, nil)
	return s.repo.GetByID(ctx, companyID, id)
}

// Receive applies a receipt manifest. A nil or empty manifest means
// "receive everything still outstanding". The header turns RECEIVED only
// when every line is fully received; otherwise it stays in transit for
// further partial receipts.
func (s *Service) Receive(ctx context.Context, companyID, id int64, manifest []ReceiptLine, actorID int64) (*StockTransfer, error) {
	existing, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if !existing.Status.CanReceive() {
		return nil, fmt.Errorf("%w: %s", ErrCannotReceive, existing.Status)
	}

	lineByID := make(map[int64]*Line, len(existing.Lines))
	for i := range existing.Lines {
		lineByID[existing.Lines[i].ID] = &existing.Lines[i]
	}

	if len(manifest) == 0 {
		for _, line := range existing.Lines {
			if line.Outstanding().IsPositive() {
				manifest = append(manifest, ReceiptLine{LineID: line.ID, Quantity: line.Outstanding()})
			}
		}
	}
	if len(manifest) == 0 {
		return nil, ErrNothingToReceive
	}
	// Validate against the manifest total per line, not entry by entry, so a
	// manifest naming the same line twice cannot slip past the dispatched cap.
	totals := make(map[int64]decimal.Decimal, len(manifest))
	for _, rcpt := range manifest {
		line, ok := lineByID[rcpt.LineID]
		if !ok {
			return nil, fmt.Errorf("line %d: %w", rcpt.LineID, ErrLineNotFound)
		}
		if !rcpt.Quantity.IsPositive() {
			return nil, fmt.Errorf("line %d: %w", line.LineNo, ErrInvalidQuantity)
		}
		totals[rcpt.LineID] = totals[rcpt.LineID].Add(rcpt.Quantity)
	}
	for lineID, total := range totals {
		line := lineByID[lineID]
		if line.ReceivedQty.Add(total).GreaterThan(line.Quantity) {
			return nil, fmt.Errorf("line %d: %w", line.LineNo, ErrReceiveExceeds)
		}
	}

	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, rcpt := range manifest {
			line := lineByID[rcpt.LineID]
			if _, err := s.recorder.Record(ctx, tx.Inventory(), inventory.Movement{
				CompanyID:   companyID,
				BranchID:    existing.ToBranchID,
				WarehouseID: existing.ToWarehouseID,
				ItemID:      line.ItemID,
				ProductID:   line.ProductID,
				BatchID:     line.BatchID,
				TxType:      inventory.TxTypeTransferIn,
				TxDate:      now,
				RefType:     "STOCK_TRANSFER",
				RefNumber:   existing.TransferNumber,
				Direction:   inventory.DirectionIn,
				Quantity:    rcpt.Quantity,
				UOM:         line.UOM,
				UnitCost:    line.UnitCost,
				Narration:   fmt.Sprintf("Transfer %s line %d from warehouse %d", existing.TransferNumber, line.LineNo, existing.FromWarehouseID),
				ActorID:     actorID,
			}); err != nil {
				return fmt.Errorf("receive line %d: %w", line.LineNo, err)
			}
			line.ReceivedQty = line.ReceivedQty.Add(rcpt.Quantity)
			if err := tx.UpdateLineReceived(ctx, line.ID, line.ReceivedQty); err != nil {
				return err
			}
		}
		allReceived := true
		for _, line := range existing.Lines {
			if line.Outstanding().IsPositive() {
				allReceived = false
				break
			}
		}
		if allReceived {
			return tx.UpdateStatus(ctx, id, existing.Status, StatusReceived, map[string]any{"received_at": now})
		}
		// Touch updated_at so partial receipts are visible on the header.
		return tx.UpdateTransfer(ctx, id, map[string]any{})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, companyID, actorID, "transfer:receive", id, map[string]any{"lines": len(manifest)})
	return s.repo.GetByID(ctx, companyID, id)
}

// Cancel abandons a transfer. Before dispatch it is a pure status change.
// From in transit it reverses only the still-unreceived remainder back at
// the source warehouse; quantity already received stays at the destination.
func (s *Service) Cancel(ctx context.Context, companyID, id, actorID int64) (*StockTransfer, error) {
	existing, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if !existing.Status.CanCancel() {
		return nil, fmt.Errorf("%w: %s", ErrCannotCancel, existing.Status)
	}

	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if existing.Status == StatusInTransit {
			for _, line := range existing.Lines {
				remainder := line.Outstanding()
				if !remainder.IsPositive() {
					continue
				}
				if _, err := s.recorder.Record(ctx, tx.Inventory(), inventory.Movement{
					CompanyID:   companyID,
					BranchID:    existing.FromBranchID,
					WarehouseID: existing.FromWarehouseID,
					ItemID:      line.ItemID,
					ProductID:   line.ProductID,
					BatchID:     line.BatchID,
					TxType:      inventory.TxTypeTransferIn,
					TxDate:      now,
					RefType:     "STOCK_TRANSFER",
					RefNumber:   existing.TransferNumber,
					Direction:   inventory.DirectionIn,
					Quantity:    remainder,
					UOM:         line.UOM,
					UnitCost:    line.UnitCost,
					Narration:   fmt.Sprintf("Transfer %s line %d cancelled, returned to source", existing.TransferNumber, line.LineNo),
					ActorID:     actorID,
				}); err != nil {
					return fmt.Errorf("reverse line %d: %w", line.LineNo, err)
				}
			}
		}
		return tx.UpdateStatus(ctx, id, existing.Status, StatusCancelled, map[string]any{"cancelled_at": now})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, companyID, actorID, "transfer:cancel", id, nil)
	return s.repo.GetByID(ctx, companyID, id)
}

// Delete soft-retires a draft transfer and its lines.
func (s *Service) Delete(ctx context.Context, companyID, id, actorID int64) error {
	existing, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return err
	}
	if !existing.Status.CanDelete() {
		return fmt.Errorf("%w: %s", ErrCannotDelete, existing.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SoftDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, companyID, actorID, "transfer:delete", id, nil)
	return nil
}

// Get loads a transfer with lines.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*StockTransfer, error) {
	return s.repo.GetByID(ctx, companyID, id)
}

// List returns a page of transfers.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]StockTransfer, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, companyID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "stock_transfer",
		EntityID:  fmt.Sprintf("%d", id),
		Meta:      meta,
	})
}
