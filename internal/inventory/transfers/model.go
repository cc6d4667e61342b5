// Package transfers drives the multi-step, reversible warehouse-to-warehouse
// stock transfer workflow on top of the movement recorder.
package transfers

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferType distinguishes same-branch from cross-branch transfers.
type TransferType string

const (
	TypeInterWarehouse TransferType = "INTER_WAREHOUSE"
	TypeInterBranch    TransferType = "INTER_BRANCH"
)

// IsValid reports whether the transfer type is known.
func (t TransferType) IsValid() bool {
	return t == TypeInterWarehouse || t == TypeInterBranch
}

// Status represents the lifecycle of a stock transfer.
type Status string

const (
	StatusDraft     Status = "DRAFT"      // Editable, no ledger footprint
	StatusApproved  Status = "APPROVED"   // Approved, still no ledger footprint
	StatusInTransit Status = "IN_TRANSIT" // Dispatched, stock deducted at source
	StatusReceived  Status = "RECEIVED"   // Fully received at destination
	StatusCancelled Status = "CANCELLED"  // Abandoned; unreceived stock reversed
)

// CanEdit checks if the transfer can still be edited.
func (s Status) CanEdit() bool {
	return s == StatusDraft
}

// CanApprove checks if the transfer can be approved.
func (s Status) CanApprove() bool {
	return s == StatusDraft
}

// CanDispatch checks if the transfer can be dispatched.
func (s Status) CanDispatch() bool {
	return s == StatusApproved
}

// CanReceive checks if the transfer can take a receipt.
func (s Status) CanReceive() bool {
	return s == StatusInTransit
}

// CanCancel checks if the transfer can be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusDraft || s == StatusApproved || s == StatusInTransit
}

// CanDelete checks if the transfer can be soft-deleted.
func (s Status) CanDelete() bool {
	return s == StatusDraft
}

// StockTransfer is the workflow header. Movement happens only on the
// dispatch/receive/cancel transitions, never on draft or approve, so a
// transfer can be freely edited or abandoned before it touches the ledger.
type StockTransfer struct {
	ID              int64        `json:"id"`
	CompanyID       int64        `json:"company_id"`
	TransferNumber  string       `json:"transfer_number"`
	Type            TransferType `json:"transfer_type"`
	Status          Status       `json:"status"`
	FromBranchID    int64        `json:"from_branch_id"`
	ToBranchID      int64        `json:"to_branch_id"`
	FromWarehouseID int64        `json:"from_warehouse_id"`
	ToWarehouseID   int64        `json:"to_warehouse_id"`
	TransferDate    time.Time    `json:"transfer_date"`
	Notes           string       `json:"notes,omitempty"`
	CreatedBy       int64        `json:"created_by"`
	ApprovedBy      int64        `json:"approved_by,omitempty"`
	DispatchedAt    *time.Time   `json:"dispatched_at,omitempty"`
	ReceivedAt      *time.Time   `json:"received_at,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Lines           []Line       `json:"lines,omitempty"`
}

// Line is one item position on a transfer. Quantity is what was sent;
// ReceivedQty accumulates across partial receipts and never exceeds it.
// UnitCost is resolved at dispatch time and frozen so receipt books the
// same cost.
type Line struct {
	ID          int64           `json:"id"`
	TransferID  int64           `json:"transfer_id"`
	LineNo      int             `json:"line_no"`
	ItemID      int64           `json:"item_id,omitempty"`
	ProductID   int64           `json:"product_id,omitempty"`
	BatchID     int64           `json:"batch_id,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	UOM         string          `json:"uom,omitempty"`
}

// Outstanding is the quantity dispatched but not yet received.
func (l Line) Outstanding() decimal.Decimal {
	return l.Quantity.Sub(l.ReceivedQty)
}

// ReceiptLine targets one line in a partial receipt manifest.
type ReceiptLine struct {
	LineID   int64           `json:"line_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ListFilter filters transfer listings.
type ListFilter struct {
	CompanyID int64
	Status    *Status
	Limit     int
	Offset    int
}
