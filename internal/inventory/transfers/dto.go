package transfers

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateRequest represents request to create a stock transfer.
type CreateRequest struct {
	CompanyID       int64           `json:"company_id" validate:"required,gt=0"`
	Type            TransferType    `json:"transfer_type" validate:"required"`
	FromBranchID    int64           `json:"from_branch_id" validate:"required,gt=0"`
	ToBranchID      int64           `json:"to_branch_id" validate:"required,gt=0"`
	FromWarehouseID int64           `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64           `json:"to_warehouse_id" validate:"required,gt=0"`
	TransferDate    time.Time       `json:"transfer_date"`
	Notes           string          `json:"notes,omitempty"`
	Lines           []CreateLineReq `json:"lines" validate:"required,min=1,dive"`
}

// CreateLineReq represents a line item in create/update requests.
type CreateLineReq struct {
	ItemID    int64           `json:"item_id,omitempty" validate:"gte=0"`
	ProductID int64           `json:"product_id,omitempty" validate:"gte=0"`
	BatchID   int64           `json:"batch_id,omitempty" validate:"gte=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	UOM       string          `json:"uom,omitempty" validate:"omitempty,max=20"`
}

// UpdateRequest represents request to update a transfer (DRAFT only).
// A non-nil Lines replaces the whole line set.
type UpdateRequest struct {
	TransferDate *time.Time       `json:"transfer_date,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	Lines        *[]CreateLineReq `json:"lines,omitempty" validate:"omitempty,min=1,dive"`
}

// ReceiveRequest carries an optional manifest of line receipts. An empty
// manifest receives everything still outstanding.
type ReceiveRequest struct {
	Lines []ReceiptLine `json:"lines,omitempty" validate:"omitempty,dive"`
}

// ListResponse represents the API response for a transfer listing.
type ListResponse struct {
	Transfers []StockTransfer `json:"transfers"`
	Total     int             `json:"total"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
}
