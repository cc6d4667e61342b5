package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TxTypeGRNReceipt represents goods received against a purchase document.
	TxTypeGRNReceipt TransactionType = "GRN_RECEIPT"
	// TxTypeTransferOut is the source-warehouse leg of a stock transfer.
	TxTypeTransferOut TransactionType = "TRANSFER_OUT"
	// TxTypeTransferIn is the destination-warehouse leg of a stock transfer.
	TxTypeTransferIn TransactionType = "TRANSFER_IN"
	// TxTypeScrap records stock written off.
	TxTypeScrap TransactionType = "SCRAP"
	// TxTypeAdjustment indicates manual adjustments.
	TxTypeAdjustment TransactionType = "ADJUSTMENT"
	// TxTypeSalesDispatch records stock leaving for a customer.
	TxTypeSalesDispatch TransactionType = "SALES_DISPATCH"
)

// IsValid reports whether the transaction type is known.
func (t TransactionType) IsValid() bool {
	switch t {
	case TxTypeGRNReceipt, TxTypeTransferOut, TxTypeTransferIn, TxTypeScrap, TxTypeAdjustment, TxTypeSalesDispatch:
		return true
	default:
		return false
	}
}

// Direction tells whether a movement adds or removes stock.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// StockKey identifies one balance row. Exactly one of ItemID/ProductID is
// non-zero; zero means the reference is not set.
type StockKey struct {
	CompanyID   int64
	ItemID      int64
	ProductID   int64
	WarehouseID int64
}

// LedgerEntry is one immutable stock movement fact. Entries are only ever
// inserted; corrections are new offsetting entries.
type LedgerEntry struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	BranchID       int64           `json:"branch_id,omitempty"`
	WarehouseID    int64           `json:"warehouse_id"`
	ItemID         int64           `json:"item_id,omitempty"`
	ProductID      int64           `json:"product_id,omitempty"`
	BatchID        int64           `json:"batch_id,omitempty"`
	TxType         TransactionType `json:"tx_type"`
	TxDate         time.Time       `json:"tx_date"`
	RefType        string          `json:"ref_type,omitempty"`
	RefID          string          `json:"ref_id,omitempty"`
	RefNumber      string          `json:"ref_number,omitempty"`
	QtyIn          decimal.Decimal `json:"qty_in"`
	QtyOut         decimal.Decimal `json:"qty_out"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	SerialNo       string          `json:"serial_no,omitempty"`
	Narration      string          `json:"narration,omitempty"`
	CreatedBy      int64           `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Balance is the cached aggregate per stock key. AvailableQty always equals
// the latest ledger running balance for the key; it is maintained in the
// same transaction as the entry that justifies the change.
type Balance struct {
	CompanyID        int64           `json:"company_id"`
	ItemID           int64           `json:"item_id,omitempty"`
	ProductID        int64           `json:"product_id,omitempty"`
	WarehouseID      int64           `json:"warehouse_id"`
	AvailableQty     decimal.Decimal `json:"available_qty"`
	ReservedQty      decimal.Decimal `json:"reserved_qty"`
	OnOrderQty       decimal.Decimal `json:"on_order_qty"`
	ValuationRate    decimal.Decimal `json:"valuation_rate"`
	LastPurchaseDate time.Time       `json:"last_purchase_date,omitempty"`
	LastMovementDate time.Time       `json:"last_movement_date,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Key returns the stock key of the balance row.
func (b Balance) Key() StockKey {
	return StockKey{CompanyID: b.CompanyID, ItemID: b.ItemID, ProductID: b.ProductID, WarehouseID: b.WarehouseID}
}

// FreeQty is available minus reserved.
func (b Balance) FreeQty() decimal.Decimal {
	return b.AvailableQty.Sub(b.ReservedQty)
}

// Movement is the input to the recorder. Exactly one of ItemID/ProductID
// must be set and Quantity must be positive regardless of direction.
type Movement struct {
	CompanyID   int64
	BranchID    int64
	WarehouseID int64
	ItemID      int64
	ProductID   int64
	BatchID     int64
	TxType      TransactionType
	TxDate      time.Time
	RefType     string
	RefID       string
	RefNumber   string
	Direction   Direction
	Quantity    decimal.Decimal
	UOM         string
	UnitCost    decimal.Decimal
	SerialNo    string
	Narration   string
	ActorID     int64
}

// Key returns the stock key the movement applies to.
func (m Movement) Key() StockKey {
	return StockKey{CompanyID: m.CompanyID, ItemID: m.ItemID, ProductID: m.ProductID, WarehouseID: m.WarehouseID}
}

// EntryFilter filters ledger history queries.
type EntryFilter struct {
	CompanyID   int64
	WarehouseID int64
	ItemID      int64
	ProductID   int64
	From        time.Time
	To          time.Time
	Limit       int
}

// ErrInvalidMovement indicates a malformed movement rejected before any write.
var ErrInvalidMovement = errors.New("inventory: invalid movement")

// ErrInsufficientStock triggered when an OUT movement would drive the balance negative.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")
