// Package batches tracks per-batch remaining quantity and plans
// expiry-ordered (FEFO) allocation for consumption workflows.
package batches

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates batch lifecycle states. Batches are never deleted,
// only retired through status.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusDepleted   Status = "DEPLETED"
	StatusExpired    Status = "EXPIRED"
	StatusQuarantine Status = "QUARANTINE"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusDepleted, StatusExpired, StatusQuarantine:
		return true
	default:
		return false
	}
}

// Direction tells whether an adjustment adds or removes batch quantity.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Batch is a traceable sub-quantity of an item with its own expiry, cost
// and status. BatchNumber is unique per (company, item).
type Batch struct {
	ID          int64           `json:"id"`
	CompanyID   int64           `json:"company_id"`
	ItemID      int64           `json:"item_id"`
	BatchNumber string          `json:"batch_number"`
	MfgDate     time.Time       `json:"mfg_date,omitempty"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
	InitialQty  decimal.Decimal `json:"initial_qty"`
	CurrentQty  decimal.Decimal `json:"current_qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PlanLine is one batch consumption step in a FEFO plan.
type PlanLine struct {
	BatchID     int64           `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	Available   decimal.Decimal `json:"available"`
	Consume     decimal.Decimal `json:"consume"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
}

// FefoPlan is the result of a read-only allocation walk. TotalPlanned may
// be less than Requested; detecting and handling the shortfall is the
// caller's responsibility.
type FefoPlan struct {
	ItemID       int64           `json:"item_id"`
	Requested    decimal.Decimal `json:"requested"`
	TotalPlanned decimal.Decimal `json:"total_planned"`
	Lines        []PlanLine      `json:"lines"`
}

// Shortfall returns how much of the request the plan could not cover.
func (p FefoPlan) Shortfall() decimal.Decimal {
	short := p.Requested.Sub(p.TotalPlanned)
	if short.IsNegative() {
		return decimal.Zero
	}
	return short
}

var (
	// ErrBatchNotFound indicates the batch does not resolve within the tenant.
	ErrBatchNotFound = errors.New("batches: batch not found")
	// ErrInsufficientQuantity triggered when an OUT adjustment would drive the batch negative.
	ErrInsufficientQuantity = errors.New("batches: insufficient batch quantity")
	// ErrInvalidQuantity indicates a non-positive adjustment or plan request.
	ErrInvalidQuantity = errors.New("batches: quantity must be positive")
	// ErrInvalidStatusChange indicates a disallowed explicit status change.
	ErrInvalidStatusChange = errors.New("batches: invalid status change")
	// ErrDuplicateBatchNumber indicates the batch number is taken for the item.
	ErrDuplicateBatchNumber = errors.New("batches: batch number already exists for item")
)
