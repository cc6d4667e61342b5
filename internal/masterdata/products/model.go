// Package products manages the sellable product master. Products and items
// are distinct stockable entities; ledger rows reference exactly one of them.
package products

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a sellable product entity.
type Product struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	UOM            string          `json:"uom"`
	Price          decimal.Decimal `json:"price"`
	Cost           decimal.Decimal `json:"cost"`
	IsBatchTracked bool            `json:"is_batch_tracked"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	CompanyID int64
	Search    string
	Limit     int
	Offset    int
}

// ErrProductNotFound indicates the product does not resolve within the tenant.
var ErrProductNotFound = errors.New("products: product not found")

// ErrDuplicateCode indicates the product code is already taken.
var ErrDuplicateCode = errors.New("products: product code already exists")
