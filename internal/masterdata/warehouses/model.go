// Package warehouses manages the warehouse master.
package warehouses

import (
	"errors"
	"time"
)

// Warehouse represents a warehouse entity.
type Warehouse struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	BranchID  int64     `json:"branch_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilters narrows warehouse listings.
type ListFilters struct {
	CompanyID int64
	BranchID  *int64
	Search    string
	Limit     int
	Offset    int
}

// ErrWarehouseNotFound indicates the warehouse does not resolve within the tenant.
var ErrWarehouseNotFound = errors.New("warehouses: warehouse not found")

// ErrDuplicateCode indicates the warehouse code is already taken.
var ErrDuplicateCode = errors.New("warehouses: warehouse code already exists")
