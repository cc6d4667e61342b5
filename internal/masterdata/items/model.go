// Package items manages the inventory item master.
package items

import (
	"errors"
	"time"
)

// Item represents a stockable item entity.
type Item struct {
	ID             int64     `json:"id"`
	CompanyID      int64     `json:"company_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	UOM            string    `json:"uom"`
	IsBatchTracked bool      `json:"is_batch_tracked"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListFilters narrows item listings.
type ListFilters struct {
	CompanyID int64
	Search    string
	Limit     int
	Offset    int
}

// ErrItemNotFound indicates the item does not resolve within the tenant.
var ErrItemNotFound = errors.New("items: item not found")

// ErrDuplicateCode indicates the item code is already taken.
var ErrDuplicateCode = errors.New("items: item code already exists")
