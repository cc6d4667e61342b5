// Package masterdata hosts reference-data concerns shared by transactional
// modules.
package masterdata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Resolver answers existence checks for master references. Transactional
// modules validate item/product/warehouse ids through it before writing.
type Resolver struct {
	pool *pgxpool.Pool
}

// NewResolver constructs Resolver.
func NewResolver(pool *pgxpool.Pool) *Resolver {
	return &Resolver{pool: pool}
}

func (r *Resolver) exists(ctx context.Context, query string, companyID, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, query, companyID, id).Scan(&ok)
	return ok, err
}

// ResolveItem checks an active item exists within the tenant.
func (r *Resolver) ResolveItem(ctx context.Context, companyID, itemID int64) error {
	ok, err := r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE company_id=$1 AND id=$2 AND is_active)`, companyID, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: item %d", shared.ErrNotFound, itemID)
	}
	return nil
}

// ResolveProduct checks an active product exists within the tenant.
func (r *Resolver) ResolveProduct(ctx context.Context, companyID, productID int64) error {
	ok, err := r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE company_id=$1 AND id=$2 AND is_active)`, companyID, productID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
	}
	return nil
}

// ResolveWarehouse checks an active warehouse exists within the tenant.
func (r *Resolver) ResolveWarehouse(ctx context.Context, companyID, warehouseID int64) error {
	ok, err := r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM warehouses WHERE company_id=$1 AND id=$2 AND is_active)`, companyID, warehouseID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: warehouse %d", shared.ErrNotFound, warehouseID)
	}
	return nil
}
