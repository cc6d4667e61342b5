package warehouses

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists warehouses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const warehouseColumns = `id, company_id, branch_id, code, name, COALESCE(address, ''), is_active, created_at, updated_at`

func scanWarehouse(row pgx.Row) (Warehouse, error) {
	var w Warehouse
	err := row.Scan(&w.ID, &w.CompanyID, &w.BranchID, &w.Code, &w.Name, &w.Address,
		&w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// Get loads one warehouse within the tenant.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (Warehouse, error) {
	w, err := scanWarehouse(r.pool.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE company_id=$1 AND id=$2`, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, ErrWarehouseNotFound
		}
		return Warehouse{}, err
	}
	return w, nil
}

// Exists reports whether an active warehouse resolves within the tenant.
func (r *Repository) Exists(ctx context.Context, companyID, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM warehouses WHERE company_id=$1 AND id=$2 AND is_active)`, companyID, id).Scan(&ok)
	return ok, err
}

// List returns warehouses matching the filters plus the total count.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	query := `SELECT ` + warehouseColumns + ` FROM warehouses WHERE company_id=$1`
	countQuery := `SELECT COUNT(*) FROM warehouses WHERE company_id=$1`
	args := []any{filters.CompanyID}
	if filters.BranchID != nil {
		args = append(args, *filters.BranchID)
		cond := ` AND branch_id=$` + strconv.Itoa(len(args))
		query += cond
		countQuery += cond
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		cond := ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filters.Offset)
	query += ` ORDER BY code ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	warehouses := []Warehouse{}
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, 0, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, total, rows.Err()
}

// Create inserts a new warehouse.
func (r *Repository) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (company_id, branch_id, code, name, address, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING `+warehouseColumns,
		w.CompanyID, w.BranchID, w.Code, w.Name, w.Address, w.IsActive).
		Scan(&w.ID, &w.CompanyID, &w.BranchID, &w.Code, &w.Name, &w.Address, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Warehouse{}, ErrDuplicateCode
		}
		return Warehouse{}, err
	}
	return w, nil
}

// Update rewrites the mutable warehouse fields.
func (r *Repository) Update(ctx context.Context, companyID, id int64, w Warehouse) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warehouses SET branch_id=$1, code=$2, name=$3, address=$4, is_active=$5, updated_at=NOW()
WHERE company_id=$6 AND id=$7`, w.BranchID, w.Code, w.Name, w.Address, w.IsActive, companyID, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWarehouseNotFound
	}
	return nil
}
