package items

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists items in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, company_id, code, name, uom, is_batch_tracked, is_active, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.CompanyID, &it.Code, &it.Name, &it.UOM,
		&it.IsBatchTracked, &it.IsActive, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

// Get loads one item within the tenant.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE company_id=$1 AND id=$2`, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return it, nil
}

// Exists reports whether an active item resolves within the tenant.
func (r *Repository) Exists(ctx context.Context, companyID, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE company_id=$1 AND id=$2 AND is_active)`, companyID, id).Scan(&ok)
	return ok, err
}

// List returns items matching the filters plus the total count.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE company_id=$1`
	countQuery := `SELECT COUNT(*) FROM items WHERE company_id=$1`
	args := []any{filters.CompanyID}
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
	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// Create inserts a new item.
func (r *Repository) Create(ctx context.Context, it Item) (Item, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO items (company_id, code, name, uom, is_batch_tracked, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING `+itemColumns,
		it.CompanyID, it.Code, it.Name, it.UOM, it.IsBatchTracked, it.IsActive).
		Scan(&it.ID, &it.CompanyID, &it.Code, &it.Name, &it.UOM, &it.IsBatchTracked, &it.IsActive, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Item{}, ErrDuplicateCode
		}
		return Item{}, err
	}
	return it, nil
}

// Update rewrites the mutable item fields.
func (r *Repository) Update(ctx context.Context, companyID, id int64, it Item) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET code=$1, name=$2, uom=$3, is_batch_tracked=$4, is_active=$5, updated_at=NOW()
WHERE company_id=$6 AND id=$7`, it.Code, it.Name, it.UOM, it.IsBatchTracked, it.IsActive, companyID, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}
