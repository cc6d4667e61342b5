package products

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, company_id, code, name, uom, price, cost, is_batch_tracked, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.Code, &p.Name, &p.UOM,
		&p.Price, &p.Cost, &p.IsBatchTracked, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Get loads one product within the tenant.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE company_id=$1 AND id=$2`, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// Exists reports whether an active product resolves within the tenant.
func (r *Repository) Exists(ctx context.Context, companyID, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE company_id=$1 AND id=$2 AND is_active)`, companyID, id).Scan(&ok)
	return ok, err
}

// List returns products matching the filters plus the total count.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE company_id=$1`
	countQuery := `SELECT COUNT(*) FROM products WHERE company_id=$1`
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
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// Create inserts a new product.
func (r *Repository) Create(ctx context.Context, p Product) (Product, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO products (company_id, code, name, uom, price, cost, is_batch_tracked, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING `+productColumns,
		p.CompanyID, p.Code, p.Name, p.UOM, p.Price, p.Cost, p.IsBatchTracked, p.IsActive).
		Scan(&p.ID, &p.CompanyID, &p.Code, &p.Name, &p.UOM, &p.Price, &p.Cost, &p.IsBatchTracked, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, ErrDuplicateCode
		}
		return Product{}, err
	}
	return p, nil
}

// Update rewrites the mutable product fields.
func (r *Repository) Update(ctx context.Context, companyID, id int64, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET code=$1, name=$2, uom=$3, price=$4, cost=$5, is_batch_tracked=$6, is_active=$7, updated_at=NOW()
WHERE company_id=$8 AND id=$9`, p.Code, p.Name, p.UOM, p.Price, p.Cost, p.IsBatchTracked, p.IsActive, companyID, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
