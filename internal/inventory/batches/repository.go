package batches

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx so row operations
// can run against the pool or inside a caller-supplied transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRepository exposes the locked batch operations used inside a unit of work.
type TxRepository interface {
	GetForUpdate(ctx context.Context, companyID, batchID int64) (Batch, error)
	UpdateQuantityStatus(ctx context.Context, batchID int64, qty decimal.Decimal, status Status) error
}

// Repository persists batches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NewTxRepository binds batch operations to an open transaction. The
// movement recorder uses this to keep batch updates inside its unit of work.
func NewTxRepository(q Querier) TxRepository {
	return &txRepository{q: q}
}

type txRepository struct {
	q Querier
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("batches repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

const batchColumns = `id, company_id, item_id, batch_number, mfg_date, expiry_date, initial_qty, current_qty, unit_cost, status, created_at, updated_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.CompanyID, &b.ItemID, &b.BatchNumber, &b.MfgDate, &b.ExpiryDate,
		&b.InitialQty, &b.CurrentQty, &b.UnitCost, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// Insert persists a new batch.
func (r *Repository) Insert(ctx context.Context, b Batch) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_batches (company_id, item_id, batch_number, mfg_date, expiry_date, initial_qty, current_qty, unit_cost, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id`,
		b.CompanyID, b.ItemID, b.BatchNumber, b.MfgDate, b.ExpiryDate, b.InitialQty, b.CurrentQty, b.UnitCost, string(b.Status)).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return 0, ErrDuplicateBatchNumber
		}
		return 0, err
	}
	return id, nil
}

// GetByID loads one batch within the tenant.
func (r *Repository) GetByID(ctx context.Context, companyID, id int64) (Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE company_id=$1 AND id=$2`, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

// ListActiveByItem returns active batches with remaining quantity in FEFO
// order: expiry ascending with open-dated batches last, then creation order.
func (r *Repository) ListActiveByItem(ctx context.Context, companyID, itemID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE company_id=$1 AND item_id=$2 AND status=$3 AND current_qty > 0
ORDER BY expiry_date ASC NULLS LAST, created_at ASC, id ASC`, companyID, itemID, string(StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListExpiringBefore returns non-depleted batches whose expiry falls before
// the cutoff. Used by the expiry report job.
func (r *Repository) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE status=$1 AND expiry_date IS NOT NULL AND expiry_date < $2 AND current_qty > 0
ORDER BY expiry_date ASC, id ASC`, string(StatusActive), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *txRepository) GetForUpdate(ctx context.Context, companyID, batchID int64) (Batch, error) {
	b, err := scanBatch(r.q.QueryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, batchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (r *txRepository) UpdateQuantityStatus(ctx context.Context, batchID int64, qty decimal.Decimal, status Status) error {
	tag, err := r.q.Exec(ctx, `UPDATE stock_batches SET current_qty=$1, status=$2, updated_at=NOW() WHERE id=$3`, qty, string(status), batchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}
