package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/inventory/batches"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists the stock ledger and balance aggregate in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the recorder performs
// inside one unit of work. Batches() binds batch operations to the same
// transaction so the lock discipline covers the batch row too.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, key StockKey) (Balance, error)
	InsertEntry(ctx context.Context, entry LedgerEntry) (int64, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	Batches() batches.TxRepository
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds recorder operations to an already-open transaction.
// Document workflows use this to pull movement recording into their own
// unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// ErrBalanceNotFound indicates no balance row exists yet for the key.
var ErrBalanceNotFound = errors.New("inventory: balance not found")

// WithTx executes the callback inside a repeatable-read transaction. This
// is the unit of work every movement composes into: document workflows pass
// the TxRepository through so N movements plus their own status updates
// commit or roll back together.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const balanceColumns = `company_id, item_id, product_id, warehouse_id, available_qty, reserved_qty, on_order_qty, valuation_rate, last_purchase_date, last_movement_date, updated_at`

func scanBalance(row pgx.Row) (Balance, error) {
	var bal Balance
	var lastPurchase, lastMovement *time.Time
	err := row.Scan(&bal.CompanyID, &bal.ItemID, &bal.ProductID, &bal.WarehouseID,
		&bal.AvailableQty, &bal.ReservedQty, &bal.OnOrderQty, &bal.ValuationRate,
		&lastPurchase, &lastMovement, &bal.UpdatedAt)
	if err != nil {
		return Balance{}, err
	}
	if lastPurchase != nil {
		bal.LastPurchaseDate = *lastPurchase
	}
	if lastMovement != nil {
		bal.LastMovementDate = *lastMovement
	}
	return bal, nil
}

// GetBalance reads the aggregate without locking. Used by availability
// checks and cost lookups outside a mutation path.
func (r *Repository) GetBalance(ctx context.Context, key StockKey) (Balance, error) {
	bal, err := scanBalance(r.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM stock_balances
WHERE company_id=$1 AND item_id=$2 AND product_id=$3 AND warehouse_id=$4`,
		key.CompanyID, key.ItemID, key.ProductID, key.WarehouseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{CompanyID: key.CompanyID, ItemID: key.ItemID, ProductID: key.ProductID, WarehouseID: key.WarehouseID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

// ListEntries returns ledger history for a stock key, oldest first.
func (r *Repository) ListEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, branch_id, warehouse_id, item_id, product_id, COALESCE(batch_id, 0), tx_type, tx_date, ref_type, COALESCE(ref_id, ''), ref_number, qty_in, qty_out, unit_cost, running_balance, serial_no, narration, COALESCE(created_by, 0), created_at
FROM inventory_ledger
WHERE company_id=$1 AND warehouse_id=$2 AND item_id=$3 AND product_id=$4
  AND tx_date BETWEEN COALESCE($5, '-infinity') AND COALESCE($6, 'infinity')
ORDER BY id ASC
LIMIT $7`, filter.CompanyID, filter.WarehouseID, filter.ItemID, filter.ProductID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.BranchID, &e.WarehouseID, &e.ItemID, &e.ProductID, &e.BatchID,
			&e.TxType, &e.TxDate, &e.RefType, &e.RefID, &e.RefNumber, &e.QtyIn, &e.QtyOut, &e.UnitCost,
			&e.RunningBalance, &e.SerialNo, &e.Narration, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, key StockKey) (Balance, error) {
	bal, err := scanBalance(r.tx.QueryRow(ctx, `SELECT `+balanceColumns+` FROM stock_balances
WHERE company_id=$1 AND item_id=$2 AND product_id=$3 AND warehouse_id=$4 FOR UPDATE`,
		key.CompanyID, key.ItemID, key.ProductID, key.WarehouseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{CompanyID: key.CompanyID, ItemID: key.ItemID, ProductID: key.ProductID, WarehouseID: key.WarehouseID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_ledger (company_id, branch_id, warehouse_id, item_id, product_id, batch_id, tx_type, tx_date, ref_type, ref_id, ref_number, qty_in, qty_out, unit_cost, running_balance, serial_no, narration, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,NOW()) RETURNING id`,
		entry.CompanyID, entry.BranchID, entry.WarehouseID, entry.ItemID, entry.ProductID, nullInt(entry.BatchID),
		string(entry.TxType), entry.TxDate, entry.RefType, nullStr(entry.RefID), entry.RefNumber,
		entry.QtyIn, entry.QtyOut, entry.UnitCost, entry.RunningBalance,
		entry.SerialNo, entry.Narration, nullInt(entry.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (company_id, item_id, product_id, warehouse_id, available_qty, reserved_qty, on_order_qty, valuation_rate, last_purchase_date, last_movement_date, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
ON CONFLICT (company_id, item_id, product_id, warehouse_id) DO UPDATE SET
  available_qty=EXCLUDED.available_qty,
  reserved_qty=EXCLUDED.reserved_qty,
  on_order_qty=EXCLUDED.on_order_qty,
  valuation_rate=EXCLUDED.valuation_rate,
  last_purchase_date=EXCLUDED.last_purchase_date,
  last_movement_date=EXCLUDED.last_movement_date,
  updated_at=NOW()`,
		balance.CompanyID, balance.ItemID, balance.ProductID, balance.WarehouseID,
		balance.AvailableQty, balance.ReservedQty, balance.OnOrderQty, balance.ValuationRate,
		nullTime(balance.LastPurchaseDate), nullTime(balance.LastMovementDate))
	return err
}

func (r *txRepository) Batches() batches.TxRepository {
	return batches.NewTxRepository(r.tx)
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
