package transfers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists stock transfers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
// Inventory() binds the movement recorder to the same transaction so
// dispatch/receive/cancel legs and the status update commit together.
type TxRepository interface {
	InsertTransfer(ctx context.Context, t StockTransfer) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	DeleteLines(ctx context.Context, transferID int64) error
	UpdateTransfer(ctx context.Context, id int64, updates map[string]any) error
	UpdateStatus(ctx context.Context, id int64, from, to Status, updates map[string]any) error
	UpdateLineReceived(ctx context.Context, lineID int64, receivedQty decimal.Decimal) error
	UpdateLineCost(ctx context.Context, lineID int64, unitCost decimal.Decimal) error
	SoftDelete(ctx context.Context, id int64) error
	Inventory() inventory.TxRepository
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("transfers repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const transferColumns = `id, company_id, transfer_number, transfer_type, status, from_branch_id, to_branch_id, from_warehouse_id, to_warehouse_id, transfer_date, notes, created_by, COALESCE(approved_by, 0), dispatched_at, received_at, cancelled_at, created_at, updated_at`

func scanTransfer(row pgx.Row) (StockTransfer, error) {
	var t StockTransfer
	err := row.Scan(&t.ID, &t.CompanyID, &t.TransferNumber, &t.Type, &t.Status,
		&t.FromBranchID, &t.ToBranchID, &t.FromWarehouseID, &t.ToWarehouseID,
		&t.TransferDate, &t.Notes, &t.CreatedBy, &t.ApprovedBy,
		&t.DispatchedAt, &t.ReceivedAt, &t.CancelledAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// GetByID loads a transfer with its lines within the tenant.
func (r *Repository) GetByID(ctx context.Context, companyID, id int64) (*StockTransfer, error) {
	t, err := scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM stock_transfers
WHERE company_id=$1 AND id=$2 AND deleted_at IS NULL`, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, transfer_id, line_no, COALESCE(item_id, 0), COALESCE(product_id, 0), COALESCE(batch_id, 0), quantity, received_qty, unit_cost, uom
FROM stock_transfer_lines WHERE transfer_id=$1 ORDER BY line_no ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.TransferID, &line.LineNo, &line.ItemID, &line.ProductID, &line.BatchID,
			&line.Quantity, &line.ReceivedQty, &line.UnitCost, &line.UOM); err != nil {
			return nil, err
		}
		t.Lines = append(t.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns transfers matching the filter, newest first, plus the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]StockTransfer, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	where := []string{"company_id=$1", "deleted_at IS NULL"}
	args := []any{filter.CompanyID}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transfers WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM stock_transfers WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		transferColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	transfers := []StockTransfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, t)
	}
	return transfers, total, rows.Err()
}

// NextTransferNumber generates a sequential document number per company and
// month, e.g. TRF-202608-0001.
func (r *Repository) NextTransferNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	prefix := fmt.Sprintf("TRF-%s-", date.Format("200601"))
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transfers WHERE company_id=$1 AND transfer_number LIKE $2`,
		companyID, prefix+"%").Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, count+1), nil
}

func (t *txRepository) InsertTransfer(ctx context.Context, tr StockTransfer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_transfers (company_id, transfer_number, transfer_type, status, from_branch_id, to_branch_id, from_warehouse_id, to_warehouse_id, transfer_date, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW()) RETURNING id`,
		tr.CompanyID, tr.TransferNumber, string(tr.Type), string(tr.Status),
		tr.FromBranchID, tr.ToBranchID, tr.FromWarehouseID, tr.ToWarehouseID,
		tr.TransferDate, tr.Notes, tr.CreatedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_transfer_lines (transfer_id, line_no, item_id, product_id, batch_id, quantity, received_qty, unit_cost, uom)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		line.TransferID, line.LineNo, nullInt(line.ItemID), nullInt(line.ProductID), nullInt(line.BatchID),
		line.Quantity, line.ReceivedQty, line.UnitCost, line.UOM).Scan(&id)
	return id, err
}

func (t *txRepository) DeleteLines(ctx context.Context, transferID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM stock_transfer_lines WHERE transfer_id=$1`, transferID)
	return err
}

func (t *txRepository) UpdateTransfer(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	var setClauses []string
	var args []any
	for field, value := range updates {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s=$%d", field, len(args)))
	}
	setClauses = append(setClauses, "updated_at=NOW()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE stock_transfers SET %s WHERE id=$%d AND deleted_at IS NULL`,
		strings.Join(setClauses, ", "), len(args))
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions the header only when it still holds the expected
// status, making the service's check-then-act guard atomic under concurrency.
func (t *txRepository) UpdateStatus(ctx context.Context, id int64, from, to Status, updates map[string]any) error {
	if updates == nil {
		updates = make(map[string]any)
	}
	updates["status"] = string(to)
	var setClauses []string
	var args []any
	for field, value := range updates {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s=$%d", field, len(args)))
	}
	setClauses = append(setClauses, "updated_at=NOW()")
	args = append(args, id, string(from))
	query := fmt.Sprintf(`UPDATE stock_transfers SET %s WHERE id=$%d AND status=$%d AND deleted_at IS NULL`,
		strings.Join(setClauses, ", "), len(args)-1, len(args))
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (t *txRepository) UpdateLineReceived(ctx context.Context, lineID int64, receivedQty decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_transfer_lines SET received_qty=$1 WHERE id=$2`, receivedQty, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (t *txRepository) UpdateLineCost(ctx context.Context, lineID int64, unitCost decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_transfer_lines SET unit_cost=$1 WHERE id=$2`, unitCost, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (t *txRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_transfers SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
