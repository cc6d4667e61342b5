package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// integrityWorkers bounds the company fan-out of a single check run.
const integrityWorkers = 4

// IntegrityChecker verifies that every balance row equals the sum of its
// ledger entries. It only reads; a mismatch is logged for operator followup
// and correction happens through offsetting movements.
type IntegrityChecker struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *Metrics
}

// NewIntegrityChecker constructs IntegrityChecker. Metrics may be nil.
func NewIntegrityChecker(pool *pgxpool.Pool, logger *slog.Logger, metrics *Metrics) *IntegrityChecker {
	return &IntegrityChecker{pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskInventoryIntegrity tasks.
func (c *IntegrityChecker) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := c.metrics.Track("inventory_integrity")
	mismatches, err := c.Run(ctx)
	if err != nil {
		return tracker.End(err)
	}
	_ = tracker.End(nil)
	c.logger.Info("inventory integrity check finished",
		slog.Int("mismatches", mismatches),
		slog.Time("scheduled_for", payload.ScheduledFor))
	return nil
}

// Run checks all companies and returns the number of mismatched keys.
func (c *IntegrityChecker) Run(ctx context.Context) (int, error) {
	rows, err := c.pool.Query(ctx, `SELECT DISTINCT company_id FROM stock_balances`)
	if err != nil {
		return 0, err
	}
	var companies []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		companies = append(companies, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	results := make([]int, len(companies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(integrityWorkers)
	for i, companyID := range companies {
		g.Go(func() error {
			n, err := c.checkCompany(gctx, companyID)
			if err != nil {
				return err
			}
			results[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := 0
	for _, n := range results {
		total += n
	}
	return total, nil
}

func (c *IntegrityChecker) checkCompany(ctx context.Context, companyID int64) (int, error) {
	rows, err := c.pool.Query(ctx, `
SELECT b.item_id, b.product_id, b.warehouse_id, b.available_qty,
       COALESCE(l.net_qty, 0) AS ledger_qty
FROM stock_balances b
LEFT JOIN (
    SELECT item_id, product_id, warehouse_id, SUM(qty_in - qty_out) AS net_qty
    FROM inventory_ledger
    WHERE company_id = $1
    GROUP BY item_id, product_id, warehouse_id
) l ON l.item_id = b.item_id AND l.product_id = b.product_id AND l.warehouse_id = b.warehouse_id
WHERE b.company_id = $1`, companyID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	mismatches := 0
	for rows.Next() {
		var itemID, productID, warehouseID int64
		var available, ledger decimal.Decimal
		if err := rows.Scan(&itemID, &productID, &warehouseID, &available, &ledger); err != nil {
			return 0, err
		}
		if !available.Equal(ledger) {
			mismatches++
			c.metrics.AddMismatches(companyID, 1)
			c.logger.Warn("balance diverges from ledger",
				slog.Int64("company_id", companyID),
				slog.Int64("item_id", itemID),
				slog.Int64("product_id", productID),
				slog.Int64("warehouse_id", warehouseID),
				slog.String("balance", available.String()),
				slog.String("ledger", ledger.String()))
		}
	}
	return mismatches, rows.Err()
}
