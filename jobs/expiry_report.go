package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/inventory/batches"
)

// defaultExpiryHorizonDays is used when the payload carries no horizon.
const defaultExpiryHorizonDays = 30

// ExpiryReporter flags batches whose expiry falls within the horizon.
// Reporting only; moving expired stock to EXPIRED or booking a scrap
// movement stays an operator decision.
type ExpiryReporter struct {
	repo    *batches.Repository
	logger  *slog.Logger
	metrics *Metrics
}

// NewExpiryReporter constructs ExpiryReporter. Metrics may be nil.
func NewExpiryReporter(repo *batches.Repository, logger *slog.Logger, metrics *Metrics) *ExpiryReporter {
	return &ExpiryReporter{repo: repo, logger: logger, metrics: metrics}
}

// Handle processes TaskBatchExpiryReport tasks.
func (e *ExpiryReporter) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ExpiryReportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	horizon := payload.HorizonDays
	if horizon <= 0 {
		horizon = defaultExpiryHorizonDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, horizon)

	tracker := e.metrics.Track("batch_expiry_report")
	list, err := e.repo.ListExpiringBefore(ctx, cutoff)
	if err != nil {
		return tracker.End(err)
	}
	_ = tracker.End(nil)
	for _, b := range list {
		e.logger.Warn("batch approaching expiry",
			slog.Int64("company_id", b.CompanyID),
			slog.Int64("item_id", b.ItemID),
			slog.String("batch_number", b.BatchNumber),
			slog.Time("expiry_date", *b.ExpiryDate),
			slog.String("current_qty", b.CurrentQty.String()))
	}
	e.logger.Info("batch expiry report finished",
		slog.Int("batches", len(list)),
		slog.Int("horizon_days", horizon))
	return nil
}
