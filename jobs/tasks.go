// Package jobs hosts background tasks that read and report on inventory
// state. Tasks never mutate stock; every quantity change goes through the
// movement recorder in a request-scoped transaction.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryIntegrity reconciles ledger sums against balance rows.
	TaskInventoryIntegrity = "inventory:integrity"
	// TaskBatchExpiryReport reports batches approaching expiry.
	TaskBatchExpiryReport = "batches:expiry_report"
)

// IntegrityPayload carries scheduling metadata for the integrity check.
type IntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIntegrityTask constructs an Asynq task for the ledger integrity check.
func NewIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// ExpiryReportPayload sets the reporting horizon.
type ExpiryReportPayload struct {
	HorizonDays int `json:"horizon_days"`
}

// NewExpiryReportTask constructs an Asynq task for the batch expiry report.
func NewExpiryReportTask(horizonDays int) (*asynq.Task, error) {
	body, err := json.Marshal(ExpiryReportPayload{HorizonDays: horizonDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchExpiryReport, body, asynq.Queue(QueueDefault)), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueIntegrityCheck enqueues an on-demand integrity check.
func (c *Client) EnqueueIntegrityCheck(ctx context.Context) (*asynq.TaskInfo, error) {
	task, err := NewIntegrityTask(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// EnqueueExpiryReport enqueues an on-demand expiry report.
func (c *Client) EnqueueExpiryReport(ctx context.Context, horizonDays int) (*asynq.TaskInfo, error) {
	task, err := NewExpiryReportTask(horizonDays)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
