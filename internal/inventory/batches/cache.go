package batches

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// PlanCache caches FEFO previews in Redis with a short TTL. Dashboards
// re-request the same plan repeatedly; consumption paths re-validate at
// commit time, so a briefly stale preview is acceptable.
type PlanCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPlanCache instantiates the cache helper.
func NewPlanCache(client *redis.Client, ttl time.Duration) *PlanCache {
	return &PlanCache{client: client, ttl: ttl}
}

func planKey(companyID, itemID int64, need decimal.Decimal) string {
	return fmt.Sprintf("fefo:%d:%d:%s", companyID, itemID, need.String())
}

// Get loads a cached plan.
func (c *PlanCache) Get(ctx context.Context, companyID, itemID int64, need decimal.Decimal) (FefoPlan, bool) {
	if c == nil || c.client == nil {
		return FefoPlan{}, false
	}
	raw, err := c.client.Get(ctx, planKey(companyID, itemID, need)).Bytes()
	if err != nil {
		return FefoPlan{}, false
	}
	var plan FefoPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return FefoPlan{}, false
	}
	return plan, true
}

// Set stores a plan. Failures are ignored; the cache is best effort.
func (c *PlanCache) Set(ctx context.Context, companyID int64, plan FefoPlan) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, planKey(companyID, plan.ItemID, plan.Requested), raw, c.ttl).Err()
}

// Invalidate drops cached plans for one item after stock-affecting writes.
func (c *PlanCache) Invalidate(ctx context.Context, companyID, itemID int64) {
	if c == nil || c.client == nil {
		return
	}
	pattern := fmt.Sprintf("fefo:%d:%d:*", companyID, itemID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val()).Err()
	}
}
