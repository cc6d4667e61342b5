package batches

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	batches map[int64]Batch
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{batches: make(map[int64]Batch)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Insert(ctx context.Context, b Batch) (int64, error) {
	for _, existing := range r.batches {
		if existing.CompanyID == b.CompanyID && existing.ItemID == b.ItemID && existing.BatchNumber == b.BatchNumber {
			return 0, ErrDuplicateBatchNumber
		}
	}
	r.nextID++
	b.ID = r.nextID
	b.CreatedAt = time.Now().Add(time.Duration(r.nextID) * time.Millisecond)
	r.batches[b.ID] = b
	return b.ID, nil
}

func (r *memoryRepo) GetByID(ctx context.Context, companyID, id int64) (Batch, error) {
	b, ok := r.batches[id]
	if !ok || b.CompanyID != companyID {
		return Batch{}, ErrBatchNotFound
	}
	return b, nil
}

// ListActiveByItem mirrors the SQL ordering: expiry ascending, open-dated
// batches last, insertion order as tiebreak.
func (r *memoryRepo) ListActiveByItem(ctx context.Context, companyID, itemID int64) ([]Batch, error) {
	var list []Batch
	for id := int64(1); id <= r.nextID; id++ {
		b, ok := r.batches[id]
		if !ok || b.CompanyID != companyID || b.ItemID != itemID {
			continue
		}
		if b.Status != StatusActive || !b.CurrentQty.IsPositive() {
			continue
		}
		list = append(list, b)
	}
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			if expiresAfter(list[i], list[j]) {
				list[i], list[j] = list[j], list[i]
			}
		}
	}
	return list, nil
}

func expiresAfter(a, b Batch) bool {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate == nil:
		return a.ID > b.ID
	case a.ExpiryDate == nil:
		return true
	case b.ExpiryDate == nil:
		return false
	case a.ExpiryDate.Equal(*b.ExpiryDate):
		return a.ID > b.ID
	default:
		return a.ExpiryDate.After(*b.ExpiryDate)
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, companyID, batchID int64) (Batch, error) {
	return tx.repo.GetByID(ctx, companyID, batchID)
}

func (tx *memoryTx) UpdateQuantityStatus(ctx context.Context, batchID int64, qty decimal.Decimal, status Status) error {
	b, ok := tx.repo.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	b.CurrentQty = qty
	b.Status = status
	tx.repo.batches[batchID] = b
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func mustCreate(t *testing.T, svc *Service, b Batch) Batch {
	t.Helper()
	created, err := svc.Create(context.Background(), b)
	require.NoError(t, err)
	return created
}

func TestCreateDefaults(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	b := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "LOT-1", InitialQty: dec("10"), UnitCost: dec("5")})
	require.Equal(t, StatusActive, b.Status)
	require.True(t, b.CurrentQty.Equal(dec("10")))

	empty := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "LOT-2"})
	require.Equal(t, StatusDepleted, empty.Status)
}

func TestCreateRejectsDuplicateNumber(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "LOT-1", InitialQty: dec("10")})

	_, err := svc.Create(context.Background(), Batch{CompanyID: 1, ItemID: 1, BatchNumber: "LOT-1", InitialQty: dec("5")})
	require.ErrorIs(t, err, ErrDuplicateBatchNumber)
}

func TestCreateRejectsExpiryBeforeMfg(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.Create(context.Background(), Batch{
		CompanyID:   1,
		ItemID:      1,
		BatchNumber: "LOT-1",
		MfgDate:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:  datePtr(2025, 1, 1),
		InitialQty:  dec("10"),
	})
	require.Error(t, err)
}

func TestAdjustTransitions(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "LOT-1", InitialQty: dec("5")})

	got, err := svc.AdjustStandalone(ctx, 1, b.ID, dec("5"), DirectionOut)
	require.NoError(t, err)
	require.True(t, got.CurrentQty.IsZero())
	require.Equal(t, StatusDepleted, got.Status)

	// A return brings the depleted batch back to active.
	got, err = svc.AdjustStandalone(ctx, 1, b.ID, dec("2"), DirectionIn)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)
	require.True(t, got.CurrentQty.Equal(dec("2")))

	_, err = svc.AdjustStandalone(ctx, 1, b.ID, dec("3"), DirectionOut)
	require.ErrorIs(t, err, ErrInsufficientQuantity)

	_, err = svc.AdjustStandalone(ctx, 1, b.ID, dec("0"), DirectionIn)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestQuarantineIsSticky(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "LOT-1", InitialQty: dec("10")})
	_, err := svc.ChangeStatus(ctx, 1, b.ID, StatusQuarantine)
	require.NoError(t, err)

	// Quantity changes do not leave quarantine.
	got, err := svc.AdjustStandalone(ctx, 1, b.ID, dec("4"), DirectionOut)
	require.NoError(t, err)
	require.Equal(t, StatusQuarantine, got.Status)

	got, err = svc.ChangeStatus(ctx, 1, b.ID, StatusActive)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)
}

func TestChangeStatusGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "LOT-1", InitialQty: dec("10")})

	// Cannot mark a batch with stock as depleted.
	_, err := svc.ChangeStatus(ctx, 1, b.ID, StatusDepleted)
	require.ErrorIs(t, err, ErrInvalidStatusChange)

	_, err = svc.ChangeStatus(ctx, 1, b.ID, "VAPORIZED")
	require.ErrorIs(t, err, ErrInvalidStatusChange)

	// Activating an empty batch lands on depleted instead.
	empty := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "LOT-2"})
	got, err := svc.ChangeStatus(ctx, 1, empty.ID, StatusActive)
	require.NoError(t, err)
	require.Equal(t, StatusDepleted, got.Status)
}

func TestPlanFEFOSplitsAcrossBatches(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b1 := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "B1", InitialQty: dec("5"), ExpiryDate: datePtr(2025, 1, 1)})
	b2 := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "B2", InitialQty: dec("10"), ExpiryDate: datePtr(2025, 2, 1)})

	plan, err := svc.PlanFEFO(ctx, 1, 1, dec("8"))
	require.NoError(t, err)
	require.Len(t, plan.Lines, 2)
	require.Equal(t, b1.ID, plan.Lines[0].BatchID)
	require.True(t, plan.Lines[0].Consume.Equal(dec("5")))
	require.Equal(t, b2.ID, plan.Lines[1].BatchID)
	require.True(t, plan.Lines[1].Consume.Equal(dec("3")))
	require.True(t, plan.TotalPlanned.Equal(dec("8")))
	require.True(t, plan.Shortfall().IsZero())
}

func TestPlanFEFOReportsShortfall(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "B1", InitialQty: dec("5"), ExpiryDate: datePtr(2025, 1, 1)})
	mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "B2", InitialQty: dec("10"), ExpiryDate: datePtr(2025, 2, 1)})

	plan, err := svc.PlanFEFO(ctx, 1, 1, dec("20"))
	require.NoError(t, err)
	require.True(t, plan.TotalPlanned.Equal(dec("15")))
	require.True(t, plan.Shortfall().Equal(dec("5")))
	require.Len(t, plan.Lines, 2)
}

func TestPlanFEFOOpenDatedBatchesLast(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	open := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "OPEN", InitialQty: dec("10")})
	dated := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "DATED", InitialQty: dec("4"), ExpiryDate: datePtr(2030, 1, 1)})

	plan, err := svc.PlanFEFO(ctx, 1, 1, dec("6"))
	require.NoError(t, err)
	require.Len(t, plan.Lines, 2)
	require.Equal(t, dated.ID, plan.Lines[0].BatchID)
	require.Equal(t, open.ID, plan.Lines[1].BatchID)
	require.True(t, plan.Lines[1].Consume.Equal(dec("2")))
}

func TestPlanFEFOSkipsQuarantined(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	held := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "HELD", InitialQty: dec("5"), ExpiryDate: datePtr(2025, 1, 1)})
	_, err := svc.ChangeStatus(ctx, 1, held.ID, StatusQuarantine)
	require.NoError(t, err)
	free := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "FREE", InitialQty: dec("5"), ExpiryDate: datePtr(2025, 2, 1)})

	plan, err := svc.PlanFEFO(ctx, 1, 1, dec("5"))
	require.NoError(t, err)
	require.Len(t, plan.Lines, 1)
	require.Equal(t, free.ID, plan.Lines[0].BatchID)
}

func TestPlanFEFOUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewPlanCache(client, time.Minute)

	repo := newMemoryRepo()
	svc := NewService(repo, cache)
	ctx := context.Background()

	mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "B1", InitialQty: dec("5"), ExpiryDate: datePtr(2025, 1, 1)})

	first, err := svc.PlanFEFO(ctx, 1, 1, dec("3"))
	require.NoError(t, err)

	// Drain the batch inside a foreign unit of work, like the movement
	// recorder does; the preview stays stale until TTL or invalidation.
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := svc.Adjust(ctx, tx, 1, first.Lines[0].BatchID, dec("5"), DirectionOut)
		return err
	})
	require.NoError(t, err)

	cached, err := svc.PlanFEFO(ctx, 1, 1, dec("3"))
	require.NoError(t, err)
	require.True(t, cached.TotalPlanned.Equal(first.TotalPlanned))

	cache.Invalidate(ctx, 1, 1)
	fresh, err := svc.PlanFEFO(ctx, 1, 1, dec("3"))
	require.NoError(t, err)
	require.True(t, fresh.TotalPlanned.IsZero())
}

func TestAdjustStandaloneInvalidatesPreview(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewPlanCache(client, time.Minute)

	repo := newMemoryRepo()
	svc := NewService(repo, cache)
	ctx := context.Background()

	b := mustCreate(t, svc, Batch{CompanyID: 1, ItemID: 1, BatchNumber: "B1", InitialQty: dec("5"), ExpiryDate: datePtr(2025, 1, 1)})

	_, err := svc.PlanFEFO(ctx, 1, 1, dec("3"))
	require.NoError(t, err)

	_, err = svc.AdjustStandalone(ctx, 1, b.ID, dec("5"), DirectionOut)
	require.NoError(t, err)

	fresh, err := svc.PlanFEFO(ctx, 1, 1, dec("3"))
	require.NoError(t, err)
	require.True(t, fresh.TotalPlanned.IsZero())
}
