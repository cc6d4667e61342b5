package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory/batches"
)

type memoryRepo struct {
	balances map[string]Balance
	entries  []LedgerEntry
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[string]Balance)}
}

func balKey(k StockKey) string {
	return fmt.Sprintf("%d:%d:%d:%d", k.CompanyID, k.ItemID, k.ProductID, k.WarehouseID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Snapshot so a failed callback rolls everything back, like the
	// real transaction does.
	savedBalances := make(map[string]Balance, len(r.balances))
	for k, v := range r.balances {
		savedBalances[k] = v
	}
	savedEntries := make([]LedgerEntry, len(r.entries))
	copy(savedEntries, r.entries)
	savedID := r.nextID

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.balances = savedBalances
		r.entries = savedEntries
		r.nextID = savedID
		return err
	}
	return nil
}

func (r *memoryRepo) GetBalance(ctx context.Context, key StockKey) (Balance, error) {
	if bal, ok := r.balances[balKey(key)]; ok {
		return bal, nil
	}
	return Balance{CompanyID: key.CompanyID, ItemID: key.ItemID, ProductID: key.ProductID, WarehouseID: key.WarehouseID}, ErrBalanceNotFound
}

func (r *memoryRepo) ListEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error) {
	result := make([]LedgerEntry, len(r.entries))
	copy(result, r.entries)
	return result, nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, key StockKey) (Balance, error) {
	return tx.repo.GetBalance(ctx, key)
}

func (tx *memoryTx) InsertEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	tx.repo.nextID++
	entry.ID = tx.repo.nextID
	tx.repo.entries = append(tx.repo.entries, entry)
	return entry.ID, nil
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance Balance) error {
	tx.repo.balances[balKey(balance.Key())] = balance
	return nil
}

func (tx *memoryTx) Batches() batches.TxRepository {
	return nil
}

type recordingBatchPort struct {
	companyID int64
	batchID   int64
	qty       decimal.Decimal
	dir       batches.Direction
	calls     int
	err       error
}

func (p *recordingBatchPort) Adjust(ctx context.Context, tx batches.TxRepository, companyID, batchID int64, qty decimal.Decimal, dir batches.Direction) (batches.Batch, error) {
	p.calls++
	p.companyID = companyID
	p.batchID = batchID
	p.qty = qty
	p.dir = dir
	if p.err != nil {
		return batches.Batch{}, p.err
	}
	return batches.Batch{ID: batchID, CompanyID: companyID, CurrentQty: qty}, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func inbound(qty, cost string) Movement {
	return Movement{
		CompanyID:   1,
		WarehouseID: 1,
		ItemID:      7,
		TxType:      TxTypeGRNReceipt,
		Direction:   DirectionIn,
		Quantity:    dec(qty),
		UnitCost:    dec(cost),
	}
}

func outbound(qty string) Movement {
	return Movement{
		CompanyID:   1,
		WarehouseID: 1,
		ItemID:      7,
		TxType:      TxTypeSalesDispatch,
		Direction:   DirectionOut,
		Quantity:    dec(qty),
	}
}

func TestMovingAverageValuation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	entry, err := svc.RecordStandalone(ctx, inbound("10", "100"))
	require.NoError(t, err)
	require.True(t, entry.RunningBalance.Equal(dec("10")))

	entry, err = svc.RecordStandalone(ctx, inbound("5", "130"))
	require.NoError(t, err)
	require.True(t, entry.RunningBalance.Equal(dec("15")))

	bal, err := svc.GetStockBalance(ctx, StockKey{CompanyID: 1, ItemID: 7, WarehouseID: 1})
	require.NoError(t, err)
	// (10*100 + 5*130) / 15 = 110
	require.True(t, bal.ValuationRate.Equal(dec("110")), "got %s", bal.ValuationRate)
	require.True(t, bal.AvailableQty.Equal(dec("15")))
}

func TestOutboundUsesValuationRateWhenCostOmitted(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordStandalone(ctx, inbound("10", "250"))
	require.NoError(t, err)

	entry, err := svc.RecordStandalone(ctx, outbound("4"))
	require.NoError(t, err)
	require.True(t, entry.UnitCost.Equal(dec("250")))
	require.True(t, entry.RunningBalance.Equal(dec("6")))
}

func TestInsufficientStockRejectsWholeMovement(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordStandalone(ctx, inbound("3", "10"))
	require.NoError(t, err)

	_, err = svc.RecordStandalone(ctx, outbound("5"))
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Nothing was written by the failed movement.
	require.Len(t, repo.entries, 1)
	bal, err := svc.GetStockBalance(ctx, StockKey{CompanyID: 1, ItemID: 7, WarehouseID: 1})
	require.NoError(t, err)
	require.True(t, bal.AvailableQty.Equal(dec("3")))
}

func TestFirstMovementCreatesBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.GetStockBalance(ctx, StockKey{CompanyID: 1, ItemID: 7, WarehouseID: 1})
	require.ErrorIs(t, err, ErrBalanceNotFound)

	entry, err := svc.RecordStandalone(ctx, inbound("2", "5"))
	require.NoError(t, err)
	require.True(t, entry.RunningBalance.Equal(dec("2")))

	bal, err := svc.GetStockBalance(ctx, StockKey{CompanyID: 1, ItemID: 7, WarehouseID: 1})
	require.NoError(t, err)
	require.True(t, bal.AvailableQty.Equal(dec("2")))
	require.True(t, bal.ValuationRate.Equal(dec("5")))
}

func TestOutboundFromEmptyKeyFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.RecordStandalone(context.Background(), outbound("1"))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, repo.entries)
}

func TestValidationRejectsBeforeWrite(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	mv := inbound("10", "100")
	mv.ProductID = 3 // both item and product set
	_, err := svc.RecordStandalone(ctx, mv)
	require.ErrorIs(t, err, ErrInvalidMovement)

	mv = inbound("0", "100")
	_, err = svc.RecordStandalone(ctx, mv)
	require.ErrorIs(t, err, ErrInvalidMovement)

	mv = inbound("10", "100")
	mv.TxType = "TELEPORT"
	_, err = svc.RecordStandalone(ctx, mv)
	require.ErrorIs(t, err, ErrInvalidMovement)

	mv = inbound("10", "100")
	mv.RefID = "not-a-uuid"
	_, err = svc.RecordStandalone(ctx, mv)
	require.ErrorIs(t, err, ErrInvalidMovement)

	require.Empty(t, repo.entries)
}

func TestBatchAdjustmentSharesUnitOfWork(t *testing.T) {
	repo := newMemoryRepo()
	port := &recordingBatchPort{}
	svc := NewService(repo, port, nil, nil)
	ctx := context.Background()

	mv := inbound("10", "100")
	mv.BatchID = 42
	_, err := svc.RecordStandalone(ctx, mv)
	require.NoError(t, err)
	require.Equal(t, 1, port.calls)
	require.Equal(t, int64(42), port.batchID)
	require.Equal(t, batches.DirectionIn, port.dir)
	require.True(t, port.qty.Equal(dec("10")))

	out := outbound("4")
	out.BatchID = 42
	_, err = svc.RecordStandalone(ctx, out)
	require.NoError(t, err)
	require.Equal(t, batches.DirectionOut, port.dir)
}

func TestBatchFailureRollsBackMovement(t *testing.T) {
	repo := newMemoryRepo()
	port := &recordingBatchPort{err: batches.ErrInsufficientQuantity}
	svc := NewService(repo, port, nil, nil)
	ctx := context.Background()

	mv := inbound("10", "100")
	mv.BatchID = 42
	_, err := svc.RecordStandalone(ctx, mv)
	require.ErrorIs(t, err, batches.ErrInsufficientQuantity)
	require.Empty(t, repo.entries)
	require.Empty(t, repo.balances)
}

func TestRunningBalanceMatchesLedger(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordStandalone(ctx, inbound("10", "100"))
	require.NoError(t, err)
	_, err = svc.RecordStandalone(ctx, outbound("3"))
	require.NoError(t, err)
	_, err = svc.RecordStandalone(ctx, inbound("2", "100"))
	require.NoError(t, err)

	entries, err := svc.ListEntries(ctx, EntryFilter{CompanyID: 1, WarehouseID: 1, ItemID: 7})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.True(t, entries[2].RunningBalance.Equal(dec("9")))

	bal, err := svc.GetStockBalance(ctx, StockKey{CompanyID: 1, ItemID: 7, WarehouseID: 1})
	require.NoError(t, err)
	require.True(t, bal.AvailableQty.Equal(entries[2].RunningBalance))
}

func TestLastPurchaseDateTracksReceipts(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	mv := inbound("10", "100")
	mv.TxDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.RecordStandalone(ctx, mv)
	require.NoError(t, err)

	bal, err := svc.GetStockBalance(ctx, StockKey{CompanyID: 1, ItemID: 7, WarehouseID: 1})
	require.NoError(t, err)
	require.Equal(t, mv.TxDate, bal.LastPurchaseDate)
	require.Equal(t, mv.TxDate, bal.LastMovementDate)
}
