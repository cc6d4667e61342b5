package transfers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

type memoryRepo struct {
	transfers  map[int64]*StockTransfer
	nextID     int64
	nextLineID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{transfers: make(map[int64]*StockTransfer)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Work on a deep copy and swap in on success so a failed callback
	// leaves the stored state untouched, like a rolled-back transaction.
	staged := make(map[int64]*StockTransfer, len(r.transfers))
	for id, t := range r.transfers {
		cp := *t
		cp.Lines = make([]Line, len(t.Lines))
		copy(cp.Lines, t.Lines)
		staged[id] = &cp
	}
	tx := &memoryTx{repo: r, staged: staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.transfers = staged
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, companyID, id int64) (*StockTransfer, error) {
	t, ok := r.transfers[id]
	if !ok || t.CompanyID != companyID {
		return nil, ErrNotFound
	}
	cp := *t
	cp.Lines = make([]Line, len(t.Lines))
	copy(cp.Lines, t.Lines)
	return &cp, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]StockTransfer, int, error) {
	var list []StockTransfer
	for _, t := range r.transfers {
		if t.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		list = append(list, *t)
	}
	return list, len(list), nil
}

func (r *memoryRepo) NextTransferNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	return fmt.Sprintf("TRF-%s-%04d", date.Format("200601"), len(r.transfers)+1), nil
}

type memoryTx struct {
	repo   *memoryRepo
	staged map[int64]*StockTransfer
}

func (tx *memoryTx) InsertTransfer(ctx context.Context, t StockTransfer) (int64, error) {
	for _, existing := range tx.staged {
		if existing.CompanyID == t.CompanyID && existing.TransferNumber == t.TransferNumber {
			return 0, ErrDuplicateNumber
		}
	}
	tx.repo.nextID++
	t.ID = tx.repo.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	tx.staged[t.ID] = &t
	return t.ID, nil
}

func (tx *memoryTx) InsertLine(ctx context.Context, line Line) (int64, error) {
	t, ok := tx.staged[line.TransferID]
	if !ok {
		return 0, ErrNotFound
	}
	tx.repo.nextLineID++
	line.ID = tx.repo.nextLineID
	t.Lines = append(t.Lines, line)
	return line.ID, nil
}

func (tx *memoryTx) DeleteLines(ctx context.Context, transferID int64) error {
	t, ok := tx.staged[transferID]
	if !ok {
		return ErrNotFound
	}
	t.Lines = nil
	return nil
}

func (tx *memoryTx) UpdateTransfer(ctx context.Context, id int64, updates map[string]any) error {
	t, ok := tx.staged[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "transfer_date":
			t.TransferDate = value.(time.Time)
		case "notes":
			t.Notes = value.(string)
		case "approved_by":
			t.ApprovedBy = value.(int64)
		case "dispatched_at":
			at := value.(time.Time)
			t.DispatchedAt = &at
		case "received_at":
			at := value.(time.Time)
			t.ReceivedAt = &at
		case "cancelled_at":
			at := value.(time.Time)
			t.CancelledAt = &at
		}
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, id int64, from, to Status, updates map[string]any) error {
	t, ok := tx.staged[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != from {
		return ErrStatusConflict
	}
	if err := tx.UpdateTransfer(ctx, id, updates); err != nil {
		return err
	}
	t.Status = to
	return nil
}

func (tx *memoryTx) UpdateLineReceived(ctx context.Context, lineID int64, receivedQty decimal.Decimal) error {
	for _, t := range tx.staged {
		for i := range t.Lines {
			if t.Lines[i].ID == lineID {
				t.Lines[i].ReceivedQty = receivedQty
				return nil
			}
		}
	}
	return ErrLineNotFound
}

func (tx *memoryTx) UpdateLineCost(ctx context.Context, lineID int64, unitCost decimal.Decimal) error {
	for _, t := range tx.staged {
		for i := range t.Lines {
			if t.Lines[i].ID == lineID {
				t.Lines[i].UnitCost = unitCost
				return nil
			}
		}
	}
	return ErrLineNotFound
}

func (tx *memoryTx) SoftDelete(ctx context.Context, id int64) error {
	if _, ok := tx.staged[id]; !ok {
		return ErrNotFound
	}
	delete(tx.staged, id)
	return nil
}

func (tx *memoryTx) Inventory() inventory.TxRepository {
	return nil
}

// fakeRecorder tracks movements against per-warehouse stock so dispatch can
// hit the insufficient-stock path.
type fakeRecorder struct {
	stock    map[string]decimal.Decimal
	rate     decimal.Decimal
	recorded []inventory.Movement
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{stock: make(map[string]decimal.Decimal), rate: decimal.NewFromInt(10)}
}

func stockKey(warehouseID, itemID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, itemID)
}

func (f *fakeRecorder) seed(warehouseID, itemID int64, qty string) {
	f.stock[stockKey(warehouseID, itemID)] = dec(qty)
}

func (f *fakeRecorder) available(warehouseID, itemID int64) decimal.Decimal {
	return f.stock[stockKey(warehouseID, itemID)]
}

func (f *fakeRecorder) Record(ctx context.Context, tx inventory.TxRepository, mv inventory.Movement) (inventory.LedgerEntry, error) {
	key := stockKey(mv.WarehouseID, mv.ItemID)
	bal := f.stock[key]
	entry := inventory.LedgerEntry{
		WarehouseID: mv.WarehouseID,
		ItemID:      mv.ItemID,
		TxType:      mv.TxType,
		UnitCost:    mv.UnitCost,
	}
	switch mv.Direction {
	case inventory.DirectionOut:
		if mv.Quantity.GreaterThan(bal) {
			return inventory.LedgerEntry{}, fmt.Errorf("%w: requested %s, available %s",
				inventory.ErrInsufficientStock, mv.Quantity, bal)
		}
		f.stock[key] = bal.Sub(mv.Quantity)
		entry.QtyOut = mv.Quantity
		if entry.UnitCost.IsZero() {
			entry.UnitCost = f.rate
		}
	case inventory.DirectionIn:
		f.stock[key] = bal.Add(mv.Quantity)
		entry.QtyIn = mv.Quantity
	}
	entry.RunningBalance = f.stock[key]
	f.recorded = append(f.recorded, mv)
	return entry, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func draftRequest(lines ...CreateLineReq) CreateRequest {
	return CreateRequest{
		CompanyID:       1,
		Type:            TypeInterWarehouse,
		FromBranchID:    1,
		ToBranchID:      1,
		FromWarehouseID: 1,
		ToWarehouseID:   2,
		Lines:           lines,
	}
}

func line(itemID int64, qty string) CreateLineReq {
	return CreateLineReq{ItemID: itemID, Quantity: dec(qty)}
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *fakeRecorder) {
	t.Helper()
	repo := newMemoryRepo()
	recorder := newFakeRecorder()
	return NewService(repo, recorder, nil, nil), repo, recorder
}

func TestCreateDraft(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tr, err := svc.Create(ctx, draftRequest(line(7, "100")), 9)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, tr.Status)
	require.NotEmpty(t, tr.TransferNumber)
	require.Len(t, tr.Lines, 1)
	require.Equal(t, 1, tr.Lines[0].LineNo)
	require.True(t, tr.Lines[0].ReceivedQty.IsZero())
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := draftRequest(line(7, "100"))
	req.ToWarehouseID = req.FromWarehouseID
	_, err := svc.Create(ctx, req, 9)
	require.ErrorIs(t, err, ErrSameWarehouse)

	req = draftRequest(line(7, "100"))
	req.Type = TypeInterBranch // same branch pair
	_, err = svc.Create(ctx, req, 9)
	require.ErrorIs(t, err, ErrBranchPairing)

	req = draftRequest()
	_, err = svc.Create(ctx, req, 9)
	require.ErrorIs(t, err, ErrEmptyLines)

	req = draftRequest(CreateLineReq{ItemID: 7, ProductID: 3, Quantity: dec("1")})
	_, err = svc.Create(ctx, req, 9)
	require.ErrorIs(t, err, ErrItemCardinality)

	req = draftRequest(line(7, "0"))
	_, err = svc.Create(ctx, req, 9)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestFullDispatchReceiveCycle(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()
	recorder.seed(1, 7, "100")

	tr, err := svc.Create(ctx, draftRequest(line(7, "100")), 9)
	require.NoError(t, err)

	tr, err = svc.Approve(ctx, 1, tr.ID, 10)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, tr.Status)
	require.Equal(t, int64(10), tr.ApprovedBy)

	tr, err = svc.Dispatch(ctx, 1, tr.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, tr.Status)
	require.NotNil(t, tr.DispatchedAt)
	require.True(t, recorder.available(1, 7).IsZero())
	// Cost resolved from source valuation and frozen on the line.
	require.True(t, tr.Lines[0].UnitCost.Equal(dec("10")))

	tr, err = svc.Receive(ctx, 1, tr.ID, nil, 9)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, tr.Status)
	require.NotNil(t, tr.ReceivedAt)
	require.True(t, recorder.available(2, 7).Equal(dec("100")))
	require.True(t, tr.Lines[0].Outstanding().IsZero())
}

func TestDispatchInsufficientStockFailsWhole(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()
	recorder.seed(1, 7, "100")
	recorder.seed(1, 8, "1")

	tr, err := svc.Create(ctx, draftRequest(line(7, "100"), line(8, "2")), 9)
	require.NoError(t, err)
	tr, err = svc.Approve(ctx, 1, tr.ID, 10)
	require.NoError(t, err)

	_, err = svc.Dispatch(ctx, 1, tr.ID, 9)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// The whole dispatch rolled back: status unchanged.
	tr, err = svc.Get(ctx, 1, tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, tr.Status)
	require.Nil(t, tr.DispatchedAt)
}

func TestPartialReceive(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()
	recorder.seed(1, 7, "100")

	tr, err := svc.Create(ctx, draftRequest(line(7, "100")), 9)
	require.NoError(t, err)
	tr, err = svc.Approve(ctx, 1, tr.ID, 10)
	require.NoError(t, err)
	tr, err = svc.Dispatch(ctx, 1, tr.ID, 9)
	require.NoError(t, err)

	lineID := tr.Lines[0].ID
	tr, err = svc.Receive(ctx, 1, tr.ID, []ReceiptLine{{LineID: lineID, Quantity: dec("60")}}, 9)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, tr.Status)
	require.True(t, tr.Lines[0].ReceivedQty.Equal(dec("60")))
	require.True(t, tr.Lines[0].Outstanding().Equal(dec("40")))

	tr, err = svc.Receive(ctx, 1, tr.ID, []ReceiptLine{{LineID: lineID, Quantity: dec("40")}}, 9)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, tr.Status)
	require.True(t, recorder.available(2, 7).Equal(dec("100")))
	// Two IN legs at the destination.
	inCount := 0
	for _, mv := range recorder.recorded {
		if mv.Direction == inventory.DirectionIn {
			inCount++
		}
	}
	require.Equal(t, 2, inCount)
}

func TestReceiveGuards(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()
	recorder.seed(1, 7, "10")

	tr, err := svc.Create(ctx, draftRequest(line(7, "10")), 9)
	require.NoError(t, err)
	tr, err = svc.Approve(ctx, 1, tr.ID, 10)
	require.NoError(t, err)
	tr, err = svc.Dispatch(ctx, 1, tr.ID, 9)
	require.NoError(t, err)

	lineID := tr.Lines[0].ID
	_, err = svc.Receive(ctx, 1, tr.ID, []ReceiptLine{{LineID: lineID, Quantity: dec("11")}}, 9)
	require.ErrorIs(t, err, ErrReceiveExceeds)

	_, err = svc.Receive(ctx, 1, tr.ID, []ReceiptLine{{LineID: 999, Quantity: dec("1")}}, 9)
	require.ErrorIs(t, err, ErrLineNotFound)

	_, err = svc.Receive(ctx, 1, tr.ID, []ReceiptLine{{LineID: lineID, Quantity: dec("0")}}, 9)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	tr, err = svc.Receive(ctx, 1, tr.ID, nil, 9)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, tr.Status)

	// Fully received transfers take no further receipts.
	_, err = svc.Receive(ctx, 1, tr.ID, nil, 9)
	require.ErrorIs(t, err, ErrCannotReceive)
}

func TestCancelInTransitReversesOutstandingOnly(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()
	recorder.seed(1, 7, "100")

	tr, err := svc.Create(ctx, draftRequest(line(7, "100")), 9)
	require.NoError(t, err)
	tr, err = svc.Approve(ctx, 1, tr.ID, 10)
	require.NoError(t, err)
	tr, err = svc.Dispatch(ctx, 1, tr.ID, 9)
	require.NoError(t, err)

	lineID := tr.Lines[0].ID
	_, err = svc.Receive(ctx, 1, tr.ID, []ReceiptLine{{LineID: lineID, Quantity: dec("60")}}, 9)
	require.NoError(t, err)

	tr, err = svc.Cancel(ctx, 1, tr.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, tr.Status)
	require.NotNil(t, tr.CancelledAt)

	// Only the unreceived 40 returns to the source; the received 60 stays put.
	require.True(t, recorder.available(1, 7).Equal(dec("40")))
	require.True(t, recorder.available(2, 7).Equal(dec("60")))
}

func TestCancelBeforeDispatchTouchesNoStock(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()

	tr, err := svc.Create(ctx, draftRequest(line(7, "100")), 9)
	require.NoError(t, err)
	tr, err = svc.Cancel(ctx, 1, tr.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, tr.Status)
	require.Empty(t, recorder.recorded)
}

func TestStateMachineGuards(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()
	recorder.seed(1, 7, "100")

	tr, err := svc.Create(ctx, draftRequest(line(7, "100")), 9)
	require.NoError(t, err)

	// Dispatch and receive require the prior state.
	_, err = svc.Dispatch(ctx, 1, tr.ID, 9)
	require.ErrorIs(t, err, ErrCannotDispatch)
	_, err = svc.Receive(ctx, 1, tr.ID, nil, 9)
	require.ErrorIs(t, err, ErrCannotReceive)

	tr, err = svc.Approve(ctx, 1, tr.ID, 10)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, 1, tr.ID, 10)
	require.ErrorIs(t, err, ErrCannotApprove)

	// Approved transfers are frozen.
	notes := "late edit"
	_, err = svc.Update(ctx, 1, tr.ID, UpdateRequest{Notes: &notes}, 9)
	require.ErrorIs(t, err, ErrCannotEdit)
	err = svc.Delete(ctx, 1, tr.ID, 9)
	require.ErrorIs(t, err, ErrCannotDelete)

	tr, err = svc.Dispatch(ctx, 1, tr.ID, 9)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, 1, tr.ID, 9)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, 1, tr.ID, 9)
	require.ErrorIs(t, err, ErrCannotCancel)
}

func TestUpdateReplacesLines(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tr, err := svc.Create(ctx, draftRequest(line(7, "100"), line(8, "5")), 9)
	require.NoError(t, err)
	require.Len(t, tr.Lines, 2)

	newLines := []CreateLineReq{line(7, "42")}
	tr, err = svc.Update(ctx, 1, tr.ID, UpdateRequest{Lines: &newLines}, 9)
	require.NoError(t, err)
	require.Len(t, tr.Lines, 1)
	require.True(t, tr.Lines[0].Quantity.Equal(dec("42")))
	require.Equal(t, 1, tr.Lines[0].LineNo)
}

func TestDeleteDraft(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tr, err := svc.Create(ctx, draftRequest(line(7, "100")), 9)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 1, tr.ID, 9))

	_, err = svc.Get(ctx, 1, tr.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReceiveManifestAggregatesPerLine(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()
	recorder.seed(1, 7, "10")

	tr, err := svc.Create(ctx, draftRequest(line(7, "10")), 9)
	require.NoError(t, err)
	tr, err = svc.Approve(ctx, 1, tr.ID, 10)
	require.NoError(t, err)
	tr, err = svc.Dispatch(ctx, 1, tr.ID, 9)
	require.NoError(t, err)

	// Two entries for the same line whose sum exceeds the dispatched
	// quantity are rejected as a whole, even though each fits on its own.
	lineID := tr.Lines[0].ID
	_, err = svc.Receive(ctx, 1, tr.ID, []ReceiptLine{
		{LineID: lineID, Quantity: dec("8")},
		{LineID: lineID, Quantity: dec("8")},
	}, 9)
	require.ErrorIs(t, err, ErrReceiveExceeds)

	tr, err = svc.Get(ctx, 1, tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, tr.Status)
	require.True(t, tr.Lines[0].ReceivedQty.IsZero())
	require.True(t, recorder.available(2, 7).IsZero())

	// A split within the cap still goes through in one receipt.
	tr, err = svc.Receive(ctx, 1, tr.ID, []ReceiptLine{
		{LineID: lineID, Quantity: dec("4")},
		{LineID: lineID, Quantity: dec("6")},
	}, 9)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, tr.Status)
	require.True(t, tr.Lines[0].ReceivedQty.Equal(dec("10")))
	require.True(t, recorder.available(2, 7).Equal(dec("10")))
}

// staleRepo serves header snapshots frozen at an earlier status, simulating
// a reader that lost the race against a concurrent transition.
type staleRepo struct {
	*memoryRepo
	status Status
}

func (r *staleRepo) GetByID(ctx context.Context, companyID, id int64) (*StockTransfer, error) {
	tr, err := r.memoryRepo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	tr.Status = r.status
	return tr, nil
}

func TestDispatchRejectsConcurrentStatusChange(t *testing.T) {
	repo := newMemoryRepo()
	recorder := newFakeRecorder()
	recorder.seed(1, 7, "200")
	svc := NewService(repo, recorder, nil, nil)
	ctx := context.Background()

	tr, err := svc.Create(ctx, draftRequest(line(7, "100")), 9)
	require.NoError(t, err)
	tr, err = svc.Approve(ctx, 1, tr.ID, 10)
	require.NoError(t, err)
	tr, err = svc.Dispatch(ctx, 1, tr.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, tr.Status)

	// A second dispatcher still holding the APPROVED snapshot passes the
	// status guard but must fail on the conditional update.
	stale := NewService(&staleRepo{memoryRepo: repo, status: StatusApproved}, recorder, nil, nil)
	_, err = stale.Dispatch(ctx, 1, tr.ID, 9)
	require.ErrorIs(t, err, ErrStatusConflict)

	tr, err = svc.Get(ctx, 1, tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, tr.Status)
}

// collidingNumberRepo hands out an already-taken number on the first call,
// the way two concurrent creates can read the same sequence value.
type collidingNumberRepo struct {
	*memoryRepo
	taken string
	calls int
}

func (r *collidingNumberRepo) NextTransferNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	r.calls++
	if r.calls == 1 {
		return r.taken, nil
	}
	return r.memoryRepo.NextTransferNumber(ctx, companyID, date)
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newFakeRecorder(), nil, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, draftRequest(line(7, "10")), 9)
	require.NoError(t, err)

	colliding := &collidingNumberRepo{memoryRepo: repo, taken: first.TransferNumber}
	svc = NewService(colliding, newFakeRecorder(), nil, nil)

	second, err := svc.Create(ctx, draftRequest(line(7, "20")), 9)
	require.NoError(t, err)
	require.NotEqual(t, first.TransferNumber, second.TransferNumber)
	require.Equal(t, 2, colliding.calls)
}

func TestInterBranchRequiresDistinctBranches(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := draftRequest(line(7, "1"))
	req.Type = TypeInterBranch
	req.ToBranchID = 2
	tr, err := svc.Create(ctx, req, 9)
	require.NoError(t, err)
	require.Equal(t, TypeInterBranch, tr.Type)
}
