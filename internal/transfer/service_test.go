package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rxstock/rxstock/internal/actors"
	"github.com/rxstock/rxstock/internal/stock"
)

type memoryRepo struct {
	requests map[int64]TransferRequest
	items    map[int64]TransferItem
	stocks   map[string]stock.StockRecord
	ledger   []stock.StockTransaction
	nextReq  int64
	nextItem int64
	nextRec  int64
	nextTxn  int64

	// failUpdateItem makes UpdateItem fail for the given item id, after any
	// ledger work already done in the same transaction.
	failUpdateItem int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		requests: make(map[int64]TransferRequest),
		items:    make(map[int64]TransferItem),
		stocks:   make(map[string]stock.StockRecord),
	}
}

func stockKey(dept actors.Department, drugID int64) string {
	return fmt.Sprintf("%s:%d", dept, drugID)
}

func (r *memoryRepo) seedStock(dept actors.Department, drugID, qty int64, value float64) {
	r.nextRec++
	r.stocks[stockKey(dept, drugID)] = stock.StockRecord{
		ID:         r.nextRec,
		DrugID:     drugID,
		Department: dept,
		TotalQty:   qty,
		MinimumQty: stock.DefaultMinimumQty,
		TotalValue: value,
	}
}

func (r *memoryRepo) clone() *memoryRepo {
	c := &memoryRepo{
		requests:       make(map[int64]TransferRequest, len(r.requests)),
		items:          make(map[int64]TransferItem, len(r.items)),
		stocks:         make(map[string]stock.StockRecord, len(r.stocks)),
		ledger:         append([]stock.StockTransaction(nil), r.ledger...),
		nextReq:        r.nextReq,
		nextItem:       r.nextItem,
		nextRec:        r.nextRec,
		nextTxn:        r.nextTxn,
		failUpdateItem: r.failUpdateItem,
	}
	for id, tr := range r.requests {
		c.requests[id] = tr
	}
	for id, item := range r.items {
		c.items[id] = item
	}
	for key, rec := range r.stocks {
		c.stocks[key] = rec
	}
	return c
}

// WithTx mirrors the database transaction: the callback works on a copy and
// only a successful return publishes it.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := r.clone()
	if err := fn(ctx, &memoryTx{repo: staged}); err != nil {
		return err
	}
	*r = *staged
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (TransferRequest, error) {
	tr, ok := r.requests[id]
	if !ok {
		return TransferRequest{}, ErrNotFound
	}
	for _, item := range r.items {
		if item.TransferID == id {
			tr.Items = append(tr.Items, item)
		}
	}
	sort.Slice(tr.Items, func(i, j int) bool { return tr.Items[i].ID < tr.Items[j].ID })
	return tr, nil
}

func (r *memoryRepo) List(ctx context.Context, dept actors.Department, filter ListFilter) ([]TransferRequest, int, error) {
	var out []TransferRequest
	for _, tr := range r.requests {
		if dept != "" && tr.FromDept != dept && tr.ToDept != dept {
			continue
		}
		if filter.Status != nil && tr.Status != *filter.Status {
			continue
		}
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) InsertRequest(ctx context.Context, tr TransferRequest) (int64, error) {
	for _, existing := range tx.repo.requests {
		if existing.Requisition == tr.Requisition {
			return 0, ErrDuplicateRequisition
		}
	}
	tx.repo.nextReq++
	tr.ID = tx.repo.nextReq
	tx.repo.requests[tr.ID] = tr
	return tr.ID, nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item TransferItem) (int64, error) {
	tx.repo.nextItem++
	item.ID = tx.repo.nextItem
	tx.repo.items[item.ID] = item
	return item.ID, nil
}

func (tx *memoryTx) UpdateRequest(ctx context.Context, tr TransferRequest) error {
	if _, ok := tx.repo.requests[tr.ID]; !ok {
		return ErrNotFound
	}
	tr.Items = nil
	tx.repo.requests[tr.ID] = tr
	return nil
}

func (tx *memoryTx) UpdateItem(ctx context.Context, item TransferItem) error {
	if tx.repo.failUpdateItem != 0 && item.ID == tx.repo.failUpdateItem {
		return errors.New("simulated write failure")
	}
	if _, ok := tx.repo.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	tx.repo.items[item.ID] = item
	return nil
}

func (tx *memoryTx) Stock() stock.TxRepository {
	return &memoryStockTx{repo: tx.repo}
}

type memoryStockTx struct {
	repo *memoryRepo
}

func (tx *memoryStockTx) GetForUpdate(ctx context.Context, dept actors.Department, drugID int64) (stock.StockRecord, error) {
	rec, ok := tx.repo.stocks[stockKey(dept, drugID)]
	if !ok {
		return stock.StockRecord{}, stock.ErrStockNotFound
	}
	return rec, nil
}

func (tx *memoryStockTx) Create(ctx context.Context, rec stock.StockRecord) (int64, error) {
	tx.repo.nextRec++
	rec.ID = tx.repo.nextRec
	tx.repo.stocks[stockKey(rec.Department, rec.DrugID)] = rec
	return rec.ID, nil
}

func (tx *memoryStockTx) UpdateCounters(ctx context.Context, id int64, totalQty, reservedQty int64, totalValue float64) error {
	for key, rec := range tx.repo.stocks {
		if rec.ID == id {
			rec.TotalQty = totalQty
			rec.ReservedQty = reservedQty
			rec.TotalValue = totalValue
			tx.repo.stocks[key] = rec
			return nil
		}
	}
	return stock.ErrStockNotFound
}

func (tx *memoryStockTx) InsertTransaction(ctx context.Context, txn stock.StockTransaction) (int64, error) {
	tx.repo.nextTxn++
	txn.ID = tx.repo.nextTxn
	tx.repo.ledger = append(tx.repo.ledger, txn)
	return txn.ID, nil
}

var (
	opdNurse   = actors.Actor{ID: 9, Username: "nurse.opd", Department: actors.DeptOPD}
	pharmacist = actors.Actor{ID: 7, Username: "rph.main", Department: actors.DeptPharmacy}
	auditor    = actors.Actor{ID: 3, Username: "auditor", Department: actors.DeptOPD, Admin: true}
)

func newTestService(repo *memoryRepo, cfg ServiceConfig) *Service {
	return NewService(repo, nil, nil, cfg)
}

func createRequisition(t *testing.T, svc *Service, requisition string) TransferRequest {
	t.Helper()
	tr, err := svc.Create(context.Background(), opdNurse, CreateRequest{
		Requisition: requisition,
		ToDept:      string(actors.DeptPharmacy),
		Items:       []CreateItemReq{{DrugID: 42, RequestedQty: 100}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, tr.Status)
	require.Equal(t, actors.DeptOPD, tr.FromDept)
	require.Equal(t, actors.DeptPharmacy, tr.ToDept)
	require.Len(t, tr.Items, 1)
	return tr
}

func prepareRequisition(t *testing.T, svc *Service, tr TransferRequest, qty int64, price float64) TransferRequest {
	t.Helper()
	ctx := context.Background()
	tr, err := svc.Dispatch(ctx, tr.ID, pharmacist, ApproveCommand{})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, tr.Status)
	tr, err = svc.Dispatch(ctx, tr.ID, pharmacist, PrepareCommand{
		Items: []PrepareItem{{ItemID: tr.Items[0].ID, DispensedQty: qty, LotNumber: "LOT-01", UnitPrice: price}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPrepared, tr.Status)
	return tr
}

func TestReceiveSettlesBothLedgers(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedStock(actors.DeptPharmacy, 42, 500, 1250)
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	tr := createRequisition(t, svc, "REQ-2026-001")
	tr = prepareRequisition(t, svc, tr, 100, 2.5)
	require.InDelta(t, 250, tr.TotalValue, 0.0001)

	tr, err := svc.Dispatch(ctx, tr.ID, opdNurse, ReceiveCommand{
		Items: []ReceiveItem{{ItemID: tr.Items[0].ID, ReceivedQty: 100}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, tr.Status)
	require.NotNil(t, tr.ReceiverID)
	require.Equal(t, opdNurse.ID, *tr.ReceiverID)
	require.NotNil(t, tr.ReceivedAt)
	require.NotNil(t, tr.Items[0].ReceivedQty)
	require.Equal(t, int64(100), *tr.Items[0].ReceivedQty)

	src := repo.stocks[stockKey(actors.DeptPharmacy, 42)]
	require.Equal(t, int64(400), src.TotalQty)
	require.InDelta(t, 1000, src.TotalValue, 0.0001)

	dst := repo.stocks[stockKey(actors.DeptOPD, 42)]
	require.Equal(t, int64(100), dst.TotalQty)
	require.InDelta(t, 250, dst.TotalValue, 0.0001)
	require.Equal(t, int64(stock.DefaultMinimumQty), dst.MinimumQty)

	require.Len(t, repo.ledger, 2)
	out, in := repo.ledger[0], repo.ledger[1]
	require.Equal(t, stock.TypeTransferOut, out.Type)
	require.Equal(t, int64(-100), out.Qty)
	require.Equal(t, int64(500), out.BeforeQty)
	require.Equal(t, int64(400), out.AfterQty)
	require.Equal(t, stock.TypeTransferIn, in.Type)
	require.Equal(t, int64(100), in.Qty)
	require.Equal(t, int64(0), in.BeforeQty)
	require.Equal(t, int64(100), in.AfterQty)
	for _, txn := range repo.ledger {
		require.Equal(t, txn.Qty, txn.AfterQty-txn.BeforeQty)
		require.Equal(t, "REQ-2026-001", txn.Reference)
		require.NotNil(t, txn.TransferID)
		require.Equal(t, tr.ID, *txn.TransferID)
	}
}

func TestApproveRequiresSupplyingDepartment(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	tr := createRequisition(t, svc, "REQ-2026-002")

	_, err := svc.Dispatch(ctx, tr.ID, opdNurse, ApproveCommand{})
	require.ErrorIs(t, err, ErrForbidden)

	tr, err = svc.Get(ctx, tr.ID, opdNurse)
	require.NoError(t, err)
	require.Equal(t, StatusPending, tr.Status)
	require.Nil(t, tr.ApproverID)
}

func TestReceiveBeforePrepare(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	tr := createRequisition(t, svc, "REQ-2026-003")
	tr, err := svc.Dispatch(ctx, tr.ID, pharmacist, ApproveCommand{})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, tr.Status)

	_, err = svc.Dispatch(ctx, tr.ID, opdNurse, ReceiveCommand{})
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Empty(t, repo.ledger)
}

func TestCancelOnlyWhilePending(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedStock(actors.DeptPharmacy, 42, 500, 1250)
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	tr := createRequisition(t, svc, "REQ-2026-004")
	tr = prepareRequisition(t, svc, tr, 100, 2.5)

	_, err := svc.Dispatch(ctx, tr.ID, opdNurse, CancelCommand{Note: "changed my mind"})
	require.ErrorIs(t, err, ErrInvalidTransition)

	tr2 := createRequisition(t, svc, "REQ-2026-005")
	tr2, err = svc.Dispatch(ctx, tr2.ID, pharmacist, CancelCommand{Note: "out of scope"})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, tr2.Status)
}

func TestApproveQuantityOverride(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	tr := createRequisition(t, svc, "REQ-2026-006")
	tr, err := svc.Dispatch(ctx, tr.ID, pharmacist, ApproveCommand{
		Items: []ApproveItem{{ItemID: tr.Items[0].ID, ApprovedQty: 60}},
	})
	require.NoError(t, err)
	require.NotNil(t, tr.Items[0].ApprovedQty)
	require.Equal(t, int64(60), *tr.Items[0].ApprovedQty)

	_, err = svc.Dispatch(ctx, tr.ID, pharmacist, PrepareCommand{
		Items: []PrepareItem{{ItemID: 9999, DispensedQty: 1, UnitPrice: 1}},
	})
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestReceiveCapsAtDispensed(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedStock(actors.DeptPharmacy, 42, 500, 1250)
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	tr := createRequisition(t, svc, "REQ-2026-007")
	tr = prepareRequisition(t, svc, tr, 100, 2.5)

	_, err := svc.Dispatch(ctx, tr.ID, opdNurse, ReceiveCommand{
		Items: []ReceiveItem{{ItemID: tr.Items[0].ID, ReceivedQty: 150}},
	})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, repo.ledger)
}

func TestReceiveInsufficientSourceStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedStock(actors.DeptPharmacy, 42, 50, 125)
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	tr := createRequisition(t, svc, "REQ-2026-008")
	tr = prepareRequisition(t, svc, tr, 100, 2.5)

	_, err := svc.Dispatch(ctx, tr.ID, opdNurse, ReceiveCommand{
		Items: []ReceiveItem{{ItemID: tr.Items[0].ID, ReceivedQty: 100}},
	})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	// Nothing moved, nothing was recorded, the requisition stays receivable.
	tr, err = svc.Get(ctx, tr.ID, opdNurse)
	require.NoError(t, err)
	require.Equal(t, StatusPrepared, tr.Status)
	require.Equal(t, int64(50), repo.stocks[stockKey(actors.DeptPharmacy, 42)].TotalQty)
	require.NotContains(t, repo.stocks, stockKey(actors.DeptOPD, 42))
	require.Empty(t, repo.ledger)
}

func TestReceiveShortModeSkipsWholeLine(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedStock(actors.DeptPharmacy, 42, 50, 125)
	svc := newTestService(repo, ServiceConfig{AllowShortReceive: true})
	ctx := context.Background()

	tr := createRequisition(t, svc, "REQ-2026-009")
	tr = prepareRequisition(t, svc, tr, 100, 2.5)

	tr, err := svc.Dispatch(ctx, tr.ID, opdNurse, ReceiveCommand{
		Items: []ReceiveItem{{ItemID: tr.Items[0].ID, ReceivedQty: 100}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, tr.Status)
	require.NotNil(t, tr.Items[0].ReceivedQty)
	require.Equal(t, int64(0), *tr.Items[0].ReceivedQty)
	require.NotNil(t, tr.Items[0].Note)

	// The skip covers both halves: neither ledger moved.
	require.Equal(t, int64(50), repo.stocks[stockKey(actors.DeptPharmacy, 42)].TotalQty)
	require.NotContains(t, repo.stocks, stockKey(actors.DeptOPD, 42))
	require.Empty(t, repo.ledger)
}

func TestReceiveTwice(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedStock(actors.DeptPharmacy, 42, 500, 1250)
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	tr := createRequisition(t, svc, "REQ-2026-010")
	tr = prepareRequisition(t, svc, tr, 100, 2.5)

	receive := ReceiveCommand{Items: []ReceiveItem{{ItemID: tr.Items[0].ID, ReceivedQty: 100}}}
	_, err := svc.Dispatch(ctx, tr.ID, opdNurse, receive)
	require.NoError(t, err)

	_, err = svc.Dispatch(ctx, tr.ID, opdNurse, receive)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, int64(400), repo.stocks[stockKey(actors.DeptPharmacy, 42)].TotalQty)
	require.Equal(t, int64(100), repo.stocks[stockKey(actors.DeptOPD, 42)].TotalQty)
	require.Len(t, repo.ledger, 2)
}

func TestReceiveRollsBackOnWriteFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedStock(actors.DeptPharmacy, 42, 500, 1250)
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	tr := createRequisition(t, svc, "REQ-2026-011")
	tr = prepareRequisition(t, svc, tr, 100, 2.5)

	repo.failUpdateItem = tr.Items[0].ID
	_, err := svc.Dispatch(ctx, tr.ID, opdNurse, ReceiveCommand{
		Items: []ReceiveItem{{ItemID: tr.Items[0].ID, ReceivedQty: 100}},
	})
	require.Error(t, err)

	// The ledger halves had already been applied inside the transaction; the
	// failure must discard them together with the status change.
	tr, getErr := svc.Get(ctx, tr.ID, opdNurse)
	require.NoError(t, getErr)
	require.Equal(t, StatusPrepared, tr.Status)
	require.Equal(t, int64(500), repo.stocks[stockKey(actors.DeptPharmacy, 42)].TotalQty)
	require.NotContains(t, repo.stocks, stockKey(actors.DeptOPD, 42))
	require.Empty(t, repo.ledger)
}

func TestCreateRejectsSameDepartment(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.Create(context.Background(), opdNurse, CreateRequest{
		Requisition: "REQ-2026-012",
		ToDept:      string(actors.DeptOPD),
		Items:       []CreateItemReq{{DrugID: 42, RequestedQty: 10}},
	})
	require.ErrorIs(t, err, ErrSameDepartment)
}

func TestCreateRejectsDuplicateRequisition(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})

	createRequisition(t, svc, "REQ-2026-013")
	_, err := svc.Create(context.Background(), opdNurse, CreateRequest{
		Requisition: "REQ-2026-013",
		ToDept:      string(actors.DeptPharmacy),
		Items:       []CreateItemReq{{DrugID: 42, RequestedQty: 10}},
	})
	require.ErrorIs(t, err, ErrDuplicateRequisition)
}

func TestGetScopesToEndpoints(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	tr := createRequisition(t, svc, "REQ-2026-014")

	outsider := actors.Actor{ID: 11, Department: "ICU"}
	_, err := svc.Get(ctx, tr.ID, outsider)
	require.ErrorIs(t, err, ErrForbidden)

	got, err := svc.Get(ctx, tr.ID, auditor)
	require.NoError(t, err)
	require.Equal(t, tr.ID, got.ID)

	// Admin reads everything but holds no workflow rights beyond their own
	// department's.
	_, err = svc.Dispatch(ctx, tr.ID, auditor, ApproveCommand{})
	require.ErrorIs(t, err, ErrForbidden)
}
