package transfer

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rxstock/rxstock/internal/actors"
	"github.com/rxstock/rxstock/internal/platform/db"
	"github.com/rxstock/rxstock/internal/stock"
)

// Repository persists transfer requisitions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the dispatcher.
// Stock() returns a ledger repository bound to the SAME database transaction,
// so a receive settles the requisition and both department ledgers in one
// atomic unit.
type TxRepository interface {
	InsertRequest(ctx context.Context, tr TransferRequest) (int64, error)
	InsertItem(ctx context.Context, item TransferItem) (int64, error)
	UpdateRequest(ctx context.Context, tr TransferRequest) error
	UpdateItem(ctx context.Context, item TransferItem) error
	Stock() stock.TxRepository
}

type txRepository struct {
	tx      pgx.Tx
	stockTx stock.TxRepository
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("transfer repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, stockTx: stock.NewTxRepository(tx)})
	})
}

const requestColumns = `id, requisition_number, from_dept, to_dept, status, requester_id, approver_id, dispenser_id, receiver_id, note, total_items, total_value, requested_at, approved_at, dispensed_at, received_at, created_at, updated_at`

// GetByID loads one requisition with its items.
func (r *Repository) GetByID(ctx context.Context, id int64) (TransferRequest, error) {
	var tr TransferRequest
	err := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM transfer_requests WHERE id=$1`, id).Scan(
		&tr.ID, &tr.Requisition, &tr.FromDept, &tr.ToDept, &tr.Status,
		&tr.RequesterID, &tr.ApproverID, &tr.DispenserID, &tr.ReceiverID, &tr.Note,
		&tr.TotalItems, &tr.TotalValue,
		&tr.RequestedAt, &tr.ApprovedAt, &tr.DispensedAt, &tr.ReceivedAt,
		&tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TransferRequest{}, ErrNotFound
		}
		return TransferRequest{}, err
	}
	items, err := r.listItems(ctx, id)
	if err != nil {
		return TransferRequest{}, err
	}
	tr.Items = items
	return tr, nil
}

// List returns requisitions visible to the given department, newest first.
// An empty department lists everything (admin reads).
func (r *Repository) List(ctx context.Context, dept actors.Department, filter ListFilter) ([]TransferRequest, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var status any
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	var deptArg any
	if dept != "" {
		deptArg = string(dept)
	}

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfer_requests
WHERE ($1::text IS NULL OR status=$1)
  AND ($2::text IS NULL OR from_dept=$2 OR to_dept=$2)`, status, deptArg).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM transfer_requests
WHERE ($1::text IS NULL OR status=$1)
  AND ($2::text IS NULL OR from_dept=$2 OR to_dept=$2)
ORDER BY requested_at DESC, id DESC
LIMIT $3 OFFSET $4`, status, deptArg, limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var transfers []TransferRequest
	for rows.Next() {
		var tr TransferRequest
		if err := rows.Scan(
			&tr.ID, &tr.Requisition, &tr.FromDept, &tr.ToDept, &tr.Status,
			&tr.RequesterID, &tr.ApproverID, &tr.DispenserID, &tr.ReceiverID, &tr.Note,
			&tr.TotalItems, &tr.TotalValue,
			&tr.RequestedAt, &tr.ApprovedAt, &tr.DispensedAt, &tr.ReceivedAt,
			&tr.CreatedAt, &tr.UpdatedAt); err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, tr)
	}
	return transfers, total, rows.Err()
}

func (r *Repository) listItems(ctx context.Context, transferID int64) ([]TransferItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, transfer_id, drug_id, requested_qty, approved_qty, dispensed_qty, lot_number, expiry_date, manufacturer, unit_price, received_qty, line_value, note, created_at, updated_at
FROM transfer_items WHERE transfer_id=$1 ORDER BY id ASC`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransferItem
	for rows.Next() {
		var item TransferItem
		if err := rows.Scan(&item.ID, &item.TransferID, &item.DrugID, &item.RequestedQty,
			&item.ApprovedQty, &item.DispensedQty, &item.LotNumber, &item.ExpiryDate,
			&item.Manufacturer, &item.UnitPrice, &item.ReceivedQty, &item.LineValue,
			&item.Note, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
