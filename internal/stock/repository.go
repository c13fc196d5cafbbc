package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rxstock/rxstock/internal/actors"
	"github.com/rxstock/rxstock/internal/platform/db"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional ledger operations. Apply drives all
// mutations through it so the read-lock-write cycle stays inside one database
// transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, dept actors.Department, drugID int64) (StockRecord, error)
	Create(ctx context.Context, rec StockRecord) (int64, error)
	UpdateCounters(ctx context.Context, id int64, totalQty, reservedQty int64, totalValue float64) error
	InsertTransaction(ctx context.Context, txn StockTransaction) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository grafts ledger operations onto an existing transaction. The
// transfer workflow uses this to mutate both department ledgers inside its own
// atomic unit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetStock returns the record for one drug in one department.
func (r *Repository) GetStock(ctx context.Context, dept actors.Department, drugID int64) (StockRecord, error) {
	var rec StockRecord
	err := r.pool.QueryRow(ctx, `SELECT id, drug_id, department, total_qty, reserved_qty, minimum_qty, total_value, created_at, updated_at
FROM stock_records WHERE department=$1 AND drug_id=$2`, dept, drugID).
		Scan(&rec.ID, &rec.DrugID, &rec.Department, &rec.TotalQty, &rec.ReservedQty, &rec.MinimumQty, &rec.TotalValue, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{}, ErrStockNotFound
		}
		return StockRecord{}, err
	}
	return rec, nil
}

// ListStock returns every record held by a department.
func (r *Repository) ListStock(ctx context.Context, dept actors.Department) ([]StockRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, drug_id, department, total_qty, reserved_qty, minimum_qty, total_value, created_at, updated_at
FROM stock_records WHERE department=$1 ORDER BY drug_id ASC`, dept)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListBelowMinimum returns records whose available quantity sits under the
// reorder threshold, across all departments.
func (r *Repository) ListBelowMinimum(ctx context.Context) ([]StockRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, drug_id, department, total_qty, reserved_qty, minimum_qty, total_value, created_at, updated_at
FROM stock_records WHERE total_qty - reserved_qty < minimum_qty ORDER BY department ASC, drug_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// History lists the transaction trail for one drug in one department, newest first.
func (r *Repository) History(ctx context.Context, dept actors.Department, drugID int64, limit int) ([]StockTransaction, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.stock_id, t.type, t.qty, t.before_qty, t.after_qty, t.unit_cost, t.total_cost, t.reference, t.transfer_id, t.actor_id, t.created_at
FROM stock_transactions t
JOIN stock_records s ON s.id = t.stock_id
WHERE s.department=$1 AND s.drug_id=$2
ORDER BY t.created_at DESC, t.id DESC
LIMIT $3`, dept, drugID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []StockTransaction
	for rows.Next() {
		var txn StockTransaction
		if err := rows.Scan(&txn.ID, &txn.StockID, &txn.Type, &txn.Qty, &txn.BeforeQty, &txn.AfterQty, &txn.UnitCost, &txn.TotalCost, &txn.Reference, &txn.TransferID, &txn.ActorID, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func scanRecords(rows pgx.Rows) ([]StockRecord, error) {
	var records []StockRecord
	for rows.Next() {
		var rec StockRecord
		if err := rows.Scan(&rec.ID, &rec.DrugID, &rec.Department, &rec.TotalQty, &rec.ReservedQty, &rec.MinimumQty, &rec.TotalValue, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *txRepository) GetForUpdate(ctx context.Context, dept actors.Department, drugID int64) (StockRecord, error) {
	var rec StockRecord
	err := r.tx.QueryRow(ctx, `SELECT id, drug_id, department, total_qty, reserved_qty, minimum_qty, total_value, created_at, updated_at
FROM stock_records WHERE department=$1 AND drug_id=$2 FOR UPDATE`, dept, drugID).
		Scan(&rec.ID, &rec.DrugID, &rec.Department, &rec.TotalQty, &rec.ReservedQty, &rec.MinimumQty, &rec.TotalValue, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{}, ErrStockNotFound
		}
		return StockRecord{}, err
	}
	return rec, nil
}

func (r *txRepository) Create(ctx context.Context, rec StockRecord) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_records (drug_id, department, total_qty, reserved_qty, minimum_qty, total_value, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		rec.DrugID, rec.Department, rec.TotalQty, rec.ReservedQty, rec.MinimumQty, rec.TotalValue).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateCounters(ctx context.Context, id int64, totalQty, reservedQty int64, totalValue float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_records SET total_qty=$2, reserved_qty=$3, total_value=$4, updated_at=NOW() WHERE id=$1`,
		id, totalQty, reservedQty, totalValue)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn StockTransaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transactions (stock_id, type, qty, before_qty, after_qty, unit_cost, total_cost, reference, transfer_id, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()) RETURNING id`,
		txn.StockID, string(txn.Type), txn.Qty, txn.BeforeQty, txn.AfterQty, txn.UnitCost, txn.TotalCost, txn.Reference, txn.TransferID, nullActor(txn.ActorID)).Scan(&id)
	return id, err
}

func nullActor(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
