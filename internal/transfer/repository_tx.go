package transfer

import (
	"context"

	"github.com/rxstock/rxstock/internal/stock"
)

func (t *txRepository) InsertRequest(ctx context.Context, tr TransferRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO transfer_requests (
	requisition_number, from_dept, to_dept, status, requester_id, note,
	total_items, total_value, requested_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
RETURNING id`,
		tr.Requisition, tr.FromDept, tr.ToDept, tr.Status, tr.RequesterID, tr.Note,
		tr.TotalItems, tr.TotalValue, tr.RequestedAt).Scan(&id)
	if err != nil && isUniqueViolation(err) {
		return 0, ErrDuplicateRequisition
	}
	return id, err
}

func (t *txRepository) InsertItem(ctx context.Context, item TransferItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO transfer_items (
	transfer_id, drug_id, requested_qty, note, line_value, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
RETURNING id`,
		item.TransferID, item.DrugID, item.RequestedQty, item.Note, item.LineValue).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateRequest(ctx context.Context, tr TransferRequest) error {
	tag, err := t.tx.Exec(ctx, `UPDATE transfer_requests SET
	status=$2, approver_id=$3, dispenser_id=$4, receiver_id=$5, note=$6,
	total_items=$7, total_value=$8, approved_at=$9, dispensed_at=$10,
	received_at=$11, updated_at=NOW()
WHERE id=$1`,
		tr.ID, tr.Status, tr.ApproverID, tr.DispenserID, tr.ReceiverID, tr.Note,
		tr.TotalItems, tr.TotalValue, tr.ApprovedAt, tr.DispensedAt, tr.ReceivedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) UpdateItem(ctx context.Context, item TransferItem) error {
	tag, err := t.tx.Exec(ctx, `UPDATE transfer_items SET
	approved_qty=$2, dispensed_qty=$3, lot_number=$4, expiry_date=$5,
	manufacturer=$6, unit_price=$7, received_qty=$8, line_value=$9, note=$10,
	updated_at=NOW()
WHERE id=$1`,
		item.ID, item.ApprovedQty, item.DispensedQty, item.LotNumber, item.ExpiryDate,
		item.Manufacturer, item.UnitPrice, item.ReceivedQty, item.LineValue, item.Note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (t *txRepository) Stock() stock.TxRepository {
	return t.stockTx
}
