package stock

import (
	"context"
	"errors"
	"fmt"
)

// Apply executes one ledger mutation against an open transaction: it locks or
// lazily creates the record, captures before/after quantities, guards against
// negative stock, updates the counters and appends exactly one StockTransaction.
// Callers own the surrounding transaction; Apply performs no commit or rollback.
func Apply(ctx context.Context, tx TxRepository, m Movement) (StockTransaction, error) {
	if m.Qty == 0 {
		return StockTransaction{}, ErrInvalidQuantity
	}
	if m.UnitCost < 0 {
		return StockTransaction{}, ErrInvalidUnitCost
	}
	if !m.Department.IsValid() || m.DrugID == 0 {
		return StockTransaction{}, errors.New("stock: department and drug required")
	}
	if !m.Type.MovesQuantity() {
		return StockTransaction{}, fmt.Errorf("stock: %s is not a quantity movement", m.Type)
	}

	rec, err := tx.GetForUpdate(ctx, m.Department, m.DrugID)
	switch {
	case errors.Is(err, ErrStockNotFound):
		if !m.CreateIfMissing {
			if m.Qty < 0 {
				return StockTransaction{}, ErrInsufficientStock
			}
			return StockTransaction{}, ErrStockNotFound
		}
		minimum := m.DefaultMinimum
		if minimum <= 0 {
			minimum = DefaultMinimumQty
		}
		rec = StockRecord{DrugID: m.DrugID, Department: m.Department, MinimumQty: minimum}
		id, err := tx.Create(ctx, rec)
		if err != nil {
			return StockTransaction{}, err
		}
		rec.ID = id
	case err != nil:
		return StockTransaction{}, err
	}

	before := rec.TotalQty
	after := before + m.Qty
	if after < 0 {
		return StockTransaction{}, ErrInsufficientStock
	}
	if after < rec.ReservedQty {
		return StockTransaction{}, ErrInsufficientStock
	}

	value := rec.TotalValue + float64(m.Qty)*m.UnitCost
	// Lot-level rounding can leave a fraction of a satang behind an empty record.
	if value < 1e-6 && (after == 0 || value < 0) {
		value = 0
	}

	if err := tx.UpdateCounters(ctx, rec.ID, after, rec.ReservedQty, value); err != nil {
		return StockTransaction{}, err
	}

	txn := StockTransaction{
		StockID:    rec.ID,
		Type:       m.Type,
		Qty:        m.Qty,
		BeforeQty:  before,
		AfterQty:   after,
		UnitCost:   m.UnitCost,
		TotalCost:  float64(m.Qty) * m.UnitCost,
		Reference:  m.Reference,
		TransferID: m.TransferID,
		ActorID:    m.ActorID,
	}
	id, err := tx.InsertTransaction(ctx, txn)
	if err != nil {
		return StockTransaction{}, err
	}
	txn.ID = id
	return txn, nil
}

// applyReservation shifts the reserved counter without moving quantity. The
// transaction entry's before/after capture ReservedQty for these kinds.
func applyReservation(ctx context.Context, tx TxRepository, m Movement) (StockTransaction, error) {
	if m.Qty == 0 {
		return StockTransaction{}, ErrInvalidQuantity
	}
	rec, err := tx.GetForUpdate(ctx, m.Department, m.DrugID)
	if err != nil {
		return StockTransaction{}, err
	}

	before := rec.ReservedQty
	after := before + m.Qty
	if after < 0 {
		return StockTransaction{}, ErrInsufficientReserve
	}
	if after > rec.TotalQty {
		return StockTransaction{}, ErrInsufficientStock
	}

	if err := tx.UpdateCounters(ctx, rec.ID, rec.TotalQty, after, rec.TotalValue); err != nil {
		return StockTransaction{}, err
	}

	txn := StockTransaction{
		StockID:   rec.ID,
		Type:      m.Type,
		Qty:       m.Qty,
		BeforeQty: before,
		AfterQty:  after,
		Reference: m.Reference,
		ActorID:   m.ActorID,
	}
	id, err := tx.InsertTransaction(ctx, txn)
	if err != nil {
		return StockTransaction{}, err
	}
	txn.ID = id
	return txn, nil
}
