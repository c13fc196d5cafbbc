// Package stock maintains the per-department drug ledger: one StockRecord per
// (drug, department) pair and an append-only StockTransaction trail. Quantity
// and value of a record only ever change together with a transaction append,
// inside the same database transaction.
package stock

import (
	"errors"
	"time"

	"github.com/rxstock/rxstock/internal/actors"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TypeReceive is an external inbound movement (supplier delivery).
	TypeReceive TransactionType = "RECEIVE"
	// TypeDispense is an external outbound movement (patient dispensing).
	TypeDispense TransactionType = "DISPENSE"
	// TypeTransferIn credits stock arriving from another department.
	TypeTransferIn TransactionType = "TRANSFER_IN"
	// TypeTransferOut debits stock leaving for another department.
	TypeTransferOut TransactionType = "TRANSFER_OUT"
	// TypeAdjustIncrease is a manual upward correction.
	TypeAdjustIncrease TransactionType = "ADJUST_INCREASE"
	// TypeAdjustDecrease is a manual downward correction.
	TypeAdjustDecrease TransactionType = "ADJUST_DECREASE"
	// TypeReserve earmarks quantity without moving it.
	TypeReserve TransactionType = "RESERVE"
	// TypeUnreserve releases a reservation.
	TypeUnreserve TransactionType = "UNRESERVE"
)

// MovesQuantity reports whether the type mutates TotalQty. RESERVE/UNRESERVE
// entries track the reserved counter instead; their before/after fields capture
// ReservedQty and they are excluded from quantity reconciliation.
func (t TransactionType) MovesQuantity() bool {
	return t != TypeReserve && t != TypeUnreserve
}

// DefaultMinimumQty is the reorder threshold assigned to lazily created records.
const DefaultMinimumQty = 10

// StockRecord is the current quantity and valuation of one drug within one
// department. Created lazily on the first movement into a department and never
// hard-deleted, only zeroed.
type StockRecord struct {
	ID          int64             `json:"id"`
	DrugID      int64             `json:"drug_id"`
	Department  actors.Department `json:"department"`
	TotalQty    int64             `json:"total_qty"`
	ReservedQty int64             `json:"reserved_qty"`
	MinimumQty  int64             `json:"minimum_qty"`
	TotalValue  float64           `json:"total_value"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Available is the quantity not held by reservations.
func (r StockRecord) Available() int64 {
	return r.TotalQty - r.ReservedQty
}

// BelowMinimum reports whether available stock sits under the reorder threshold.
func (r StockRecord) BelowMinimum() bool {
	return r.Available() < r.MinimumQty
}

// StockTransaction is one immutable audit entry. AfterQty-BeforeQty == Qty
// always holds; for reserve kinds the counters refer to ReservedQty.
type StockTransaction struct {
	ID         int64           `json:"id"`
	StockID    int64           `json:"stock_id"`
	Type       TransactionType `json:"type"`
	Qty        int64           `json:"qty"`
	BeforeQty  int64           `json:"before_qty"`
	AfterQty   int64           `json:"after_qty"`
	UnitCost   float64         `json:"unit_cost"`
	TotalCost  float64         `json:"total_cost"`
	Reference  string          `json:"reference"`
	TransferID *int64          `json:"transfer_id,omitempty"`
	ActorID    int64           `json:"actor_id"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Movement describes one requested ledger mutation. Qty is signed: positive
// credits, negative debits.
type Movement struct {
	Department      actors.Department
	DrugID          int64
	Qty             int64
	Type            TransactionType
	UnitCost        float64
	Reference       string
	TransferID      *int64
	ActorID         int64
	CreateIfMissing bool
	DefaultMinimum  int64
}

// AdjustmentInput describes a direct stock adjustment outside the transfer flow.
type AdjustmentInput struct {
	Department actors.Department
	DrugID     int64
	Qty        int64
	UnitCost   float64
	Reason     string
	Reference  string
	ActorID    int64
}

// ReservationInput describes a reserve or release request.
type ReservationInput struct {
	Department actors.Department
	DrugID     int64
	Qty        int64
	Reference  string
	ActorID    int64
}

var (
	// ErrStockNotFound indicates no record exists for the drug/department pair.
	ErrStockNotFound = errors.New("stock: record not found")
	// ErrInsufficientStock indicates the movement would drive quantity negative.
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	// ErrInsufficientReserve indicates a release larger than the reservation.
	ErrInsufficientReserve = errors.New("stock: insufficient reserved quantity")
	// ErrInvalidQuantity indicates a zero or malformed quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be non zero")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("stock: unit cost must be >= 0")
	// ErrReasonRequired indicates a missing adjustment reason.
	ErrReasonRequired = errors.New("stock: adjustment reason required")
)
