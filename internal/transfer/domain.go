// Package transfer implements the inter-department requisition workflow: a
// four-state approval/dispense/receive pipeline whose final receipt mutates
// both department ledgers atomically.
//
// Department naming follows the paper requisition form: FromDept is the
// department that raised the requisition and ultimately RECEIVES the stock;
// ToDept is the department the requisition is addressed to, which approves,
// prepares and gives up the stock.
package transfer

import (
	"time"

	"github.com/rxstock/rxstock/internal/actors"
)

// Status represents the requisition lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"   // submitted, waiting for approval
	StatusApproved  Status = "APPROVED"  // approved by the supplying department
	StatusPrepared  Status = "PREPARED"  // dispensed quantities and lots recorded
	StatusDelivered Status = "DELIVERED" // received, ledgers updated; terminal
	StatusCancelled Status = "CANCELLED" // rejected or withdrawn; terminal
)

// IsValid checks if the status is a known state.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPrepared, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanApprove checks if the requisition can be approved.
func (s Status) CanApprove() bool { return s == StatusPending }

// CanPrepare checks if the requisition can be prepared for dispatch.
func (s Status) CanPrepare() bool { return s == StatusApproved }

// CanReceive checks if the requisition can be received.
func (s Status) CanReceive() bool { return s == StatusPrepared }

// CanCancel checks if the requisition can be cancelled. Only a pending
// requisition may be withdrawn; prepared stock must complete the pipeline.
func (s Status) CanCancel() bool { return s == StatusPending }

// TransferRequest is the workflow aggregate.
type TransferRequest struct {
	ID          int64             `json:"id"`
	Requisition string            `json:"requisition_number"`
	FromDept    actors.Department `json:"from_dept"`
	ToDept      actors.Department `json:"to_dept"`
	Status      Status            `json:"status"`
	RequesterID int64             `json:"requester_id"`
	ApproverID  *int64            `json:"approver_id,omitempty"`
	DispenserID *int64            `json:"dispenser_id,omitempty"`
	ReceiverID  *int64            `json:"receiver_id,omitempty"`
	Note        *string           `json:"note,omitempty"`
	TotalItems  int               `json:"total_items"`
	TotalValue  float64           `json:"total_value"`
	RequestedAt time.Time         `json:"requested_at"`
	ApprovedAt  *time.Time        `json:"approved_at,omitempty"`
	DispensedAt *time.Time        `json:"dispensed_at,omitempty"`
	ReceivedAt  *time.Time        `json:"received_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Items       []TransferItem    `json:"items,omitempty"`
}

// TransferItem is one drug line inside a requisition, tracked through its own
// quantity fields at each stage.
type TransferItem struct {
	ID           int64      `json:"id"`
	TransferID   int64      `json:"transfer_id"`
	DrugID       int64      `json:"drug_id"`
	RequestedQty int64      `json:"requested_qty"`
	ApprovedQty  *int64     `json:"approved_qty,omitempty"`
	DispensedQty *int64     `json:"dispensed_qty,omitempty"`
	LotNumber    *string    `json:"lot_number,omitempty"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	Manufacturer *string    `json:"manufacturer,omitempty"`
	UnitPrice    *float64   `json:"unit_price,omitempty"`
	ReceivedQty  *int64     `json:"received_qty,omitempty"`
	LineValue    float64    `json:"line_value"`
	Note         *string    `json:"note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
