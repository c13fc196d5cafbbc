package transfer

import (
	"fmt"
	"time"
)

// Command is a closed set of workflow actions. Each variant carries exactly the
// payload its transition needs, so the dispatcher switches exhaustively over
// types instead of comparing action strings.
type Command interface {
	// Action returns the wire name of the command.
	Action() string
	isCommand()
}

// ApproveCommand moves PENDING → APPROVED. Line overrides are optional; items
// without an override are approved at their requested quantity.
type ApproveCommand struct {
	Note  string
	Items []ApproveItem
}

// ApproveItem overrides the approved quantity of one line.
type ApproveItem struct {
	ItemID      int64
	ApprovedQty int64
}

// PrepareCommand moves APPROVED → PREPARED, recording dispensed quantities and
// lot traceability per line.
type PrepareCommand struct {
	Items []PrepareItem
}

// PrepareItem carries the dispensing details of one line.
type PrepareItem struct {
	ItemID       int64
	DispensedQty int64
	LotNumber    string
	ExpiryDate   *time.Time
	Manufacturer string
	UnitPrice    float64
}

// ReceiveCommand moves PREPARED → DELIVERED and settles both ledgers.
type ReceiveCommand struct {
	Note  string
	Items []ReceiveItem
}

// ReceiveItem carries the received quantity of one line.
type ReceiveItem struct {
	ItemID      int64
	ReceivedQty int64
}

// CancelCommand moves PENDING → CANCELLED.
type CancelCommand struct {
	Note string
}

func (ApproveCommand) Action() string { return "approve" }
func (PrepareCommand) Action() string { return "prepare" }
func (ReceiveCommand) Action() string { return "receive" }
func (CancelCommand) Action() string  { return "cancel" }

func (ApproveCommand) isCommand() {}
func (PrepareCommand) isCommand() {}
func (ReceiveCommand) isCommand() {}
func (CancelCommand) isCommand()  {}

// ActionPayload is the wire shape accepted by the generic action endpoint.
// Which fields are consulted depends on the action.
type ActionPayload struct {
	Note  string              `json:"note"`
	Items []ActionItemPayload `json:"items"`
}

// ActionItemPayload carries per-line values for whichever action is invoked.
type ActionItemPayload struct {
	ItemID       int64      `json:"item_id"`
	ApprovedQty  *int64     `json:"approved_qty,omitempty"`
	DispensedQty *int64     `json:"dispensed_qty,omitempty"`
	LotNumber    *string    `json:"lot_number,omitempty"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	Manufacturer *string    `json:"manufacturer,omitempty"`
	UnitPrice    *float64   `json:"unit_price,omitempty"`
	ReceivedQty  *int64     `json:"received_qty,omitempty"`
}

// ParseCommand is the single string→variant boundary. Unknown actions fail with
// ErrInvalidAction; "reject" is accepted as an alias for cancel.
func ParseCommand(action string, payload ActionPayload) (Command, error) {
	switch action {
	case "approve":
		cmd := ApproveCommand{Note: payload.Note}
		for _, item := range payload.Items {
			if item.ItemID <= 0 || item.ApprovedQty == nil {
				return nil, fmt.Errorf("%w: approve items need item_id and approved_qty", ErrValidation)
			}
			cmd.Items = append(cmd.Items, ApproveItem{ItemID: item.ItemID, ApprovedQty: *item.ApprovedQty})
		}
		return cmd, nil
	case "prepare":
		cmd := PrepareCommand{}
		for _, item := range payload.Items {
			if item.ItemID <= 0 || item.DispensedQty == nil || item.UnitPrice == nil {
				return nil, fmt.Errorf("%w: prepare items need item_id, dispensed_qty and unit_price", ErrValidation)
			}
			line := PrepareItem{
				ItemID:       item.ItemID,
				DispensedQty: *item.DispensedQty,
				ExpiryDate:   item.ExpiryDate,
				UnitPrice:    *item.UnitPrice,
			}
			if item.LotNumber != nil {
				line.LotNumber = *item.LotNumber
			}
			if item.Manufacturer != nil {
				line.Manufacturer = *item.Manufacturer
			}
			cmd.Items = append(cmd.Items, line)
		}
		return cmd, nil
	case "receive":
		cmd := ReceiveCommand{Note: payload.Note}
		for _, item := range payload.Items {
			if item.ItemID <= 0 || item.ReceivedQty == nil {
				return nil, fmt.Errorf("%w: receive items need item_id and received_qty", ErrValidation)
			}
			cmd.Items = append(cmd.Items, ReceiveItem{ItemID: item.ItemID, ReceivedQty: *item.ReceivedQty})
		}
		return cmd, nil
	case "cancel", "reject":
		return CancelCommand{Note: payload.Note}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}
