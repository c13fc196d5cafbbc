package transfer

import "errors"

// Domain errors for the transfer workflow.
var (
	// ErrNotFound indicates the requisition does not exist.
	ErrNotFound = errors.New("transfer: requisition not found")
	// ErrItemNotFound indicates a payload referenced an unknown line item.
	ErrItemNotFound = errors.New("transfer: line item not found")
	// ErrForbidden indicates the actor's department may not perform the action.
	ErrForbidden = errors.New("transfer: department not allowed for this action")
	// ErrInvalidTransition indicates the action is not valid in the current state.
	ErrInvalidTransition = errors.New("transfer: invalid state transition")
	// ErrInvalidAction indicates an unrecognised action identifier.
	ErrInvalidAction = errors.New("transfer: unknown action")
	// ErrValidation indicates a malformed payload.
	ErrValidation = errors.New("transfer: invalid input")
	// ErrDuplicateRequisition indicates the requisition number is taken.
	ErrDuplicateRequisition = errors.New("transfer: requisition number already exists")
	// ErrSameDepartment indicates source and destination are identical.
	ErrSameDepartment = errors.New("transfer: departments must differ")
)
