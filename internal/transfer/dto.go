package transfer

// CreateRequest represents the submission payload for a new requisition.
type CreateRequest struct {
	Requisition string          `json:"requisition_number" validate:"required,min=3,max=50"`
	ToDept      string          `json:"to_dept" validate:"required,oneof=PHARMACY OPD"`
	Note        *string         `json:"note,omitempty" validate:"omitempty,max=500"`
	Items       []CreateItemReq `json:"items" validate:"required,min=1,dive"`
}

// CreateItemReq represents one requested line.
type CreateItemReq struct {
	DrugID       int64   `json:"drug_id" validate:"required,gt=0"`
	RequestedQty int64   `json:"requested_qty" validate:"required,gt=0"`
	Note         *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// ListFilter filters the requisition list.
type ListFilter struct {
	Status *Status `json:"status,omitempty"`
	Limit  int     `json:"limit" validate:"gte=0,lte=500"`
	Offset int     `json:"offset" validate:"gte=0"`
}

// ListResponse is the list endpoint payload.
type ListResponse struct {
	Transfers []TransferRequest `json:"transfers"`
	Total     int               `json:"total"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
}
