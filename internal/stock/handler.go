package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rxstock/rxstock/internal/actors"
	"github.com/rxstock/rxstock/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{drugID}", h.show)
	r.Get("/{drugID}/transactions", h.history)
	r.Post("/adjustments", h.adjust)
	r.Post("/reservations", h.reserve)
	r.Post("/reservations/release", h.release)
}

type adjustmentRequest struct {
	Department string  `json:"department" validate:"omitempty,oneof=PHARMACY OPD"`
	DrugID     int64   `json:"drug_id" validate:"required,gt=0"`
	Qty        int64   `json:"qty" validate:"required"`
	UnitCost   float64 `json:"unit_cost" validate:"gte=0"`
	Reason     string  `json:"reason" validate:"required,min=3,max=500"`
	Reference  string  `json:"reference" validate:"omitempty,max=100"`
}

type reservationRequest struct {
	Department string `json:"department" validate:"omitempty,oneof=PHARMACY OPD"`
	DrugID     int64  `json:"drug_id" validate:"required,gt=0"`
	Qty        int64  `json:"qty" validate:"required,gt=0"`
	Reference  string `json:"reference" validate:"omitempty,max=100"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	dept := h.scopedDepartment(actor, r.URL.Query().Get("department"))
	if !dept.IsValid() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "department outside actor scope")
		return
	}
	records, err := h.service.ListStock(r.Context(), dept)
	if err != nil {
		h.logger.Error("list stock", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"department": dept, "records": records})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	drugID, err := strconv.ParseInt(chi.URLParam(r, "drugID"), 10, 64)
	if err != nil || drugID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid drug id")
		return
	}
	dept := h.scopedDepartment(actor, r.URL.Query().Get("department"))
	if !dept.IsValid() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "department outside actor scope")
		return
	}
	rec, err := h.service.GetStock(r.Context(), dept, drugID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	drugID, err := strconv.ParseInt(chi.URLParam(r, "drugID"), 10, 64)
	if err != nil || drugID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid drug id")
		return
	}
	dept := h.scopedDepartment(actor, r.URL.Query().Get("department"))
	if !dept.IsValid() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "department outside actor scope")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txns, err := h.service.History(r.Context(), dept, drugID, limit)
	if err != nil {
		h.logger.Error("stock history", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dept := h.scopedDepartment(actor, req.Department)
	if !dept.IsValid() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "department outside actor scope")
		return
	}
	txn, err := h.service.Adjust(r.Context(), AdjustmentInput{
		Department: dept,
		DrugID:     req.DrugID,
		Qty:        req.Qty,
		UnitCost:   req.UnitCost,
		Reason:     req.Reason,
		Reference:  req.Reference,
		ActorID:    actor.ID,
	})
	if err != nil {
		h.logger.Error("post adjustment", slog.Any("error", err), slog.Int64("drug_id", req.DrugID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	h.shiftReservation(w, r, true)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	h.shiftReservation(w, r, false)
}

func (h *Handler) shiftReservation(w http.ResponseWriter, r *http.Request, reserve bool) {
	actor, ok := actors.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req reservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dept := h.scopedDepartment(actor, req.Department)
	if !dept.IsValid() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "department outside actor scope")
		return
	}
	input := ReservationInput{Department: dept, DrugID: req.DrugID, Qty: req.Qty, Reference: req.Reference, ActorID: actor.ID}
	var (
		txn StockTransaction
		err error
	)
	if reserve {
		txn, err = h.service.Reserve(r.Context(), input)
	} else {
		txn, err = h.service.Release(r.Context(), input)
	}
	if err != nil {
		h.logger.Error("shift reservation", slog.Any("error", err), slog.Bool("reserve", reserve))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

// scopedDepartment returns the department an actor may act on. Admin-capable
// actors may target any department; everyone else is pinned to their own.
func (h *Handler) scopedDepartment(actor actors.Actor, requested string) actors.Department {
	if requested == "" {
		return actor.Department
	}
	dept := actors.Department(requested)
	if !dept.IsValid() {
		return ""
	}
	if dept != actor.Department && !actor.Admin {
		return ""
	}
	return dept
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrStockNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInsufficientReserve):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost), errors.Is(err, ErrReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
