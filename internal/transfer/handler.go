package transfer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rxstock/rxstock/internal/actors"
	"github.com/rxstock/rxstock/internal/platform/httpx"
	"github.com/rxstock/rxstock/internal/shared"
	"github.com/rxstock/rxstock/internal/stock"
)

// Handler wires HTTP endpoints for the transfer workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the transfer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes. Each workflow action is reachable both
// through the generic action route and a direct alias.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Post("/{id}/actions/{action}", h.dispatch)
	for _, action := range []string{"approve", "prepare", "receive", "cancel", "reject"} {
		r.Post("/{id}/"+action, h.dispatchAction(action))
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tr, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		h.logger.Error("create transfer", slog.Any("error", err), slog.String("requisition", req.Requisition))
		h.respondError(w, err)
		return
	}
	h.logger.Info("transfer created",
		slog.Int64("transfer_id", tr.ID),
		slog.String("requisition", tr.Requisition))
	httpx.JSON(w, http.StatusCreated, tr)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	filter := ListFilter{}
	if s := r.URL.Query().Get("status"); s != "" {
		status := Status(s)
		if !status.IsValid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status")
			return
		}
		filter.Status = &status
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	transfers, total, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.logger.Error("list transfers", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	httpx.JSON(w, http.StatusOK, ListResponse{Transfers: transfers, Total: total, Limit: limit, Offset: filter.Offset})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, ok := actors.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return
	}
	tr, err := h.service.Get(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, chi.URLParam(r, "action"))
}

func (h *Handler) dispatchAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.runAction(w, r, action)
	}
}

func (h *Handler) runAction(w http.ResponseWriter, r *http.Request, action string) {
	actor, ok := actors.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return
	}

	var payload ActionPayload
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
			return
		}
	}
	cmd, err := ParseCommand(action, payload)
	if err != nil {
		h.respondError(w, err)
		return
	}

	tr, err := h.service.Dispatch(r.Context(), id, actor, cmd)
	if err != nil {
		h.logger.Warn("transfer action failed",
			slog.Int64("transfer_id", id),
			slog.String("action", action),
			slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	h.logger.Info("transfer action applied",
		slog.Int64("transfer_id", id),
		slog.String("action", action),
		slog.String("status", string(tr.Status)))
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrDuplicateRequisition), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidAction), errors.Is(err, ErrValidation), errors.Is(err, ErrSameDepartment):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
