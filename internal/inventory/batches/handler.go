package batches

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for batch tracking and FEFO previews.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers batch routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Post("/{id}/adjust", h.adjust)
	r.Post("/{id}/status", h.changeStatus)
	r.Get("/fefo-plan", h.fefoPlan)
}

// CreateBatchRequest registers a new batch for an item.
type CreateBatchRequest struct {
	ItemID      int64           `json:"item_id" validate:"required,gt=0"`
	BatchNumber string          `json:"batch_number" validate:"required,max=100"`
	MfgDate     time.Time       `json:"mfg_date,omitempty"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
	InitialQty  decimal.Decimal `json:"initial_qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// AdjustRequest applies a quantity delta outside a movement unit of work.
type AdjustRequest struct {
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
	Direction Direction       `json:"direction" validate:"required,oneof=IN OUT"`
}

// StatusRequest applies an explicit operator status change.
type StatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing tenant context")
		return
	}
	var req CreateBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	batch, err := h.service.Create(r.Context(), Batch{
		CompanyID:   actor.CompanyID,
		ItemID:      req.ItemID,
		BatchNumber: req.BatchNumber,
		MfgDate:     req.MfgDate,
		ExpiryDate:  req.ExpiryDate,
		InitialQty:  req.InitialQty,
		UnitCost:    req.UnitCost,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	batch, err := h.service.Get(r.Context(), actor.CompanyID, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req AdjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	batch, err := h.service.AdjustStandalone(r.Context(), actor.CompanyID, id, req.Quantity, req.Direction)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	batch, err := h.service.ChangeStatus(r.Context(), actor.CompanyID, id, req.Status)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) fefoPlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing tenant context")
		return
	}
	itemID, _ := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)
	need, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quantity")
		return
	}
	plan, err := h.service.PlanFEFO(r.Context(), actor.CompanyID, itemID, need)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (shared.Actor, int64, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing tenant context")
		return shared.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid batch id")
		return shared.Actor{}, 0, false
	}
	return actor, id, true
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBatchNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateBatchNumber):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInsufficientQuantity), errors.Is(err, ErrInvalidStatusChange):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, shared.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("batch operation", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
