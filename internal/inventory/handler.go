package inventory

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

// Handler wires HTTP endpoints for stock movements, balances and ledger history.
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

// MountRoutes registers inventory routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.recordMovement)
	r.Get("/balance", h.getBalance)
	r.Get("/ledger", h.listLedger)
}

// MovementRequest represents a standalone movement booking, e.g. an
// adjustment or scrap entry made outside a document workflow.
type MovementRequest struct {
	BranchID    int64           `json:"branch_id,omitempty" validate:"gte=0"`
	WarehouseID int64           `json:"warehouse_id" validate:"required,gt=0"`
	ItemID      int64           `json:"item_id,omitempty" validate:"gte=0"`
	ProductID   int64           `json:"product_id,omitempty" validate:"gte=0"`
	BatchID     int64           `json:"batch_id,omitempty" validate:"gte=0"`
	TxType      TransactionType `json:"tx_type" validate:"required"`
	TxDate      time.Time       `json:"tx_date,omitempty"`
	RefType     string          `json:"ref_type,omitempty" validate:"omitempty,max=50"`
	RefID       string          `json:"ref_id,omitempty" validate:"omitempty,uuid"`
	RefNumber   string          `json:"ref_number,omitempty" validate:"omitempty,max=100"`
	Direction   Direction       `json:"direction" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	UOM         string          `json:"uom,omitempty" validate:"omitempty,max=20"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	SerialNo    string          `json:"serial_no,omitempty" validate:"omitempty,max=100"`
	Narration   string          `json:"narration,omitempty" validate:"omitempty,max=500"`
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing tenant context")
		return
	}

	var req MovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	entry, err := h.service.RecordStandalone(r.Context(), Movement{
		CompanyID:   actor.CompanyID,
		BranchID:    req.BranchID,
		WarehouseID: req.WarehouseID,
		ItemID:      req.ItemID,
		ProductID:   req.ProductID,
		BatchID:     req.BatchID,
		TxType:      req.TxType,
		TxDate:      req.TxDate,
		RefType:     req.RefType,
		RefID:       req.RefID,
		RefNumber:   req.RefNumber,
		Direction:   req.Direction,
		Quantity:    req.Quantity,
		UOM:         req.UOM,
		UnitCost:    req.UnitCost,
		SerialNo:    req.SerialNo,
		Narration:   req.Narration,
		ActorID:     actor.UserID,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing tenant context")
		return
	}
	key := StockKey{
		CompanyID:   actor.CompanyID,
		ItemID:      queryInt64(r, "item_id"),
		ProductID:   queryInt64(r, "product_id"),
		WarehouseID: queryInt64(r, "warehouse_id"),
	}
	balance, err := h.service.GetStockBalance(r.Context(), key)
	if err != nil {
		// A missing balance row is simply zero stock for the key.
		if errors.Is(err, ErrBalanceNotFound) {
			httpx.JSON(w, http.StatusOK, balance)
			return
		}
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) listLedger(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing tenant context")
		return
	}
	filter := EntryFilter{
		CompanyID:   actor.CompanyID,
		WarehouseID: queryInt64(r, "warehouse_id"),
		ItemID:      queryInt64(r, "item_id"),
		ProductID:   queryInt64(r, "product_id"),
		Limit:       int(queryInt64(r, "limit")),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid from date")
			return
		}
		filter.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid to date")
			return
		}
		filter.To = t
	}

	entries, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidMovement):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("inventory operation", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
