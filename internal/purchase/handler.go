package purchase

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lumbung-erp/lumbung-erp/internal/platform/httpx"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Handler exposes purchase endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/purchases", h.handleList)
	r.Post("/purchases", h.handleCreate)
	r.Get("/purchases/{id}", h.handleGet)
	r.Patch("/purchases/{id}/status", h.handleSetStatus)
	r.Delete("/purchases/{id}", h.handleDelete)
}

type lineItemRequest struct {
	MaterialID string  `json:"material_id"`
	Name       string  `json:"name" validate:"required"`
	Category   string  `json:"category"`
	Unit       string  `json:"unit" validate:"required"`
	Qty        float64 `json:"qty" validate:"gt=0"`
	UnitPrice  float64 `json:"unit_price" validate:"gte=0"`
	Subtotal   float64 `json:"subtotal" validate:"gte=0"`
}

type createRequest struct {
	Supplier   string            `json:"supplier" validate:"required"`
	Date       string            `json:"date"`
	Items      []lineItemRequest `json:"items" validate:"dive"`
	TotalValue float64           `json:"total_value" validate:"gte=0"`
	Note       string            `json:"note"`
}

type setStatusRequest struct {
	Status    string `json:"status" validate:"required"`
	ForceSync bool   `json:"force_sync"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	filter := ListFilter{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status filter")
			return
		}
		filter.Status = status
	}
	purchases, total, err := h.service.List(r.Context(), ownerID, filter)
	if err != nil {
		h.logger.Error("list purchases", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchases":  purchases,
		"pagination": shared.NewPagination(limit, offset, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), ownerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	p := Purchase{
		OwnerID:     ownerID,
		SupplierRef: req.Supplier,
		TotalValue:  req.TotalValue,
		Note:        req.Note,
		Status:      StatusPending,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		p.Date = date
	}
	for _, item := range req.Items {
		p.LineItems = append(p.LineItems, LineItem{
			MaterialID: item.MaterialID,
			Name:       item.Name,
			Category:   item.Category,
			Unit:       item.Unit,
			Qty:        item.Qty,
			UnitPrice:  item.UnitPrice,
			Subtotal:   item.Subtotal,
		})
	}

	created, err := h.service.Create(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.SetStatus(r.Context(), TransitionRequest{
		PurchaseID: chi.URLParam(r, "id"),
		OwnerID:    ownerID,
		NewStatus:  Status(req.Status),
		ForceSync:  req.ForceSync,
	})
	if err != nil {
		h.respondTransitionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchase":     result.Purchase,
		"from":         result.From,
		"to":           result.To,
		"sync_applied": result.SyncApplied,
		"no_op":        result.NoOp,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), ownerID); err != nil {
		h.respondTransitionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondTransitionError surfaces sync failures with their compensation
// outcome so callers can tell a clean rollback from a stuck record.
func (h *Handler) respondTransitionError(w http.ResponseWriter, err error) {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		h.logger.Error("stock sync failed",
			slog.String("purchase_id", syncErr.PurchaseID),
			slog.String("compensation", string(syncErr.Compensation)),
			slog.Any("error", syncErr.Err))
		httpx.JSON(w, http.StatusBadGateway, map[string]any{
			"title":        "Stock Sync Failed",
			"status":       http.StatusBadGateway,
			"detail":       syncErr.Error(),
			"purchase_id":  syncErr.PurchaseID,
			"compensation": string(syncErr.Compensation),
		})
		return
	}
	httpx.RespondError(w, err)
}
