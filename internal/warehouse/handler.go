package warehouse

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumbung-erp/lumbung-erp/internal/platform/httpx"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Handler exposes warehouse inspection and repair endpoints. Stock mutation
// has no direct endpoint: it only happens through purchase transitions.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers warehouse routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/materials", h.handleListMaterials)
	r.Get("/materials/{id}", h.handleGetMaterial)
	r.Post("/warehouse/recalculate", h.handleRecalculate)
	r.Get("/warehouse/consistency", h.handleConsistency)
}

func (h *Handler) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	materials, err := h.service.Materials(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("list materials", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"materials": materials, "total": len(materials)})
}

func (h *Handler) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	m, err := h.service.Material(r.Context(), chi.URLParam(r, "id"), ownerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	summary, err := h.service.RecalculateWAC(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("recalculate WAC", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleConsistency(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	issues, err := h.service.CheckConsistency(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("consistency check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"issues": issues, "total": len(issues)})
}
