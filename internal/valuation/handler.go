package valuation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumbung-erp/lumbung-erp/internal/platform/httpx"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Handler exposes the valuation endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers valuation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/valuation", h.handleSummary)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := shared.OwnerFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	summary, err := h.service.Summary(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("valuation summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
