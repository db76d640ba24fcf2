package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/lumbung-erp/lumbung-erp/internal/auth"
	"github.com/lumbung-erp/lumbung-erp/internal/purchase"
	"github.com/lumbung-erp/lumbung-erp/internal/suppliers"
	"github.com/lumbung-erp/lumbung-erp/internal/valuation"
	"github.com/lumbung-erp/lumbung-erp/internal/warehouse"
	"github.com/lumbung-erp/lumbung-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	Tokens TokenResolver

	AuthHandler      *auth.Handler
	PurchaseHandler  *purchase.Handler
	WarehouseHandler *warehouse.Handler
	SupplierHandler  *suppliers.Handler
	ValuationHandler *valuation.Handler
	JobsHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: params.Logger, Config: params.Config}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	params.AuthHandler.MountRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(Authenticator(params.Tokens, params.Logger))
		params.PurchaseHandler.MountRoutes(r)
		params.WarehouseHandler.MountRoutes(r)
		params.SupplierHandler.MountRoutes(r)
		if params.ValuationHandler != nil {
			params.ValuationHandler.MountRoutes(r)
		}
		if params.JobsHandler != nil {
			params.JobsHandler.MountRoutes(r)
		}
	})

	return r
}
