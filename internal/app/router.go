package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/inventory/batches"
	"github.com/meridian-erp/meridian-erp/internal/inventory/transfers"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/items"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Metrics          *observability.Metrics
	InventoryHandler *inventory.Handler
	BatchHandler     *batches.Handler
	TransferHandler  *transfers.Handler
	ItemHandler      *items.Handler
	ProductHandler   *products.Handler
	WarehouseHandler *warehouses.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/inventory", func(r chi.Router) {
		params.InventoryHandler.MountRoutes(r)
		r.Route("/batches", params.BatchHandler.MountRoutes)
		r.Route("/transfers", params.TransferHandler.MountRoutes)
	})
	r.Route("/masterdata", func(r chi.Router) {
		r.Route("/items", params.ItemHandler.MountRoutes)
		r.Route("/products", params.ProductHandler.MountRoutes)
		r.Route("/warehouses", params.WarehouseHandler.MountRoutes)
	})

	return r
}
