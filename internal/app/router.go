package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rxstock/rxstock/internal/alerts"
	"github.com/rxstock/rxstock/internal/stock"
	"github.com/rxstock/rxstock/internal/transfer"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	StockHandler    *stock.Handler
	TransferHandler *transfer.Handler
	AlertsHandler   *alerts.Handler
}

// NewRouter constructs the chi.Router with the default middleware stack.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	// Health probe skips the actor middleware so load balancers can reach it.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger: params.Logger,
			Config: params.Config,
		}) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		r.Route("/stock", params.StockHandler.MountRoutes)
		r.Route("/transfers", params.TransferHandler.MountRoutes)
		if params.AlertsHandler != nil {
			r.Route("/alerts", params.AlertsHandler.MountRoutes)
		}
	})

	return r
}
