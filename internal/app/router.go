package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/inventra/inventra/internal/audit"
	"github.com/inventra/inventra/internal/auth"
	"github.com/inventra/inventra/internal/customers"
	"github.com/inventra/inventra/internal/dashboard"
	"github.com/inventra/inventra/internal/inventory"
	"github.com/inventra/inventra/internal/notifications"
	"github.com/inventra/inventra/internal/observability"
	"github.com/inventra/inventra/internal/orders"
	"github.com/inventra/inventra/internal/platform/httpx"
	"github.com/inventra/inventra/internal/products"
	"github.com/inventra/inventra/internal/redirection"
	"github.com/inventra/inventra/internal/users"
	"github.com/inventra/inventra/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	// Authenticate resolves the bearer token into a principal; see auth.Service.Middleware.
	Authenticate func(http.Handler) http.Handler

	AuthHandler          *auth.Handler
	OrdersHandler        *orders.Handler
	InventoryHandler     *inventory.Handler
	ProductsHandler      *products.Handler
	CustomersHandler     *customers.Handler
	UsersHandler         *users.Handler
	NotificationsHandler *notifications.Handler
	DashboardHandler     *dashboard.Handler
	AuditHandler         *audit.Handler
	RedirectionHandler   *redirection.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router serving the JSON API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:       params.Logger,
		Config:       params.Config,
		Metrics:      params.Metrics,
		Authenticate: params.Authenticate,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Server-sent events outlive the request timeout.
		if params.NotificationsHandler != nil {
			r.Route("/notifications", params.NotificationsHandler.MountRoutes)
		}

		r.Group(func(r chi.Router) {
			r.Use(requestTimeout(params.Config))
			if params.AuthHandler != nil {
				r.Route("/auth", params.AuthHandler.MountRoutes)
			}
			if params.OrdersHandler != nil {
				r.Route("/orders", params.OrdersHandler.MountRoutes)
			}
			if params.InventoryHandler != nil {
				r.Route("/inventory", params.InventoryHandler.MountRoutes)
			}
			if params.ProductsHandler != nil {
				r.Route("/products", params.ProductsHandler.MountRoutes)
			}
			if params.CustomersHandler != nil {
				r.Route("/customers", params.CustomersHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.DashboardHandler != nil {
				r.Route("/dashboard", params.DashboardHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			if params.RedirectionHandler != nil {
				r.Route("/redirection", params.RedirectionHandler.MountRoutes)
			}
		})
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}
