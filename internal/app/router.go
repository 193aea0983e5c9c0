package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/capline-erp/capline/internal/audit"
	"github.com/capline-erp/capline/internal/auth"
	"github.com/capline-erp/capline/internal/budget"
	"github.com/capline-erp/capline/internal/execution"
	"github.com/capline-erp/capline/internal/grants"
	"github.com/capline-erp/capline/internal/groups"
	"github.com/capline-erp/capline/internal/observability"
	"github.com/capline-erp/capline/internal/resources"
	"github.com/capline-erp/capline/internal/shared"
	"github.com/capline-erp/capline/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics

	AuthService *auth.Service

	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	GroupsHandler    *groups.Handler
	BudgetHandler    *budget.Handler
	ExecutionHandler *execution.Handler
	ResourcesHandler *resources.Handler
	GrantsHandler    *grants.Handler
	AuditHandler     *audit.Handler
}

// NewRouter constructs the chi.Router with the full API surface.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(auth.Identity(params.Logger, params.AuthService))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	params.UsersHandler.MountRoutes(r)
	params.GroupsHandler.MountRoutes(r)
	params.BudgetHandler.MountRoutes(r)
	params.ExecutionHandler.MountRoutes(r)
	params.ResourcesHandler.MountRoutes(r)
	params.GrantsHandler.MountRoutes(r)
	params.AuditHandler.MountRoutes(r)

	return r
}
