package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fiscalis/proposta-bff/internal/config"
	"github.com/fiscalis/proposta-bff/internal/navigator"
	"github.com/fiscalis/proposta-bff/internal/notification"
	"github.com/fiscalis/proposta-bff/internal/observability"
	"github.com/fiscalis/proposta-bff/internal/upstream"
	"github.com/fiscalis/proposta-bff/internal/wizard"
	"github.com/fiscalis/proposta-bff/model"
)

// Upstream is the read surface of the accounting API the handlers expose
// directly, outside the wizard flow.
type Upstream interface {
	ListProposals(ctx context.Context, rctx *model.RequestContext) (*upstream.ProposalListing, error)
	GetProposal(ctx context.Context, rctx *model.RequestContext, id int64) (*model.Proposal, error)
	ListClients(ctx context.Context, rctx *model.RequestContext) ([]model.Client, error)
	ListActivityTypes(ctx context.Context, rctx *model.RequestContext) ([]model.ActivityType, error)
}

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config        *config.Config
	Authenticate  func(http.Handler) http.Handler
	Engine        *wizard.Engine
	Navigator     *navigator.Navigator
	Notifications *notification.Router
	Upstream      Upstream
	Metrics       *observability.Metrics
	Checks        observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes — bypass authentication.
	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Checks))
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	// Authenticated routes — full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	h := &handlers{deps: deps}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Get("/ui/wizard", h.wizardState)
		r.Post("/ui/wizard/start", h.wizardStart)
		r.Post("/ui/wizard/client", h.wizardConfirmClient)
		r.Post("/ui/wizard/tax-config", h.wizardConfirmTaxConfig)
		r.Post("/ui/wizard/services", h.wizardConfirmServices)
		r.Post("/ui/wizard/back", h.wizardBack)
		r.Post("/ui/wizard/cancel", h.wizardCancel)

		r.Get("/ui/proposals", h.listProposals)
		r.Get("/ui/proposals/{proposalId}", h.getProposal)
		r.Get("/ui/clients", h.listClients)
		r.Get("/ui/activity-types", h.listActivityTypes)

		r.Get("/ui/navigation", h.navigationState)
		r.Put("/ui/navigation/current", h.navigationSetPage)
		r.Post("/ui/navigation/intent", h.navigationDeliverIntent)

		r.Get("/ui/notifications", h.notificationsFeed)
		r.Post("/ui/notifications/open", h.notificationsOpen)
		r.Post("/ui/notifications/close", h.notificationsClose)
		r.Post("/ui/notifications/{notificationId}/read", h.notificationsMarkRead)
		r.Post("/ui/notifications/read-all", h.notificationsMarkAllRead)
	})

	return r
}

// handlers bundles the route implementations around the shared dependencies.
type handlers struct {
	deps Dependencies
}
