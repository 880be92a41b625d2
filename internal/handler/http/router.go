package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/service"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/health"
	"github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/middleware"
)

// RouterConfig carries the deployment-specific knobs the router needs.
type RouterConfig struct {
	Environment        string
	CORSAllowedOrigins []string
	PprofAllowedCIDRs  []string
}

// NewRouter creates a chi router with all orchestrator routes registered.
func NewRouter(
	workflowService *service.OrchestrationService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Environment:    cfg.Environment,
	}))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(120 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("orchestrator"))
	r.Use(middleware.Tracing("orchestrator"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	// Workflow API endpoints
	workflowHandler := NewWorkflowHandler(workflowService, logger)

	r.Route("/api/v1/workflows", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/provision", workflowHandler.StartProvision)
		r.Post("/deprovision", workflowHandler.StartDeprovision)
		r.Post("/activate-service", workflowHandler.StartActivateService)
		r.Post("/suspend-service", workflowHandler.StartSuspendService)

		r.Get("/", workflowHandler.ListWorkflows)
		// Statistics tolerate staleness up to the cache TTL; let dashboards
		// cache them browser-side too.
		r.With(middleware.CacheControl(30)).Get("/statistics", workflowHandler.GetStatistics)
		r.Get("/{businessID}", workflowHandler.GetWorkflow)
		r.Post("/{businessID}/retry", workflowHandler.RetryWorkflow)
		r.Post("/{businessID}/cancel", workflowHandler.CancelWorkflow)
	})

	return r
}
