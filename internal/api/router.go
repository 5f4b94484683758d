package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api/handlers"
	mw "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api/middleware"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/metrics"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/services"
)

type Dependencies struct {
	Deployments services.DeploymentService
	Readiness   map[string]handlers.ReadinessCheck
	RateLimiter *mw.RateLimiter
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics; nil leaves the endpoint off.
	Gatherer prometheus.Gatherer
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging(dep.Metrics))
	r.Use(mw.CORS)
	if dep.RateLimiter != nil {
		r.Use(dep.RateLimiter.Handler)
	}
	r.Use(chimid.Compress(5))

	hh := handlers.NewHealthHandler(dep.Readiness)
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)
	if dep.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(dep.Gatherer, promhttp.HandlerOpts{}))
	}

	th := handlers.NewTemplatesHandler(dep.Deployments)
	dh := handlers.NewDeploymentsHandler(dep.Deployments)

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/templates", func(tr chi.Router) {
			tr.Get("/", th.List)
			tr.Get("/{id}", th.Get)
		})

		api.Route("/deployments", func(dr chi.Router) {
			dr.Get("/", dh.List)
			dr.Post("/", dh.Create)
			dr.Route("/{id}", func(one chi.Router) {
				one.Get("/", dh.Get)
				one.Patch("/config", dh.UpdateConfig)
				one.Post("/redeploy", dh.Redeploy)
				one.Post("/suspend", dh.Suspend)
				one.Post("/activate", dh.Activate)
				one.Get("/logs", dh.Logs)
				one.Get("/health", dh.Health)
			})
		})
	})

	return r
}
