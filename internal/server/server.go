package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/chatfront/internal/api"
	"github.com/gaspardpetit/chatfront/internal/backend"
	"github.com/gaspardpetit/chatfront/internal/config"
	"github.com/gaspardpetit/chatfront/internal/inflight"
	"github.com/gaspardpetit/chatfront/internal/metrics"
	"github.com/gaspardpetit/chatfront/internal/session"
	"github.com/gaspardpetit/chatfront/internal/web"
)

// Deps are the collaborators the router is assembled from.
type Deps struct {
	Backend  api.Backend
	Sessions *session.Manager
	// Renderer defaults to the embedded templates.
	Renderer web.Renderer
	// Streams defaults to the process-wide stream counter.
	Streams *inflight.Counter
}

// BackendTimeouts maps the configured timeouts onto the backend client tiers.
func BackendTimeouts(cfg config.ProxyConfig) backend.Timeouts {
	return backend.Timeouts{
		Health:   cfg.HealthTimeout,
		Request:  cfg.RequestTimeout,
		History:  cfg.HistoryTimeout,
		Generate: cfg.GenerateTimeout,
		Stream:   cfg.StreamTimeout,
	}
}

// SessionOptions maps the configured cookie settings onto session options.
func SessionOptions(cfg config.ProxyConfig) session.Options {
	return session.Options{
		CookieName: cfg.CookieName,
		Secret:     cfg.SessionSecret,
		TTL:        cfg.SessionTTL,
		Secure:     cfg.CookieSecure,
	}
}

// New constructs the HTTP handler for the server. Metrics collectors are
// registered on a fresh registry that also becomes the default gatherer.
func New(cfg config.ProxyConfig, d Deps) (http.Handler, error) {
	if d.Renderer == nil {
		tr, err := web.NewTemplateRenderer()
		if err != nil {
			return nil, err
		}
		d.Renderer = tr
	}
	if d.Streams == nil {
		d.Streams = inflight.Streams()
	}

	r := chi.NewRouter()
	if len(cfg.Origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		}))
	}
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}

	preg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = preg
	prometheus.DefaultGatherer = preg
	metrics.Register(preg)

	h := &api.Handlers{
		Backend:      d.Backend,
		Sessions:     d.Sessions,
		DefaultModel: cfg.DefaultModel,
		Streams:      d.Streams,
	}
	pages := &web.Pages{
		Backend:      d.Backend,
		Sessions:     d.Sessions,
		Renderer:     d.Renderer,
		DefaultModel: cfg.DefaultModel,
	}

	r.Get("/health", h.Health)
	r.Get("/healthz", api.Healthz)
	r.Route("/api", h.Routes)
	pages.Routes(r)

	if cfg.SharedMetricsPort() {
		r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
	}
	return r, nil
}
