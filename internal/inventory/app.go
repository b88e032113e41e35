package inventory

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"Inventory/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	// AllowedOrigin is "*" or a single origin.
	AllowedOrigin string

	// Subscribe serves the long-lived subscriber connection at /ws.
	Subscribe http.Handler

	// PublicDir is served at / when it exists. A missing directory is fine.
	PublicDir string
}

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	r := chi.NewRouter()

	setupMiddleware(r, deps)
	setupMetrics(r, deps)

	s.mount(r)

	if deps.Subscribe != nil {
		r.Handle("/ws", deps.Subscribe)
	}

	setupStatic(r, deps)
	return r
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	r.Use(kit.Logging(deps.Log))
	r.Use(cors.Handler(corsOptions(deps.AllowedOrigin)))
}

func corsOptions(origin string) cors.Options {
	if origin == "" {
		origin = "*"
	}
	return cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service, kit.ChiRoutePatternOrPath))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func setupStatic(r *chi.Mux, deps HTTPDeps) {
	if deps.PublicDir == "" {
		return
	}
	fi, err := os.Stat(deps.PublicDir)
	if err != nil || !fi.IsDir() {
		return
	}

	if deps.Log != nil {
		deps.Log.Info("serving static files", zap.String("dir", deps.PublicDir))
	}
	r.Handle("/*", http.FileServer(http.Dir(deps.PublicDir)))
}
