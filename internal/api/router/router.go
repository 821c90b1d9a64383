package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/randevu-desk/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/randevu-desk/internal/http/middleware"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	WizardHandler      *handlers.WizardHandler
	CatalogHandler     *handlers.CatalogHandler
	RememberedCustomer *handlers.RememberedCustomerHandler
	Health             http.HandlerFunc
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter

	// DefaultSession serves requests that carry no bearer token.
	DefaultSession tenancy.Session
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.RateLimiter != nil {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		health := cfg.Health
		if health == nil {
			health = handlers.HealthCheck(nil)
		}
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.RememberedCustomer != nil {
			public.Route("/public/{orgID}/remembered-customer", func(r chi.Router) {
				r.Get("/", cfg.RememberedCustomer.Get)
				r.Put("/", cfg.RememberedCustomer.Put)
				r.Delete("/", cfg.RememberedCustomer.Delete)
			})
		}
	})

	// Session-scoped routes
	r.Group(func(desk chi.Router) {
		desk.Use(httpmiddleware.SessionAuth(cfg.DefaultSession, cfg.Logger))
		if cfg.WizardHandler != nil {
			desk.Mount("/wizard", cfg.WizardHandler.Routes())
		}
		if cfg.CatalogHandler != nil {
			desk.Get("/services", cfg.CatalogHandler.ListServices)
			desk.Get("/staff", cfg.CatalogHandler.ListStaff)
		}
	})

	return r
}
