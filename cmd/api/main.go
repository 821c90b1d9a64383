package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/randevu-desk/internal/api/router"
	"github.com/wolfman30/randevu-desk/internal/app/bootstrap"
	appconfig "github.com/wolfman30/randevu-desk/internal/config"
	"github.com/wolfman30/randevu-desk/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/randevu-desk/internal/http/middleware"
	"github.com/wolfman30/randevu-desk/internal/observability/metrics"
	"github.com/wolfman30/randevu-desk/internal/push"
	"github.com/wolfman30/randevu-desk/internal/remember"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

const wizardIdleTimeout = 2 * time.Hour

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load .env:", err)
	}
	cfg := appconfig.Load()

	logger := bootstrap.BuildLogger(cfg)
	logger.Info("starting randevu-desk API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"api_base_url", cfg.APIBaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := bootstrap.ResolveSession(ctx, cfg)
	if err != nil {
		logger.Error("failed to decode session token", "error", err)
		os.Exit(1)
	}
	if session.OrgID == "" {
		logger.Warn("no default session; requests must carry a bearer token")
	}

	metricsHandler, bookingMetrics := setupMetrics()
	client := bootstrap.BuildBookingClient(cfg, session, logger)
	backends := handlers.ClientFactory(client)

	hub := push.NewHub(logger, bookingMetrics)
	wizardHandler := handlers.NewWizardHandler(handlers.WizardHandlerConfig{
		Backends:      backends,
		Waiter:        hub,
		SettleTimeout: cfg.SettleTimeout,
		Metrics:       bookingMetrics,
		Logger:        logger,
	})
	startPush(ctx, cfg, session, hub, wizardHandler, logger)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	var rememberHandler *handlers.RememberedCustomerHandler
	var ping handlers.Pinger
	if redisClient != nil {
		defer redisClient.Close()
		rememberHandler = handlers.NewRememberedCustomerHandler(remember.NewStore(redisClient, cfg.RememberTTL), logger)
		ping = redisPinger(redisClient)
	} else {
		logger.Warn("REDIS_ADDR not set or unreachable; remembered customers disabled")
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.RunCleanup(ctx)

	r := router.New(&router.Config{
		Logger:             logger,
		WizardHandler:      wizardHandler,
		CatalogHandler:     handlers.NewCatalogHandler(backends, logger),
		RememberedCustomer: rememberHandler,
		Health:             handlers.HealthCheck(ping),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		DefaultSession:     session,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.APITimeout + cfg.SettleTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// setupMetrics registers the booking metrics plus the Go runtime collectors on
// a private registry and returns its scrape handler.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// startPush runs the push listener for the default session's organization and
// feeds its events to the open wizards. Idle wizards are evicted on the same
// schedule.
func startPush(ctx context.Context, cfg *appconfig.Config, session tenancy.Session, hub *push.Hub, wizards *handlers.WizardHandler, logger *logging.Logger) {
	go evictIdleWizards(ctx, wizards, logger)

	if cfg.PushURL == "" || session.OrgID == "" {
		logger.Info("push channel disabled", "push_url_set", cfg.PushURL != "", "org_id", session.OrgID)
		return
	}
	listener := push.NewListener(cfg.PushURL, session, hub, logger).WithReconnectDelay(cfg.PushReconnectDelay)
	go listener.Run(ctx)
	go wizards.Watch(ctx, hub, session.OrgID)
}

func evictIdleWizards(ctx context.Context, wizards *handlers.WizardHandler, logger *logging.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := wizards.EvictIdle(wizardIdleTimeout); n > 0 {
				logger.Info("evicted idle wizards", "count", n)
			}
		}
	}
}

func redisPinger(client *redis.Client) handlers.Pinger {
	return func(ctx context.Context) error { return client.Ping(ctx).Err() }
}
