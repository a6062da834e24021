package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/vagn/internal"
	"github.com/dukerupert/vagn/internal/billing"
	"github.com/dukerupert/vagn/internal/cookie"
	"github.com/dukerupert/vagn/internal/events"
	"github.com/dukerupert/vagn/internal/handler/api"
	"github.com/dukerupert/vagn/internal/handler/webhook"
	"github.com/dukerupert/vagn/internal/jobs"
	"github.com/dukerupert/vagn/internal/middleware"
	"github.com/dukerupert/vagn/internal/repository"
	"github.com/dukerupert/vagn/internal/router"
	"github.com/dukerupert/vagn/internal/routes"
	"github.com/dukerupert/vagn/internal/service"
	"github.com/dukerupert/vagn/internal/telemetry"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Initialize repository
	repo := repository.New(pool)

	// Initialize event publisher. Without NATS_URL events are dropped; the
	// engine works fine without a broker.
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NatsUrl != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NatsUrl)
		if err != nil {
			return fmt.Errorf("failed to connect event publisher: %w", err)
		}
		publisher = natsPublisher
		logger.Info("Event publisher connected", "url", cfg.NatsUrl)
	} else {
		logger.Info("NATS_URL not set, event publishing disabled")
	}
	defer publisher.Close()

	// Initialize metrics
	businessMetrics := telemetry.NewBusinessMetrics("vagn", prometheus.DefaultRegisterer)
	httpMetrics := middleware.NewMetrics("vagn", prometheus.DefaultRegisterer)

	// Initialize Stripe billing provider
	billingProvider, err := billing.NewStripeProvider(cfg.Stripe.SecretKey)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe provider: %w", err)
	}
	logger.Info("Stripe billing provider initialized", "test_mode", billingProvider.IsTestMode())

	// Initialize services
	cartService := service.NewCartService(repo, publisher, businessMetrics, logger, cfg.Cart.AnonymousTTL)
	checkoutService := service.NewCheckoutService(cartService, repo, billingProvider, publisher, businessMetrics, logger)

	// Request validation
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Build route dependencies
	apiDeps := routes.APIDeps{
		CartHandler:     api.NewCartHandler(cartService, validate, logger),
		CheckoutHandler: api.NewCheckoutHandler(checkoutService, validate, logger),
	}

	stripeWebhookHandler := webhook.NewStripeHandler(billingProvider, checkoutService, businessMetrics, logger, cfg.Stripe.WebhookSecret)
	webhookDeps := routes.WebhookDeps{
		StripeHandler: stripeWebhookHandler.HandleWebhook,
	}

	// Cookie configuration for guest sessions
	cookies := cookie.NewConfig(cfg.Env == "prod")

	// Create router and register routes
	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		httpMetrics.Middleware,
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		middleware.Timeout(middleware.DefaultTimeout),
		router.Logger(logger),
	)

	// Metrics endpoint (protect via firewall in production)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		httpMetrics.Handler().ServeHTTP(w, req)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Webhooks authenticate by signature, not identity.
	routes.RegisterWebhookRoutes(r, webhookDeps)

	// Everything under /api resolves a cart owner first.
	apiRouter := r.Group(
		middleware.Identity(cookies),
		middleware.WithRequestLogger(logger),
	)
	routes.RegisterAPIRoutes(apiRouter, apiDeps)

	// Start the expired-cart sweeper
	if cfg.Cart.SweepInterval > 0 {
		sweeper := jobs.NewSweeper(repo, logger, cfg.Cart.SweepInterval)
		go sweeper.Run(ctx)
	}

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), middleware.DefaultTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}()

	logger.Info("Starting server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
