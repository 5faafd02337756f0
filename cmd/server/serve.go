package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/example/phonestore/internal/audit"
	"github.com/example/phonestore/internal/cache"
	"github.com/example/phonestore/internal/config"
	"github.com/example/phonestore/internal/database"
	"github.com/example/phonestore/internal/handlers"
	"github.com/example/phonestore/internal/logging"
	"github.com/example/phonestore/internal/middleware"
	"github.com/example/phonestore/internal/observability"
	"github.com/example/phonestore/internal/routes"
	"github.com/example/phonestore/internal/services"
)

const (
	shutdownTimeout = 10 * time.Second
	notifyTimeout   = 15 * time.Second
)

func newServeCommand() *cobra.Command {
	var noMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, cfg.LogFormat)
			return serve(cmd.Context(), cfg, !noMigrate)
		},
	}

	cmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "skip schema migration on startup")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, migrate bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, version)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}

	db, err := database.Connect(cfg.DatabaseURL, database.Options{Debug: cfg.DBDebug, Migrate: migrate})
	if err != nil {
		return err
	}

	catalogCache, closeCache := openCache(ctx, cfg.Redis)
	defer closeCache()
	recorder, closeAudit := openAudit(ctx, cfg.Mongo)
	defer closeAudit()

	notifiers := services.MultiNotifier{services.LogNotifier{}}
	if tg := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat); tg.Enabled() {
		notifiers = append(notifiers, tg)
	}
	dispatcher := services.NewDispatcher(notifiers, notifyTimeout)

	var ranker services.Ranker
	if cfg.AI.APIKey != "" {
		ranker = services.NewOpenAIRanker(cfg.AI)
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, recommendations will fail")
	}

	catalog := services.NewCatalogService(db, catalogCache, cfg.Redis.TTL)
	orders := services.NewOrderService(db, dispatcher, recorder)
	orders.Products = catalog
	reviews := services.NewReviewService(db)
	reviews.Products = catalog

	app := newApp(cfg)
	routes.Register(app, cfg, routes.Services{
		DB:              db,
		Users:           services.NewUserService(db, cfg.JWTSecret, cfg.TokenExpires),
		Catalog:         catalog,
		Carts:           services.NewCartService(db),
		Orders:          orders,
		Reviews:         reviews,
		Recommendations: services.NewRecommendationService(db, ranker, cfg.AI.MaxCandidates),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.AppPort).Str("version", version).Msg("starting server")
		errCh <- app.Listen(":" + cfg.AppPort)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		err = app.ShutdownWithTimeout(shutdownTimeout)
	}

	dispatcher.Wait()
	tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if terr := shutdownTracing(tctx); terr != nil {
		log.Warn().Err(terr).Msg("tracer shutdown")
	}
	return err
}

func newApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    4 * 1024 * 1024,
	})

	app.Use(requestid.New())
	app.Use(middleware.AccessLog())
	app.Use(recover.New())
	app.Use(middleware.Metrics())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key, X-Request-ID",
	}))
	return app
}

func openCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, func()) {
	if cfg.Addr == "" {
		return cache.Noop{}, func() {}
	}
	r, err := cache.NewRedis(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unavailable, catalog cache disabled")
		return cache.Noop{}, func() {}
	}
	return r, func() {
		if err := r.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close")
		}
	}
}

func openAudit(ctx context.Context, cfg config.MongoConfig) (audit.Recorder, func()) {
	if cfg.URI == "" {
		return audit.Noop{}, func() {}
	}
	m, err := audit.NewMongo(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("mongo unavailable, order audit disabled")
		return audit.Noop{}, func() {}
	}
	return m, func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Close(cctx); err != nil {
			log.Warn().Err(err).Msg("mongo close")
		}
	}
}
