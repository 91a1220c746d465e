package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"badge-print-service/internal/apperr"
	"badge-print-service/internal/cache"
	"badge-print-service/internal/config"
	"badge-print-service/internal/generator"
	"badge-print-service/internal/handlers"
	"badge-print-service/internal/logging"
	"badge-print-service/internal/parser"
	"badge-print-service/internal/resolver"
	"badge-print-service/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	log := logging.New(os.Stdout, cfg.IsDevelopment(), cfg.Debug)
	slog.SetDefault(log)

	store, err := cache.NewStore(cache.Config{Dir: cfg.CacheDir, Timeout: cfg.ImageTimeout})
	if err != nil {
		log.Error("failed to initialise asset cache", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	templates := parser.NewCache(cfg.TemplateTTL, cfg.CDNBaseURL)
	res := resolver.New(
		resolver.WithLocale(resolver.LocaleFor(cfg.Locale)),
		resolver.WithCDNBase(cfg.CDNBaseURL),
	)
	gen := generator.New(generator.Config{
		Templates:      templates,
		Resolver:       res,
		Assets:         store,
		Tracker:        newTracker(ctx, cfg, log),
		FontDir:        cfg.FontDir,
		QRWorkers:      cfg.QRWorkers,
		Oversample:     cfg.QROversample,
		MaxRegistrants: cfg.MaxRegistrants,
		TrackTimeout:   cfg.TrackTimeout,
		Logger:         log,
	})

	app := fiber.New(fiber.Config{
		ServerHeader: "Badge-Print-Service",
		AppName:      "Badge Print Service v" + handlers.Version,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    50 * 1024 * 1024, // 50MB max body size for batch requests
		ErrorHandler: apperr.ErrorHandler(log),
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${locals:requestid}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders: "Content-Disposition, X-Badge-Pages, X-Badge-Count, X-Badge-Grid",
	}))

	handlers.New(handlers.Deps{
		Generator: gen,
		Store:     store,
		Templates: templates,
		Resolver:  res,
		CDNBase:   cfg.CDNBaseURL,
		Logger:    log,
	}).Register(app)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		_ = app.ShutdownWithTimeout(30 * time.Second)
	}()

	log.Info("badge service starting", "port", cfg.Port, "cache_dir", store.Dir(), "environment", cfg.Environment)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

// newTracker enables every counter transport that has a URL configured.
func newTracker(ctx context.Context, cfg *config.Config, log *slog.Logger) *tracker.Tracker {
	var notifiers []tracker.Notifier
	if cfg.RedisURL != "" {
		store, err := tracker.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, new-only filter disabled", "error", err)
		} else {
			notifiers = append(notifiers, store)
		}
	}
	if cfg.AMQPURL != "" {
		notifiers = append(notifiers, tracker.NewAMQPNotifier(cfg.AMQPURL))
	}
	if cfg.CounterURL != "" {
		notifiers = append(notifiers, tracker.NewHTTPNotifier(cfg.CounterURL, cfg.ImageTimeout))
	}
	return tracker.New(log, notifiers...)
}
