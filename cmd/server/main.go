package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/apishield/internal/bootstrap"
	"github.com/turtacn/apishield/internal/config"
	"github.com/turtacn/apishield/internal/infrastructure/monitoring"
	"github.com/turtacn/apishield/internal/interfaces/http"
	"github.com/turtacn/apishield/internal/interfaces/http/handlers"
	"github.com/turtacn/apishield/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	// Logger for startup
	startupLogger, err := monitoring.NewZapLogger(config.LogConfig{Level: "info", Format: "json", Output: "stdout"})
	if err != nil {
		log.Fatalf("Failed to create startup logger: %v", err)
	}

	loader := config.NewLoader(*configFile, startupLogger)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize shield", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := app.Close(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "Shutdown finished with errors", err)
		}
	}()

	router, err := http.NewRouter(cfg, appLogger, http.Dependencies{
		App: app.Shield,
		Health: handlers.NewHealthHandler(map[string]interface{}{
			"storage": app.Storage.Store,
		}, appLogger),
		Tracer:   app.Tracing.Tracer(),
		Metrics:  app.Metrics,
		Gatherer: app.Registry,
	})
	if err != nil {
		appLogger.Fatal(ctx, "Failed to create router", err)
	}

	// Limits are bound at startup; a changed file is only reported.
	if loader.ConfigFileUsed() != "" {
		loader.Watch(nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Run(gctx)
	})
	if cfg.Cleanup.Enabled {
		g.Go(func() error {
			return app.Scheduler.Run(gctx)
		})
	}

	appLogger.Info(ctx, "Shield started",
		logger.String("addr", cfg.Server.Addr()),
		logger.String("storage", string(cfg.Storage.Driver)),
		logger.Int("routes", len(cfg.Shield.Routes)),
	)
	if err := g.Wait(); err != nil {
		appLogger.Error(context.Background(), "Server stopped", err)
	}
}
