package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	appService "github.com/turtacn/apishield/internal/application/service"
	"github.com/turtacn/apishield/internal/config"
	"github.com/turtacn/apishield/internal/infrastructure/monitoring"
	"github.com/turtacn/apishield/internal/interfaces/http/handlers"
	"github.com/turtacn/apishield/internal/interfaces/http/middleware"
	"github.com/turtacn/apishield/pkg/logger"
)

// Dependencies are the collaborators the router wires together.
type Dependencies struct {
	App     appService.ShieldAppService
	Health  *handlers.HealthHandler
	Tracer  trace.Tracer
	Metrics *monitoring.Metrics
	// Gatherer backs the metrics endpoint; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	config *config.Config
	logger logger.Logger
	deps   Dependencies
	server *http.Server
}

// NewRouter 创建路由器
func NewRouter(cfg *config.Config, log logger.Logger, deps Dependencies) (*Router, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	r := &Router{
		engine: engine,
		config: cfg,
		logger: log.WithComponent("router"),
		deps:   deps,
	}
	if err := r.setupRoutes(); err != nil {
		return nil, err
	}
	return r, nil
}

// Handler returns the configured engine.
func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) setupRoutes() error {
	r.engine.Use(handlers.RecoveryMiddleware(r.logger))
	r.engine.Use(handlers.RequestIDMiddleware())
	if r.deps.Tracer != nil {
		r.engine.Use(middleware.ObservabilityMiddleware(r.deps.Tracer, r.deps.Metrics))
	}
	r.engine.Use(handlers.LoggingMiddleware(r.logger))

	if len(r.config.Server.CORSOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:  r.config.Server.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.engine.Use(middleware.ShieldMiddleware(r.deps.App, middleware.ShieldOptionsFromConfig(r.config.Shield), r.logger))

	if r.deps.Health != nil {
		r.engine.GET("/health", r.deps.Health.HealthCheck)
		r.engine.GET("/live", r.deps.Health.LivenessCheck)
	}

	if r.config.Metrics.Enabled {
		gatherer := r.deps.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		r.engine.GET(r.config.Metrics.Path, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	if r.config.Server.EnablePprof {
		pprof.Register(r.engine)
	}

	if r.config.Server.AdminToken != "" {
		admin := handlers.NewAdminHandler(r.deps.App, r.logger)
		group := r.engine.Group("/admin", handlers.AdminAuth(r.config.Server.AdminToken))
		{
			group.POST("/sweep", admin.Sweep)
			group.GET("/bans/:identity", admin.GetBan)
			group.PUT("/bans/:identity", admin.PutBan)
			group.DELETE("/bans/:identity", admin.DeleteBan)
			group.GET("/resolve", admin.Resolve)
		}
	}

	if r.config.Server.Upstream != "" {
		target, err := url.Parse(r.config.Server.Upstream)
		if err != nil {
			return err
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
			r.logger.Error(req.Context(), "Upstream request failed", err, logger.String("upstream", target.Host))
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}
		r.engine.NoRoute(gin.WrapH(proxy))
		return nil
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (r *Router) Run(ctx context.Context) error {
	r.server = &http.Server{
		Addr:           r.config.Server.Addr(),
		Handler:        r.engine,
		ReadTimeout:    r.config.Server.ReadTimeout,
		WriteTimeout:   r.config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info(ctx, "Starting HTTP server", logger.String("address", r.server.Addr))
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := r.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	r.logger.Info(shutdownCtx, "Shutting down HTTP server")
	if err := r.server.Shutdown(shutdownCtx); err != nil {
		r.logger.Error(shutdownCtx, "Server forced to shutdown", err)
		return err
	}
	r.logger.Info(shutdownCtx, "HTTP server stopped")
	return nil
}
