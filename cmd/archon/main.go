package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/archonhq/archon/cmd/archon/container"
	"github.com/archonhq/archon/cmd/archon/routes"
	"github.com/archonhq/archon/common/bootstrap"
	"github.com/archonhq/archon/common/middleware"
	"github.com/archonhq/archon/common/ratelimit"
	"github.com/archonhq/archon/common/validation"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB)
	components, err := bootstrap.Setup(ctx, "archon")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap archon: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern, all services created
	// once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e, serviceContainer)
	setupHealthCheck(e, serviceContainer)
	registerRoutes(e, serviceContainer)

	startServer(e, serviceContainer)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = validation.NewRequestValidator()
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(echomw.RequestID())

	if c.RateLimiter != nil {
		e.Use(middleware.GlobalRateLimitMiddleware(c.RateLimiter, ratelimit.DefaultGlobalLimit))
	}
}

// setupHealthCheck registers the health check endpoint. Redis backs
// pipeline serialization and the event stream, so it is part of the
// probe alongside the database.
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ec echo.Context) error {
		ctx := ec.Request().Context()
		if err := c.Components.Health(ctx); err != nil {
			return ec.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "degraded",
				"service": "archon",
				"error":   err.Error(),
			})
		}
		if err := c.Redis.Ping(ctx); err != nil {
			return ec.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "degraded",
				"service": "archon",
				"error":   err.Error(),
			})
		}
		return ec.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "archon",
		})
	})
}

// registerRoutes registers all application routes using the service
// container
func registerRoutes(e *echo.Echo, c *container.Container) {
	routes.RegisterWorkflowRoutes(e, c)
	routes.RegisterBranchRoutes(e, c)
	routes.RegisterVersionRoutes(e, c)
	routes.RegisterPipelineRoutes(e, c)
	routes.RegisterAgentRoutes(e, c)
	routes.RegisterRunRoutes(e, c)
	routes.RegisterAuditRoutes(e, c)

	if c.Recommendations != nil {
		routes.RegisterRecommendationRoutes(e, c)
	}
}

// startServer starts the Echo server and blocks until a shutdown signal
func startServer(e *echo.Echo, c *container.Container) {
	log := c.Components.Logger
	port := c.Components.Config.Service.Port

	go func() {
		log.Info("starting archon", "port", port)
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
}
