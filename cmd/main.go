package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/config"
	"github.com/Abraxas-365/gatekeeper/pkg/errx/errxfiber"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

const healthTimeout = 2 * time.Second

func main() {
	// 1. Initialize Logger
	logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))

	cfg, err := config.Load()
	if err != nil {
		logx.Fatalf("Invalid configuration: %v", err)
	}

	logx.Infof("🚀 Starting %s (%s)...", cfg.Server.Name, cfg.Server.Env)

	// 2. Initialize Dependency Container
	container := NewContainer(cfg)
	defer container.Cleanup()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	workersDone := container.StartBackgroundServices(ctx)

	// 3. Create Fiber App with Config
	app := fiber.New(fiber.Config{
		AppName:               cfg.Server.Name,
		DisableStartupMessage: true,
		ErrorHandler:          errxfiber.ErrorHandler,
		BodyLimit:             1 * 1024 * 1024,
		IdleTimeout:           120 * time.Second,
	})

	// 4. Global Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Server.Env != "production",
	}))

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	// Put the request id on the user context so every log entry carries it.
	app.Use(func(c *fiber.Ctx) error {
		fields := logx.Fields{"request_id": c.GetRespHeader(fiber.HeaderXRequestID)}
		c.SetUserContext(logx.ContextWithFields(c.UserContext(), fields))
		return c.Next()
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.AllowedOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, DELETE, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${respHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// 5. Health Check
	app.Get("/health", healthCheckHandler(container))

	// 6. Register Routes
	container.IAM.AccountHandlers.RegisterRoutes(app, container.IAM.AuthMiddleware)
	logx.Info("✓ Account routes registered")

	// 7. 404 Handler
	app.Use(notFoundHandler)

	// 8. Start Server with Graceful Shutdown
	startServer(app, cfg, stop, workersDone)
}

// ============================================================================
// Handler Functions
// ============================================================================

// healthCheckHandler reports the state of the database and Redis
func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()

		health := fiber.Map{
			"status":  "healthy",
			"service": container.Config.Server.Name,
		}
		for name, err := range container.Health(ctx) {
			if err != nil {
				logx.WithContext(ctx).WithError(err).WithField("dependency", name).Warn("health check failed")
				health[name] = "unhealthy"
				health["status"] = "degraded"
				continue
			}
			health[name] = "healthy"
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"code":       "NOT_FOUND",
		"message":    "The requested endpoint does not exist",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
	})
}

// ============================================================================
// Lifecycle
// ============================================================================

// startServer listens until SIGINT or SIGTERM, then drains requests and stops
// the background workers.
func startServer(app *fiber.App, cfg *config.Config, stopWorkers context.CancelFunc, workersDone <-chan struct{}) {
	addr := cfg.Server.Host + ":" + cfg.Server.Port

	go func() {
		logx.Infof("🚀 Server listening on %s", addr)
		logx.Infof("💚 Health Check: %s/health", cfg.Server.Address)

		if err := app.Listen(addr); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logx.Infof("🛑 Received signal: %v", sig)
	logx.Info("Shutting down gracefully...")

	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}
	stopWorkers()
	<-workersDone

	logx.Info("✅ Server exited successfully")
}
