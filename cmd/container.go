// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis, job queue) and
// composes bounded-context containers.
package main

import (
	"context"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/asyncx"
	"github.com/Abraxas-365/gatekeeper/pkg/config"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx/jobxmem"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx/notifxses"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const (
	pingTimeout = 5 * time.Second

	// Postgres and Redis often start alongside the service.
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// Container holds shared infrastructure and composed module containers.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB     *sqlx.DB
	Redis  *redis.Client
	Jobs   *jobx.Client
	Mailer notifx.EmailSender

	// Bounded-context containers
	IAM *iamcontainer.Container
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure: DB, Redis, job queue
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	c.initMailer()

	if c.Config.Server.InMemory {
		c.Jobs = c.newJobClient(jobxmem.New())
		logx.Warn("  ⚠️  In-memory mode: Postgres and Redis are not used")
		return
	}

	ctx := context.Background()

	// 1. Database
	db, err := asyncx.RetryWithBackoff(ctx, connectAttempts, connectBackoff, func(ctx context.Context) (*sqlx.DB, error) {
		return sqlx.ConnectContext(ctx, "postgres", c.Config.Database.DSN())
	})
	if err != nil {
		logx.Fatalf("Failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxConns)
	db.SetMaxIdleConns(c.Config.Database.MaxConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	c.DB = db
	logx.Info("  ✅ Database connected")

	// 2. Redis
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	_, err = asyncx.RetryWithBackoff(ctx, connectAttempts, connectBackoff, func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return c.Redis.Ping(ctx).Result()
	})
	if err != nil {
		logx.Fatalf("Failed to connect to Redis: %v (Redis is required)", err)
	}
	logx.Info("  ✅ Redis connected")

	// 3. Job queue
	c.Jobs = c.newJobClient(jobxredis.NewRedisQueue(c.Redis))
	logx.Info("  ✅ Redis job queue configured")

	logx.Info("✅ Infrastructure initialized")
}

func (c *Container) initMailer() {
	cfg := c.Config.Notify

	switch cfg.Provider {
	case "ses":
		awsCfg, err := awsConfig.LoadDefaultConfig(context.TODO(), awsConfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		c.Mailer = notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), cfg.From)
		logx.Infof("  ✅ SES mailer configured (region: %s)", cfg.AWSRegion)

	case "console":
		c.Mailer = notifxconsole.NewConsoleProvider()
		logx.Info("  ✅ Console mailer configured (dev mode)")

	default:
		logx.Warn("  ⚠️  Security alerts disabled")
	}
}

func (c *Container) newJobClient(queue jobx.Queue) *jobx.Client {
	cfg := c.Config.Jobx
	return jobx.NewClient(queue,
		jobx.WithConcurrency(cfg.Concurrency),
		jobx.WithQueues(cfg.Queues...),
		jobx.WithShutdownTimeout(cfg.ShutdownTimeout),
		jobx.WithDequeueTimeout(cfg.DequeueTimeout),
		jobx.WithDefaultRetryDelay(cfg.DefaultRetryDelay),
	)
}

// ---------------------------------------------------------------------------
// Module composition: each bounded context wires itself
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	deps := iamcontainer.Deps{
		DB:     c.DB,
		Cfg:    c.Config,
		Jobs:   c.Jobs,
		Mailer: c.Mailer,
	}
	// A nil *redis.Client must not become a non-nil interface.
	if c.Redis != nil {
		deps.Redis = c.Redis
	}
	c.IAM = iamcontainer.New(deps)
	c.IAM.RegisterJobs(c.Jobs)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// StartBackgroundServices runs the job workers until ctx is cancelled. The
// returned channel is closed once they have stopped.
func (c *Container) StartBackgroundServices(ctx context.Context) <-chan struct{} {
	logx.Info("🔄 Starting background services...")
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Jobs.Start(ctx); err != nil {
			logx.WithError(err).Error("job workers stopped")
		}
	}()
	return done
}

// Health pings the shared infrastructure concurrently.
func (c *Container) Health(ctx context.Context) map[string]error {
	var (
		names  []string
		pings []func(context.Context) (struct{}, error)
	)
	if c.DB != nil {
		names = append(names, "db")
		pings = append(pings, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.DB.PingContext(ctx)
		})
	}
	if c.Redis != nil {
		names = append(names, "redis")
		pings = append(pings, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.Redis.Ping(ctx).Err()
		})
	}

	checks := make(map[string]error, len(names))
	for i, r := range asyncx.AllSettled(ctx, pings...) {
		checks[names[i]] = r.Err
	}
	return checks
}

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
