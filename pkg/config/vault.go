package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/streamvault/streamvault/internal/api"
	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/services/auth"
	"github.com/streamvault/streamvault/internal/services/cache"
	"github.com/streamvault/streamvault/internal/services/custody"
	"github.com/streamvault/streamvault/internal/services/database"
	"github.com/streamvault/streamvault/internal/services/middleware"
	"github.com/streamvault/streamvault/internal/services/stream"
	"github.com/streamvault/streamvault/pkg/builder"
)

// Vault represents a StreamVault server instance.
type Vault struct {
	config  *config.Config
	app     *fiber.App
	redis   *redis.Client
	db      *database.DB
	builder *builder.Builder
	clock   stream.Clock
}

// NewVault creates a new Vault instance with the given configuration.
// The cfg parameter is required and must not be nil.
// For full middleware control, use NewVaultWithBuilder.
func NewVault(cfg *config.Config) *Vault {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() or the builder to create config")
	}

	return &Vault{config: cfg}
}

// NewVaultWithBuilder creates a new Vault instance from a configuration builder.
func NewVaultWithBuilder(b *builder.Builder) *Vault {
	return &Vault{
		config:  b.Build(),
		builder: b,
	}
}

// WithClock overrides the time source for the ledger. Intended for tests and
// simulations; production instances use the system clock.
func (v *Vault) WithClock(clock stream.Clock) *Vault {
	v.clock = clock
	return v
}

// Run starts the server and blocks until shutdown.
func (v *Vault) Run() error {
	if err := v.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(v.config)

	port := v.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	v.app = createFiberApp(v.config)

	// === Infrastructure Setup ===
	redisClient, err := createRedisClient(v.config)
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	v.redis = redisClient

	if v.redis != nil {
		defer func() {
			if err := v.redis.Close(); err != nil {
				fiberlog.Errorf("Failed to close Redis client: %v", err)
			}
		}()
	}

	db, err := database.New(*v.config.Database)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	v.db = db
	defer func() {
		if err := v.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}()

	fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())

	// === Services Initialization ===
	custodySvc := custody.NewService(db.DB)
	streamSvc := stream.NewService(db.DB, custodySvc, v.clock)

	if err := custodySvc.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate custody tables: %w", err)
	}
	if err := streamSvc.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate stream table: %w", err)
	}
	fiberlog.Info("Database migrations completed successfully")

	// === Middleware Setup ===
	setupMiddleware(v.app, v.config, v.builder)

	// === Routes Setup ===
	if err := v.setupRoutes(custodySvc, streamSvc); err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	v.app.Get("/", welcomeHandler())

	fmt.Printf("StreamVault starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", v.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())

	// Graceful shutdown handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := v.app.Listen(listenAddr); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fiberlog.Info("Server shutting down gracefully...")
		if err := v.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		fiberlog.Info("Server shutdown completed successfully")
		return nil
	})

	return g.Wait()
}

func (v *Vault) setupRoutes(custodySvc *custody.Service, streamSvc *stream.Service) error {
	var streamCache *cache.StreamCache
	if v.redis != nil && v.config.Cache != nil {
		streamCache = cache.NewStreamCache(v.redis, time.Duration(v.config.Cache.TTLSeconds)*time.Second)
		fiberlog.Info("Stream cache enabled")
	}

	var authMiddleware *middleware.AuthMiddleware
	if v.config.Auth != nil && v.config.Auth.Enabled {
		authProvider, err := auth.NewJWTAuthProvider(v.config.Auth.JWTSecret, v.config.Auth.Issuer)
		if err != nil {
			return fmt.Errorf("auth provider initialization failed: %w", err)
		}

		authMiddleware = middleware.NewAuthMiddleware(authProvider, &middleware.AuthMiddlewareConfig{
			Enabled:     true,
			HeaderNames: []string{"Authorization"},
			SkipPaths:   v.config.Auth.SkipPaths,
		})
	}

	clock := v.clock
	if clock == nil {
		clock = stream.SystemClock{}
	}

	streamsHandler := api.NewStreamsHandler(streamSvc, streamCache, clock)
	accountsHandler := api.NewAccountsHandler(custodySvc)
	healthHandler := api.NewHealthHandler(v.db.DB, v.redis)

	v.app.Get("/health", healthHandler.HealthCheck)

	v1Group := v.app.Group("/v1")
	if authMiddleware != nil {
		v1Group.Use(authMiddleware.RequireAuth())
	}

	streamsGroup := v1Group.Group("/streams")
	streamsGroup.Post("/", streamsHandler.CreateStream)
	streamsGroup.Get("/:stream_id", streamsHandler.GetStream)
	streamsGroup.Post("/:stream_id/withdraw", streamsHandler.Withdraw)
	streamsGroup.Post("/:stream_id/pause", streamsHandler.Pause)
	streamsGroup.Post("/:stream_id/resume", streamsHandler.Resume)
	streamsGroup.Post("/:stream_id/cancel", streamsHandler.Cancel)
	streamsGroup.Post("/:stream_id/reload", streamsHandler.Reload)
	streamsGroup.Delete("/:stream_id", streamsHandler.CloseStream)
	streamsGroup.Get("/:stream_id/transfers", streamsHandler.GetTransfers)

	accountsGroup := v1Group.Group("/accounts")
	accountsGroup.Get("/:address", accountsHandler.GetAccount)
	accountsGroup.Post("/:address/deposit", accountsHandler.Deposit)

	return nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:              "StreamVault v1.0",
		EnablePrintRoutes:    !isProd,
		ReadTimeout:          1 * time.Minute,
		WriteTimeout:         1 * time.Minute,
		IdleTimeout:          5 * time.Minute,
		ReadBufferSize:       8192,
		WriteBufferSize:      8192,
		CompressedFileSuffix: ".gz",
		Prefork:              false,
		CaseSensitive:        true,
		StrictRouting:        false,
		Network:              "tcp",
		ServerHeader:         "StreamVault",
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config, b *builder.Builder) {
	isProd := cfg.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	// Rate limiter (use builder config if available, otherwise use defaults)
	if b != nil && b.GetRateLimitConfig() != nil {
		rlCfg := b.GetRateLimitConfig()
		keyFunc := rlCfg.KeyFunc
		if keyFunc == nil {
			keyFunc = func(c *fiber.Ctx) string { return c.IP() }
		}
		app.Use(limiter.New(limiter.Config{
			Max:               rlCfg.Max,
			Expiration:        rlCfg.Expiration,
			LimiterMiddleware: limiter.SlidingWindow{},
			KeyGenerator:      keyFunc,
			LimitReached: func(c *fiber.Ctx) error {
				return fmt.Errorf("%d requests per %v", rlCfg.Max, rlCfg.Expiration)
			},
		}))
	} else {
		app.Use(limiter.New(limiter.Config{
			Max:               1000,
			Expiration:        1 * time.Minute,
			LimiterMiddleware: limiter.SlidingWindow{},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return fmt.Errorf("1000 requests per minute")
			},
		}))
	}

	// Request timeout middleware
	timeoutDuration := 30 * time.Second
	if b != nil && b.GetTimeoutConfig() != nil {
		timeoutDuration = b.GetTimeoutConfig().Timeout
	}
	app.Use(func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeoutDuration)
		defer cancel()
		c.SetUserContext(ctx)

		return c.Next()
	})

	// Compression
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Logging
	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	// CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, User-Agent",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
		MaxAge:           86400,
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
	}))

	// Custom middlewares from builder
	if b != nil {
		for _, mw := range b.GetMiddlewares() {
			app.Use(mw)
		}
	}

	// Profiler (dev only)
	if !isProd {
		app.Use(pprof.New())
	}
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	case "panic":
		fiberlog.SetLevel(fiberlog.LevelPanic)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}

	fiberlog.Infof("Log level set to: %s", logLevel)
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Cache == nil || !cfg.Cache.Enabled || cfg.Cache.RedisURL == "" {
		fiberlog.Info("Redis not configured - stream cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.ConnMaxLifetime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond

	client := redis.NewClient(opt)

	return testRedisConnectionWithRetry(client)
}

func testRedisConnectionWithRetry(client *redis.Client) (*redis.Client, error) {
	const maxAttempts = 3
	const baseDelay = 1 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established successfully (attempt %d/%d)", attempt, maxAttempts)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)

		if attempt < maxAttempts {
			delay := time.Duration(attempt) * baseDelay
			fiberlog.Infof("Retrying Redis connection in %v...", delay)
			time.Sleep(delay)
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "Welcome to StreamVault!",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"endpoints": fiber.Map{
				"streams":  "/v1/streams",
				"accounts": "/v1/accounts",
				"health":   "/health",
			},
		})
	}
}
