package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realtime_chat/internal/config"
	"realtime_chat/internal/handler"
	"realtime_chat/internal/metrics"
	"realtime_chat/internal/middleware"
	"realtime_chat/internal/realtime"
	"realtime_chat/internal/repository"
	"realtime_chat/internal/repository/memory"
	"realtime_chat/internal/service"
	"realtime_chat/internal/storage"
	"realtime_chat/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.NewWithFormat(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checks []handler.HealthCheck

	// left nil for the memory driver so the relational repositories fall
	// back to memory.Fill
	var db repository.DB
	if cfg.Database.Driver == config.StorageDriverPostgres {
		pool, err := connectPostgres(ctx, cfg.Database)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", "error", err)
		}
		defer pool.Close()
		db = pool
		checks = append(checks, handler.HealthCheck{Name: "postgres", Check: pool.Ping})
		appLogger.Info("Database connection established")
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Fatal("Failed to connect to Redis", "error", err)
		}
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		appLogger.Info("Redis connection established")
	}

	repos := repository.NewRepositories(db, rdb, appLogger)
	memory.Fill(repos)

	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	var broker realtime.Broker
	if cfg.Redis.BrokerDriver == config.BrokerDriverRedis {
		broker = realtime.NewRedisBroker(rdb, appLogger, cfg.Realtime.SendBuffer)
	} else {
		broker = realtime.NewMemoryBroker(cfg.Realtime.SendBuffer)
	}
	defer broker.Close()
	router := realtime.NewRouter(broker, realtime.NewRegistry(), appLogger, appMetrics)

	files, err := storage.NewLocal(cfg.Upload.Dir, cfg.Upload.PublicBaseURL, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to prepare upload storage", "error", err)
	}

	services := service.NewServices(repos, router, files, cfg, appMetrics, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	handlers := handler.NewHandlers(services, router, cfg, appLogger, checks...)

	engine := setupRouter(handlers, authMiddleware, rateLimitMiddleware, files.Dir(), appMetrics, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting server",
			"addr", srv.Addr,
			"storage", cfg.Database.Driver,
			"broker", cfg.Redis.BrokerDriver,
			"upload_limit", humanize.Bytes(uint64(cfg.Upload.MaxBytes)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return services.Presence.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// hijacked websocket connections are not tracked by Shutdown
		router.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server stopped with error", "error", err)
	}

	appLogger.Info("Server exited")
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	uploadDir string,
	m *metrics.Metrics,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Upload.MaxBytes
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log, m))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static("/files", uploadDir)

	// browsers cannot set headers on websocket upgrades; RequireAuth also
	// accepts ?access_token=
	router.GET("/ws", authMiddleware.RequireAuth(), handlers.WebSocket.Handle)

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware.RequireAuth(), rateLimitMiddleware.Limit())
	handlers.RegisterRoutes(v1)

	return router
}
