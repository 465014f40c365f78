package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/careloop/backend/docs"
	apppriv "github.com/careloop/backend/internal/application/privilege"
	"github.com/careloop/backend/internal/infrastructure/auth"
	"github.com/careloop/backend/internal/infrastructure/cache"
	"github.com/careloop/backend/internal/infrastructure/config"
	"github.com/careloop/backend/internal/infrastructure/logger"
	"github.com/careloop/backend/internal/infrastructure/persistence"
	"github.com/careloop/backend/internal/infrastructure/scheduler"
	"github.com/careloop/backend/internal/interfaces/http/handler"
	"github.com/careloop/backend/internal/interfaces/http/middleware"
	"github.com/careloop/backend/internal/interfaces/http/router"
)

// @title           Careloop Privilege API
// @version         1.0
// @description     Subscription privilege usage and quota enforcement service.
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()
	}

	grantCache, err := cache.NewGrantCache(cfg.Cache, redisClient, log)
	if err != nil {
		log.Fatal("Failed to initialize grant cache", zap.Error(err))
	}

	// Repositories
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	definitionRepo := persistence.NewGormDefinitionRepository(db.DB)
	grantRepo := persistence.NewGormGrantRepository(db.DB)
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB)
	usageRecordRepo := persistence.NewGormUsageRecordRepository(db.DB)

	// Services
	resolver := apppriv.NewGrantResolver(subscriptionRepo, grantRepo, grantCache, log)
	limits := apppriv.NewLimitEvaluator(usageRecordRepo, log)
	usageService := apppriv.NewUsageService(resolver, limits, ledgerRepo, usageRecordRepo, log)
	catalogService := apppriv.NewCatalogService(definitionRepo, grantRepo, grantCache, log)
	resetService := apppriv.NewResetService(ledgerRepo, log)

	jwtService := auth.NewJWTService(cfg.JWT)

	// Background period sweep
	resetScheduler := scheduler.NewResetScheduler(resetService, log, scheduler.ResetSchedulerConfig{
		Enabled:       cfg.Scheduler.Enabled,
		SweepInterval: cfg.Scheduler.SweepInterval,
		SweepTimeout:  cfg.Scheduler.SweepTimeout,
	})
	if err := resetScheduler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start reset scheduler", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := resetScheduler.Stop(stopCtx); err != nil {
			log.Error("Failed to stop reset scheduler", zap.Error(err))
		}
	}()

	// Handlers
	usageHandler := handler.NewUsageHandler(usageService)
	catalogHandler := handler.NewCatalogHandler(catalogService)
	systemHandler := handler.NewSystemHandler(db.DB)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Failed to set trusted proxies", zap.Error(err))
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.HTTP.CORSAllowOrigins,
		AllowMethods: cfg.HTTP.CORSAllowMethods,
		AllowHeaders: cfg.HTTP.CORSAllowHeaders,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(limiter))
	}

	engine.GET("/healthz", systemHandler.Healthz)
	engine.GET("/ping", systemHandler.Ping)

	jwtMiddleware := middleware.JWTAuthMiddleware(jwtService)
	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(cfg.Swagger, jwtMiddleware),
		ginSwagger.WrapHandler(swaggerFiles.Handler))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(
		router.NewUsageRoutes(usageHandler),
		router.NewAdminRoutes(catalogHandler, jwtMiddleware, middleware.AdminRequired()),
	)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Starting HTTP server",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}
