package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/dealerhub/announce-api/api/swagger"
	"github.com/dealerhub/announce-api/internal/handler"
	"github.com/dealerhub/announce-api/internal/middleware"
	"github.com/dealerhub/announce-api/internal/models"
	"github.com/dealerhub/announce-api/internal/repository"
	"github.com/dealerhub/announce-api/internal/service"
	"github.com/dealerhub/announce-api/pkg/cache"
	"github.com/dealerhub/announce-api/pkg/config"
	"github.com/dealerhub/announce-api/pkg/database"
	"github.com/dealerhub/announce-api/pkg/logger"
	corsmiddleware "github.com/dealerhub/announce-api/pkg/middleware/cors"
	reqidmiddleware "github.com/dealerhub/announce-api/pkg/middleware/requestid"
	"github.com/dealerhub/announce-api/pkg/storage"
)

// @title Announce API
// @version 1.0.0
// @description Broadcast announcement delivery and acknowledgment service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		cacheSvc = service.NewCacheService(nil, metrics, cfg.Delivery.UnreadCacheTTL, logr, false)
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Delivery.UnreadCacheTTL, logr, true)
	}

	userRepo := repository.NewUserRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	deliverySvc := service.NewDeliveryService(announcementRepo, cacheSvc, metrics, logr, cfg.Delivery.UnreadCacheTTL)
	broadcastSvc := service.NewBroadcastService(announcementRepo, cacheSvc, validate, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	announcementHandler := handler.NewAnnouncementHandler(deliverySvc)
	broadcastHandler := handler.NewBroadcastHandler(broadcastSvc)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	announcements := authed.Group("/announcements")
	announcements.GET("/active", announcementHandler.Active)
	announcements.GET("/unread", announcementHandler.Unread)
	announcements.POST("/:id/view", announcementHandler.MarkViewed)
	announcements.POST("/:id/acknowledge", announcementHandler.Acknowledge)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/announcements", broadcastHandler.List)
	admin.POST("/announcements", broadcastHandler.Create)
	admin.GET("/announcements/:id", broadcastHandler.Get)
	admin.PUT("/announcements/:id", broadcastHandler.Update)
	admin.DELETE("/announcements/:id", broadcastHandler.Delete)
	admin.POST("/announcements/:id/publish", broadcastHandler.Publish)
	admin.POST("/announcements/:id/archive", broadcastHandler.Archive)

	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportRepo := repository.NewReportRepository(db)
		reportSvc := service.NewReportService(reportRepo, announcementRepo, store, signer, logr, service.ReportServiceConfig{
			SignedURLTTL:    cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			Workers:         cfg.Reports.WorkerConcurrency,
			Retries:         cfg.Reports.WorkerRetries,
		})
		reportSvc.Start(context.Background())
		defer reportSvc.Stop()

		reportHandler := handler.NewReportHandler(reportSvc)
		admin.POST("/reports", reportHandler.Create)
		admin.GET("/reports/:id", reportHandler.Status)
		admin.GET("/reports/:id/download", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
