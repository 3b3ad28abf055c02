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

	_ "github.com/noah-isme/meal-photo-api/api/swagger"
	"github.com/noah-isme/meal-photo-api/internal/blob"
	"github.com/noah-isme/meal-photo-api/internal/handler"
	"github.com/noah-isme/meal-photo-api/internal/middleware"
	"github.com/noah-isme/meal-photo-api/internal/models"
	"github.com/noah-isme/meal-photo-api/internal/portal"
	"github.com/noah-isme/meal-photo-api/internal/repository"
	"github.com/noah-isme/meal-photo-api/internal/service"
	"github.com/noah-isme/meal-photo-api/internal/social"
	"github.com/noah-isme/meal-photo-api/pkg/cache"
	"github.com/noah-isme/meal-photo-api/pkg/config"
	"github.com/noah-isme/meal-photo-api/pkg/database"
	"github.com/noah-isme/meal-photo-api/pkg/jobs"
	"github.com/noah-isme/meal-photo-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/meal-photo-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/meal-photo-api/pkg/middleware/requestid"
	"github.com/noah-isme/meal-photo-api/pkg/storage"
)

// @title Meal Photo API
// @version 1.0.0
// @description School meal photo reporting service with social media publishing
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	photoRepo := repository.NewPhotoRepository(db)
	reportRepo := repository.NewReportRepository(db)

	// Optional Redis-backed gallery cache.
	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, gallery caching disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, true)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	// Image storage: Cloudinary when configured, local disk otherwise.
	var blobStore blob.Store
	if cfg.Blob.CloudinaryURL != "" {
		cloudinary, err := blob.NewCloudinary(cfg.Blob.CloudinaryURL, cfg.Blob.UploadPreset, cfg.Blob.Folder)
		if err != nil {
			logr.Sugar().Fatalw("invalid cloudinary configuration", "error", err)
		}
		blobStore = cloudinary
	} else {
		uploadsDir, err := storage.NewLocalStorage(cfg.Uploads.Dir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare uploads directory", "error", err)
		}
		blobStore = blob.NewLocal(uploadsDir, cfg.Uploads.PublicBaseURL)
	}

	// External collaborators.
	portalClient := portal.NewClient(cfg.Portal, logr)
	poster := social.NewTwitterClient(cfg.Social, logr)

	// Services.
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "meal-photo-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	schoolSvc := service.NewSchoolService(schoolRepo, userRepo, validate, logr)
	resolver := service.NewSchoolResolver(schoolRepo)
	socialSvc := service.NewSocialService(photoRepo, userRepo, resolver, poster, metricsSvc, logr, service.SocialConfig{
		BatchSize:             cfg.Social.BatchSize,
		BatchWindowMinutes:    cfg.Social.BatchWindowMinutes,
		SingleFallbackMinutes: cfg.Social.SingleFallbackMinutes,
	})
	photoSvc := service.NewPhotoService(photoRepo, userRepo, blobStore, portalClient, socialSvc, cacheSvc, validate, logr)
	remarkSvc := service.NewRemarkService(photoRepo, userRepo, cacheSvc, validate, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	schoolHandler := handler.NewSchoolHandler(schoolSvc)
	photoHandler := handler.NewPhotoHandler(photoSvc, remarkSvc, cfg.Uploads)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Locally stored uploads are served statically; Cloudinary deployments
	// never hit this route.
	if cfg.Blob.CloudinaryURL == "" {
		r.Static("/uploads", cfg.Uploads.Dir)
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	photos := api.Group("/photos", middleware.JWT(authSvc))
	{
		photos.POST("", middleware.RequireRoles(models.RoleWarden, models.RoleAdmin), photoHandler.Upload)
		photos.GET("", photoHandler.List)
		photos.GET("/:id", photoHandler.Get)
		photos.POST("/:id/remarks", middleware.RequireRoles(models.RoleOfficer, models.RoleAdmin), photoHandler.AddRemark)
	}

	schools := api.Group("/schools", middleware.JWT(authSvc))
	{
		schools.GET("", schoolHandler.List)
		schools.GET("/:id", schoolHandler.Get)
		schools.POST("", middleware.RequireRoles(models.RoleAdmin), schoolHandler.Create)
	}

	users := api.Group("/users", middleware.JWT(authSvc))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleOfficer), userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleOfficer), "SELF"), userHandler.Get)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
		users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Delete)
	}

	api.GET("/metrics/snapshot", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

	// Asynchronous meal activity exports.
	if cfg.Reports.Enabled {
		exportsDir, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare exports directory", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportSvc := service.NewExportService(photoRepo, exportsDir, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr, nil, nil)
		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
		queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(context.Background())
		defer queue.Stop()

		reportSvc := service.NewReportService(reportRepo, queue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		reportSvc.RecoverPendingJobs(context.Background())
		reportSvc.StartCleanup(context.Background())

		reportHandler := handler.NewReportHandler(reportSvc)
		reports := api.Group("/reports")
		{
			reports.POST("", middleware.JWT(authSvc), reportHandler.Create)
			reports.GET("/:id", middleware.JWT(authSvc), reportHandler.Status)
			reports.GET("/download/:token", middleware.Audit(userRepo, models.AuditActionReportDownload, "reports"), reportHandler.Download)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "social_enabled", poster.Available())
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
