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

	_ "github.com/noah-isme/grade-flow-api/api/swagger"
	"github.com/noah-isme/grade-flow-api/internal/handler"
	"github.com/noah-isme/grade-flow-api/internal/middleware"
	"github.com/noah-isme/grade-flow-api/internal/models"
	"github.com/noah-isme/grade-flow-api/internal/repository"
	"github.com/noah-isme/grade-flow-api/internal/service"
	"github.com/noah-isme/grade-flow-api/pkg/cache"
	"github.com/noah-isme/grade-flow-api/pkg/config"
	"github.com/noah-isme/grade-flow-api/pkg/database"
	"github.com/noah-isme/grade-flow-api/pkg/export"
	"github.com/noah-isme/grade-flow-api/pkg/jobs"
	"github.com/noah-isme/grade-flow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/grade-flow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/grade-flow-api/pkg/middleware/requestid"
	"github.com/noah-isme/grade-flow-api/pkg/storage"
)

// @title Grade Flow API
// @version 0.1.0
// @description Grade lifecycle and retake engine
// @BasePath /
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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Degraded mode: edit locks become no-ops and statistics skip the cache.
		logr.Sugar().Warnw("redis unavailable, running without locks and cache", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	gradeRecordRepo := repository.NewGradeRecordRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	retakeRepo := repository.NewRetakeRepository(db)
	editLockRepo := repository.NewEditLockRepository(redisClient, logr)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	tokenService := service.NewTokenService(cfg.JWT.Secret)
	lifecycleService := service.NewLifecycleService(
		gradeRecordRepo, enrollmentRepo, historyRepo, editLockRepo, cacheRepo, metricsService,
		validate, logr, cfg.Workflow.EditLockTTL, cfg.Workflow.StatisticsCacheTTL,
	)
	retakeService := service.NewRetakeService(gradeRecordRepo, retakeRepo, metricsService, validate, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	exportSigner := storage.NewSignedURLSigner(cfg.Export.SignSecret, cfg.Export.ResultTTL)
	exportJobRepo := repository.NewExportJobRepository(db)
	exportService := service.NewExportService(
		gradeRecordRepo, exportStore, exportSigner,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Export.ResultTTL},
		logr, export.NewCSVExporter(), export.NewPDFExporter(),
	)
	exportWorker := service.NewExportWorker(exportJobRepo, exportService, 3, logr)
	exportQueue := jobs.NewQueue("exports", exportWorker.Handle, jobs.QueueConfig{
		Workers: cfg.Export.Workers,
		Logger:  logr,
	})
	exportJobService := service.NewExportJobService(exportJobRepo, exportQueue, exportService, logr, service.ExportJobServiceConfig{
		ResultTTL:       cfg.Export.ResultTTL,
		CleanupInterval: cfg.Export.CleanupInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exportQueue.Start(ctx)
	defer exportQueue.Stop()
	exportJobService.RecoverPendingJobs(ctx)
	exportJobService.StartCleanup(ctx)

	gradeRecordHandler := handler.NewGradeRecordHandler(
		lifecycleService, export.NewCSVExporter(), export.NewPDFExporter(), cfg.Workflow.HistoryPageSize,
	)
	retakeHandler := handler.NewRetakeHandler(retakeService)
	exportHandler := handler.NewExportHandler(exportJobService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenService))

	anyRole := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	records := api.Group("/grade-records")
	{
		records.POST("", anyRole, gradeRecordHandler.Create)
		records.GET("", anyRole, gradeRecordHandler.List)
		records.GET("/statistics", anyRole, gradeRecordHandler.Statistics)
		records.POST("/bulk-transition", anyRole, gradeRecordHandler.BulkTransition)
		records.GET("/:id", anyRole, gradeRecordHandler.Get)
		records.PATCH("/:id/scores", anyRole, gradeRecordHandler.UpdateScores)
		records.POST("/:id/submit", anyRole, gradeRecordHandler.Submit)
		records.POST("/:id/transition", anyRole, gradeRecordHandler.Transition)
		records.POST("/:id/rollback", adminOnly, gradeRecordHandler.Rollback)
		records.POST("/:id/unlock-finalized", adminOnly, gradeRecordHandler.UnlockFinalized)
		records.POST("/:id/edit-lock", anyRole, gradeRecordHandler.AcquireEditLock)
		records.DELETE("/:id/edit-lock", anyRole, gradeRecordHandler.ReleaseEditLock)
		records.GET("/:id/history", anyRole, gradeRecordHandler.History)
		records.GET("/:id/history/export", anyRole, gradeRecordHandler.ExportHistory)
		records.GET("/:id/transitions", anyRole, gradeRecordHandler.Transitions)
	}

	retakes := api.Group("/retakes")
	{
		retakes.POST("/course", adminOnly, retakeHandler.CreateCourse)
		retakes.POST("/exam", adminOnly, retakeHandler.CreateExam)
		retakes.GET("/history", anyRole, retakeHandler.History)
		retakes.GET("/needing", anyRole, retakeHandler.Needing)
		retakes.GET("/:id", anyRole, retakeHandler.Get)
		retakes.PATCH("/:id/result", adminOnly, retakeHandler.UpdateResult)
		retakes.POST("/:id/promote", adminOnly, retakeHandler.Promote)
	}

	// Download is authenticated by the signed token itself.
	r.GET(cfg.APIPrefix+"/exports/download/:token", exportHandler.Download)

	exports := api.Group("/exports")
	{
		exports.POST("", anyRole, exportHandler.Create)
		exports.GET("/:id", anyRole, exportHandler.Status)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
