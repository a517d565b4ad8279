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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/school-report-api/api/swagger"
	"github.com/noah-isme/school-report-api/internal/grading"
	"github.com/noah-isme/school-report-api/internal/handler"
	internalmiddleware "github.com/noah-isme/school-report-api/internal/middleware"
	"github.com/noah-isme/school-report-api/internal/models"
	"github.com/noah-isme/school-report-api/internal/repository"
	"github.com/noah-isme/school-report-api/internal/service"
	"github.com/noah-isme/school-report-api/pkg/cache"
	"github.com/noah-isme/school-report-api/pkg/config"
	"github.com/noah-isme/school-report-api/pkg/database"
	"github.com/noah-isme/school-report-api/pkg/export"
	"github.com/noah-isme/school-report-api/pkg/jobs"
	"github.com/noah-isme/school-report-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-report-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-report-api/pkg/middleware/requestid"
	"github.com/noah-isme/school-report-api/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

// @title School Report API
// @version 1.0.0
// @description Grade records, monthly/semester/yearly class reports and report exports.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.Name); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
		logr.Info("database migrations applied")
	}

	metricsSvc := service.NewMetricsService()

	var cacheRepo *repository.CacheRepository
	var cacheSvc *service.CacheService
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		cacheRepo = repository.NewCacheRepository(client, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Grading.CacheTTL, logr, cfg.Grading.CacheEnabled)
	}

	gradeRepo := repository.NewGradeRepository(db)
	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	reportRepo := repository.NewReportRepository(db)

	catalog := grading.NewSemesterCatalog(map[models.SemesterTag]string{
		models.SemesterFirst:  cfg.Grading.FirstSemesterLabel,
		models.SemesterSecond: cfg.Grading.SecondSemesterLabel,
	})

	validate := validator.New()

	reportSvc := service.NewReportService(classRepo, studentRepo, gradeRepo, catalog, cacheSvc, metricsSvc, logr, service.ReportServiceConfig{
		CacheTTL: cfg.Grading.CacheTTL,
	})
	gradeSvc := service.NewGradeService(gradeRepo, studentRepo, reportSvc, metricsSvc, validate, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	fileStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare report storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	var pdfOpts []export.PDFOption
	if cfg.Reports.PDFFontPath != "" {
		pdfOpts = append(pdfOpts, export.WithUTF8Font(cfg.Reports.PDFFontPath))
	}
	exportSvc := service.NewExportService(reportSvc, fileStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter(pdfOpts...))

	worker := service.NewReportWorker(reportRepo, exportSvc, metricsSvc, cfg.Reports.WorkerRetries, logr)
	queue := jobs.NewQueue[string]("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
		OnGiveUp:   worker.GiveUp,
	})
	metricsSvc.RegisterQueueDepth(queue.Depth)
	queue.Start(ctx)

	reportJobSvc := service.NewReportJobService(reportRepo, reportSvc, queue, exportSvc, metricsSvc, logr, service.ReportJobServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})
	reportJobSvc.RecoverPendingJobs(ctx)
	reportJobSvc.StartCleanup(ctx)

	checks := map[string]handler.PingFunc{"database": db.PingContext}
	if cacheRepo != nil {
		checks["redis"] = cacheRepo.Ping
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks, logr)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	reportHandler := handler.NewReportHandler(reportSvc, reportJobSvc, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/export/:token", reportHandler.DownloadReport)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))
	secured.Use(internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher))

	grades := secured.Group("/grades")
	grades.GET("", gradeHandler.List)
	grades.POST("", gradeHandler.Upsert)
	grades.POST("/bulk", gradeHandler.Bulk)
	grades.DELETE("/:id", gradeHandler.Delete)

	reports := secured.Group("/reports")
	reports.GET("/classes/:id", reportHandler.ClassReport)
	reports.GET("/classes/:id/months", reportHandler.Months)
	reports.POST("/generate", reportHandler.GenerateReport)
	reports.GET("/status/:id", reportHandler.ReportStatus)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logr.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	queue.Stop()
	logr.Info("server stopped")
}
