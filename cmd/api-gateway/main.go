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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutorlink-api/api/swagger"
	"github.com/noah-isme/tutorlink-api/internal/handler"
	"github.com/noah-isme/tutorlink-api/internal/middleware"
	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/repository"
	"github.com/noah-isme/tutorlink-api/internal/service"
	"github.com/noah-isme/tutorlink-api/pkg/cache"
	"github.com/noah-isme/tutorlink-api/pkg/config"
	"github.com/noah-isme/tutorlink-api/pkg/database"
	"github.com/noah-isme/tutorlink-api/pkg/export"
	"github.com/noah-isme/tutorlink-api/pkg/jobs"
	"github.com/noah-isme/tutorlink-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutorlink-api/pkg/middleware/cors"
	"github.com/noah-isme/tutorlink-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/tutorlink-api/pkg/middleware/requestid"
)

// @title TutorLink API
// @version 1.0.0
// @description Teacher availability matching and session booking.
// @BasePath /api/v1
// @schemes http https
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
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, availability cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	teacherRepo := repository.NewTeacherRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Availability.CacheTTL, logr, cfg.Availability.CacheEnabled && redisClient != nil)
	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, teacherRepo, cacheSvc, metricsSvc, validate, logr, cfg.Availability.CacheTTL)

	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	notifyQueue := jobs.NewQueue(service.NotificationJobType, notificationSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notifyQueue.Start(context.Background())
	defer notifyQueue.Stop()
	notificationSvc.AttachQueue(notifyQueue)
	if err := metricsSvc.ObserveQueue(service.NotificationJobType, notifyQueue); err != nil {
		logr.Warn("queue metrics unavailable", zap.Error(err))
	}

	bookingSvc := service.NewBookingService(
		bookingRepo,
		availabilityRepo,
		teacherRepo,
		availabilitySvc,
		notificationSvc,
		db,
		metricsSvc,
		validate,
		logr,
		service.BookingConfig{
			MinDurationMinutes: cfg.Bookings.MinDurationMinutes,
			MaxDurationMinutes: cfg.Bookings.MaxDurationMinutes,
		},
	)

	exportSvc := service.NewBookingExportService(bookingSvc, logr, export.NewCSVExporter(), export.NewPDFExporter())

	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc, exportSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
		"redis":    cacheRepo.Ping,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	throttle := func(c *gin.Context) { c.Next() }
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.TTL)
		throttle = limiter.Middleware(ratelimit.ClientIP)
	}

	authRequired := middleware.JWT(authSvc)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	teacherOrAdmin := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	api := r.Group(cfg.APIPrefix)

	teachers := api.Group("/teachers")
	teachers.GET("", teacherHandler.List)
	teachers.GET("/:id", teacherHandler.Get)
	teachers.GET("/:id/availability", availabilityHandler.Get)
	teachers.GET("/:id/availability/check", throttle, availabilityHandler.Check)
	teachers.POST("", authRequired, adminOnly, teacherHandler.Create)
	teachers.PUT("/:id", authRequired, teacherOrAdmin, teacherHandler.Update)
	teachers.PUT("/:id/availability", authRequired, teacherOrAdmin, availabilityHandler.Upsert)

	bookings := api.Group("/bookings", authRequired)
	bookings.POST("", studentOnly, throttle, bookingHandler.Create)
	bookings.GET("", bookingHandler.List)
	bookings.GET("/export", bookingHandler.Export)
	bookings.GET("/:id", bookingHandler.Get)
	bookings.POST("/:id/accept", teacherOrAdmin, bookingHandler.Accept)
	bookings.POST("/:id/reject", teacherOrAdmin, bookingHandler.Reject)
	bookings.POST("/:id/cancel", bookingHandler.Cancel)

	notifications := api.Group("/notifications", authRequired)
	notifications.GET("", notificationHandler.List)
	notifications.POST("/:id/read", notificationHandler.MarkRead)

	api.GET("/metrics/summary", authRequired, adminOnly, metricsHandler.Summary)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
