package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/famcare-id/famcare-api/api/swagger"
	"github.com/famcare-id/famcare-api/internal/handler"
	"github.com/famcare-id/famcare-api/internal/middleware"
	"github.com/famcare-id/famcare-api/internal/models"
	"github.com/famcare-id/famcare-api/internal/repository"
	"github.com/famcare-id/famcare-api/internal/service"
	"github.com/famcare-id/famcare-api/pkg/cache"
	"github.com/famcare-id/famcare-api/pkg/config"
	"github.com/famcare-id/famcare-api/pkg/database"
	"github.com/famcare-id/famcare-api/pkg/export"
	"github.com/famcare-id/famcare-api/pkg/holdtoken"
	"github.com/famcare-id/famcare-api/pkg/logger"
	corsmiddleware "github.com/famcare-id/famcare-api/pkg/middleware/cors"
	reqidmiddleware "github.com/famcare-id/famcare-api/pkg/middleware/requestid"
)

// @title FamCare Booking API
// @version 1.0.0
// @description Availability and booking core for the FamCare counseling marketplace
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
		logr.Sugar().Warnw("redis unavailable, availability cache disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	consultantRepo := repository.NewConsultantRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	notifySvc := service.NewNotificationService(cfg.Notify, logr)
	if cfg.Notify.Enabled {
		notifySvc.Start(ctx)
		defer notifySvc.Stop()
	}

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "famcare-api",
	})
	consultantSvc := service.NewConsultantService(consultantRepo, logr)
	availabilitySvc := service.NewAvailabilityService(slotRepo, consultantRepo, cacheRepo, nil, logr, cfg.Availability)
	bookingSvc := service.NewBookingService(slotRepo, userRepo, holdtoken.NewSigner(cfg.Booking.HoldTokenSecret), nil, logr, metricsSvc, notifySvc, availabilitySvc, cfg.Booking)
	sessionSvc := service.NewSessionService(sessionRepo, consultantRepo, userRepo, userRepo, export.NewReceiptExporter(), nil, logr, metricsSvc, notifySvc, cfg.Cancellation)
	reviewSvc := service.NewReviewService(reviewRepo, sessionRepo, userRepo, nil, logr, metricsSvc, notifySvc, cfg.Reviews)

	sweeper := service.NewSweeperService(slotRepo, logr, metricsSvc, cfg.Booking)
	sweeper.Start(ctx)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	consultantHandler := handler.NewConsultantHandler(consultantSvc, reviewSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	reviewHandler := handler.NewReviewHandler(reviewSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	consultants := api.Group("/consultants")
	{
		consultants.GET("", consultantHandler.List)
		consultants.GET("/:id", consultantHandler.Get)
		consultants.GET("/:id/slots", availabilityHandler.List)
		consultants.GET("/:id/reviews", middleware.OptionalJWT(authSvc), consultantHandler.ListReviews)
		consultants.POST("/:id/slots",
			middleware.JWT(authSvc),
			middleware.RequireRoles(models.RoleConsultant, models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionSlotPublish, "availability_slot"),
			availabilityHandler.Publish)
	}

	slots := api.Group("/slots", middleware.JWT(authSvc))
	{
		slots.DELETE("/:id",
			middleware.RequireRoles(models.RoleConsultant, models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionSlotWithdraw, "availability_slot"),
			availabilityHandler.Withdraw)
		slots.POST("/:id/reserve",
			middleware.RequireRoles(models.RoleClient),
			bookingHandler.Reserve)
	}

	bookings := api.Group("/bookings", middleware.JWT(authSvc))
	{
		bookings.POST("/confirm", middleware.RequireRoles(models.RoleClient), bookingHandler.Confirm)
		bookings.POST("/release", bookingHandler.Release)
	}

	sessions := api.Group("/sessions", middleware.JWT(authSvc))
	{
		sessions.GET("", sessionHandler.List)
		sessions.GET("/:id", sessionHandler.Get)
		sessions.PATCH("/:id/status", sessionHandler.Transition)
		sessions.GET("/:id/cancellation", sessionHandler.PreviewCancellation)
		sessions.GET("/:id/receipt", sessionHandler.Receipt)
		sessions.POST("/:id/reviews", middleware.RequireRoles(models.RoleClient, models.RoleAdmin), reviewHandler.Submit)
		sessions.GET("/:id/reviews", reviewHandler.GetBySession)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
