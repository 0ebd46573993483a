// Package main runs the event platform HTTP server with WebSocket and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gatherly/backend/config"
	"github.com/gatherly/backend/internal/auth"
	"github.com/gatherly/backend/internal/certificates"
	"github.com/gatherly/backend/internal/checkins"
	"github.com/gatherly/backend/internal/emaillogs"
	"github.com/gatherly/backend/internal/events"
	"github.com/gatherly/backend/internal/live"
	"github.com/gatherly/backend/internal/middleware"
	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/internal/notify"
	"github.com/gatherly/backend/internal/ratings"
	"github.com/gatherly/backend/internal/registrations"
	"github.com/gatherly/backend/pkg/database"
	"github.com/gatherly/backend/pkg/queue"
	"github.com/gatherly/backend/pkg/redis"
	"github.com/gatherly/backend/pkg/response"
	"github.com/gatherly/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			CertificatesBucket:   cfg.AWS.CertificatesBucket,
			BannersBucket:        cfg.AWS.BannersBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}
	if s3Client == nil {
		logger.Fatal("s3 is required for certificate storage")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	feedPubSub := live.NewRedisPubSub(rdb.Client, logger)
	hub := live.NewHub(logger, feedPubSub, feedPubSub)

	notifier := notify.NewService(pool, jobQueue, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Events
	eventRepo := events.NewRepository(pool)
	eventService := events.NewService(eventRepo)
	eventHandler := events.NewHandler(eventService, logger)

	// Registrations
	registrationRepo := registrations.NewRepository(pool)
	registrationService := registrations.NewService(registrationRepo, notifier)
	registrationHandler := registrations.NewHandler(registrationService, logger)

	// Check-ins
	checkinRepo := checkins.NewRepository(pool)
	checkinService := checkins.NewService(checkinRepo, hub)
	checkinHandler := checkins.NewHandler(checkinService, logger)

	// Certificates
	certificateRepo := certificates.NewRepository(pool)
	certificateService := certificates.NewService(certificateRepo, certificates.NewPDFRenderer(), s3Client, notifier)
	certificateHandler := certificates.NewHandler(certificateService, logger)

	// Ratings
	ratingRepo := ratings.NewRepository(pool)
	ratingService := ratings.NewService(ratingRepo)
	ratingHandler := ratings.NewHandler(ratingService, logger)

	// Email delivery log
	emailLogsRepo := emaillogs.NewRepository(pool)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo)

	jwtValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Public: event catalog and certificate validation
	router.GET("/events", eventHandler.List)
	router.GET("/events/:id", eventHandler.GetByID)
	router.GET("/events/:id/ratings", ratingHandler.ListByEvent)
	router.GET("/certificates/validate/:code", certificateHandler.Validate)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Events (organizer only for mutations)
		api.POST("/events", middleware.RequireRole(string(models.RoleOrganizer)), eventHandler.Create)
		api.PATCH("/events/:id", middleware.RequireRole(string(models.RoleOrganizer)), eventHandler.Update)
		api.PATCH("/events/:id/status", middleware.RequireRole(string(models.RoleOrganizer)), eventHandler.ChangeStatus)
		api.DELETE("/events/:id", middleware.RequireRole(string(models.RoleOrganizer)), eventHandler.Delete)

		// Registrations
		api.POST("/events/:id/registrations", registrationHandler.Create)
		api.GET("/events/:id/registrations", registrationHandler.ListByEvent)
		api.GET("/registrations", registrationHandler.ListMine)
		api.GET("/registrations/:id", registrationHandler.Get)
		api.POST("/registrations/:id/approve", registrationHandler.Approve)
		api.POST("/registrations/:id/reject", registrationHandler.Reject)
		api.POST("/registrations/:id/confirm-payment", registrationHandler.ConfirmPayment)
		api.POST("/registrations/:id/cancel", registrationHandler.Cancel)

		// Check-ins and the virtual card
		api.POST("/registrations/:id/check-ins", checkinHandler.Record)
		api.GET("/registrations/:id/check-ins", checkinHandler.List)
		api.POST("/check-ins/scan", checkinHandler.Scan)
		api.GET("/registrations/:id/card", checkinHandler.Card)
		api.GET("/registrations/:id/card/qr", checkinHandler.CardQR)

		// Certificates
		api.POST("/events/:id/certificate", certificateHandler.Issue)
		api.GET("/certificates", certificateHandler.ListMine)
		api.GET("/certificates/:id/download", certificateHandler.Download)

		// Ratings
		api.POST("/events/:id/ratings", ratingHandler.Rate)

		// Email delivery log (organizer only)
		api.GET("/events/:id/emails", emailLogsHandler.ListByEvent)
	}

	// Live attendance feed (token in query; no Authorization header on upgrades)
	router.GET("/events/:id/attendance/live", live.ServeWs(hub, eventRepo, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
