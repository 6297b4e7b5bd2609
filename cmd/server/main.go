// Package main runs the event booking HTTP server with the live
// availability feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventio/backend/config"
	"github.com/eventio/backend/internal/auth"
	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/events"
	"github.com/eventio/backend/internal/exports"
	"github.com/eventio/backend/internal/middleware"
	"github.com/eventio/backend/internal/models"
	"github.com/eventio/backend/internal/realtime"
	"github.com/eventio/backend/internal/store"
	"github.com/eventio/backend/internal/worker"
	"github.com/eventio/backend/pkg/queue"
	"github.com/eventio/backend/pkg/redis"
	"github.com/eventio/backend/pkg/response"
	"github.com/eventio/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	backend, closeStore, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err), zap.String("driver", cfg.Database.Driver))
	}
	defer closeStore()

	// Redis is optional: without it availability is broadcast to this
	// instance only and exports are disabled.
	var (
		redisPub  realtime.RedisPublisher
		redisSub  realtime.RedisSubscriber
		jobQueue  *queue.Queue
		exportQ   exports.Enqueuer
		exportLoc exports.Locator
	)
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		redisPub, redisSub = pubsub, pubsub
		jobQueue = queue.NewQueue(rdb.Client, logger)
		exportQ = jobQueue
	} else {
		logger.Warn("REDIS_ADDR not set; availability fan-out is local and exports are disabled")
	}

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			exportLoc = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	hub := realtime.NewHub(logger, redisPub, redisSub)

	// Bookings
	controller := bookings.NewController(backend, hub, logger)
	bookingService := bookings.NewService(backend, controller)
	bookingHandler := bookings.NewHandler(bookingService, logger)

	// Events
	eventHandler := events.NewHandler(backend, logger)

	// Exports
	exportHandler := exports.NewHandler(exportQ, exportLoc, logger)

	resolveCaller := func(token string) (models.Caller, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return models.Caller{}, err
		}
		return claims.Caller(), nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok", "driver": cfg.Database.Driver}) })

	// Public reads (caller identity optional)
	public := router.Group("")
	public.Use(middleware.OptionalJWT(jwtService))
	{
		public.GET("/events", eventHandler.List)
		public.GET("/events/:id", eventHandler.GetByID)
		public.GET("/events/:id/bookings/count", bookingHandler.EventAvailability)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Events
		api.POST("/events", eventHandler.Create)
		api.PATCH("/events/:id", eventHandler.Update)
		api.DELETE("/events/:id", eventHandler.Delete)
		api.GET("/events/:id/bookings", eventHandler.RequireOrganizer, bookingHandler.EventBookings)

		// Bookings
		api.POST("/bookings", bookingHandler.Create)
		api.GET("/bookings", bookingHandler.List)
		api.GET("/bookings/:id", bookingHandler.GetByID)
		api.PUT("/bookings/:id", bookingHandler.Update)
		api.DELETE("/bookings/:id", bookingHandler.Delete)
		api.GET("/admin/bookings", middleware.RequireRole(models.RoleAdmin), bookingHandler.ListAll)

		// Exports (organizer or admin)
		api.POST("/events/:id/exports", eventHandler.RequireOrganizer, exportHandler.Create)
		api.GET("/events/:id/exports/:exportId/download-url", eventHandler.RequireOrganizer, exportHandler.DownloadURL)
	}

	// WebSocket (token in query, optional)
	router.GET("/ws", realtime.ServeWs(hub, logger, resolveCaller, bookingService.Availability))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (booking exports to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if jobQueue != nil && s3Client != nil {
		processor := worker.NewExportProcessor(bookingService, s3Client, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("export worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
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
