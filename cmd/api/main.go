package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taskmanager/internal/cache"
	"taskmanager/internal/config"
	"taskmanager/internal/handler"
	"taskmanager/internal/httpserver"
	"taskmanager/internal/repository"
	"taskmanager/internal/service"
	"taskmanager/internal/storage"
	"taskmanager/pkg/db"
	"taskmanager/pkg/logger"
	"taskmanager/pkg/otel"
	redisclient "taskmanager/pkg/redis"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("Starting taskmanager-api...",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("db_host", cfg.DB.Host),
		zap.String("port", cfg.Server.Port),
	)

	shutdownTracing, err := otel.Init(cfg.OTel, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracing()

	ctx := context.Background()

	// DB
	dbConn, err := db.Open(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	store := repository.NewStore(dbConn.DB, log)
	if cfg.DB.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			log.Fatal("Database migration failed", zap.Error(err))
		}
		log.Info("Database schema is up to date")
	}

	// Redis (optional)
	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, user cache disabled", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}
	userCache := cache.NewUserCache(rdb, time.Duration(cfg.Redis.UserTTLSeconds)*time.Second, log)

	blobs, err := storage.NewOS(cfg.Storage.Dir, cfg.Storage.MaxUploadBytes, log)
	if err != nil {
		log.Fatal("Attachment storage initialization failed", zap.Error(err))
	}

	// Services
	authService := service.NewAuthService(store, userCache, cfg.JWT.Secret, time.Duration(cfg.JWT.TTLHours)*time.Hour, log)
	taskService := service.NewTaskService(store, blobs, log)
	categoryService := service.NewCategoryService(store, log)
	tagService := service.NewTagService(store, log)
	commentService := service.NewCommentService(store, log)
	attachmentService := service.NewAttachmentService(store, blobs, log)

	// Handlers
	paginator := handler.Paginator{DefaultSize: cfg.Server.DefaultPageSize, MaxSize: cfg.Server.MaxPageSize}
	handlers := httpserver.Handlers{
		Auth:       handler.NewAuthHandler(authService, log),
		Task:       handler.NewTaskHandler(taskService, paginator, log),
		Category:   handler.NewCategoryHandler(categoryService, paginator, log),
		Tag:        handler.NewTagHandler(tagService, paginator, log),
		Comment:    handler.NewCommentHandler(commentService, paginator, log),
		Attachment: handler.NewAttachmentHandler(attachmentService, paginator, log),
	}

	router := httpserver.NewRouter(handlers, authService, store, httpserver.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down taskmanager-api gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("taskmanager-api shutdown complete")
}
