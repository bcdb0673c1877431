package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/abduss/tasktrack/internal/auth"
	"github.com/abduss/tasktrack/internal/config"
	"github.com/abduss/tasktrack/internal/logger"
	"github.com/abduss/tasktrack/internal/server"
	"github.com/abduss/tasktrack/internal/storage"
	"github.com/abduss/tasktrack/internal/task"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	zl, err := logger.Init()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		zl.Fatal("load config", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres, zl)
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	authService, err := auth.NewService(auth.NewRepository(dbPool), cfg.Auth, zl)
	if err != nil {
		zl.Fatal("init auth service", zap.Error(err))
	}
	taskService := task.NewService(task.NewRepository(dbPool))

	router := server.NewRouter(server.Dependencies{
		Config:      cfg,
		DB:          dbPool,
		AuthService: authService,
		TaskService: taskService,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zl.Info("tasktrack API listening",
			zap.String("addr", cfg.Server.Address()),
			zap.String("base_path", cfg.Server.BasePath),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zl.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}
