package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arnavshah/turni-api-go/pkg/auth"
	"github.com/arnavshah/turni-api-go/pkg/config"
	"github.com/arnavshah/turni-api-go/pkg/database"
	"github.com/arnavshah/turni-api-go/pkg/handlers"
	"github.com/arnavshah/turni-api-go/pkg/logging"
	"github.com/arnavshah/turni-api-go/pkg/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("could not build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.GinMode == "" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(cfg.GinMode)
	}

	authn, err := auth.New(cfg)
	if err != nil {
		logger.Fatal("auth config invalid", zap.Error(err))
	}

	db, err := database.InitDB(cfg, logger)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	if err := auth.EnsureAdminExists(db, cfg, logger); err != nil {
		logger.Error("could not ensure admin user", zap.Error(err))
	}

	engine := scheduler.NewEngine(database.NewRepository(db), logger.Named("scheduler"),
		scheduler.WithHorizon(cfg.AllocationHorizonMonths))
	h := handlers.NewHandler(db, engine, authn, logger.Named("http"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("could not run server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
