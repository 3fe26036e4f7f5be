package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"rifa/internal/config"
	"rifa/internal/handlers"
	"rifa/internal/models"
	"rifa/internal/repository"
	"rifa/internal/services"
	"rifa/internal/storage"
)

func main() {
	cfg, err := config.LoadCatalog()
	if err != nil {
		logger.Fatalf("Failed to parse config: %v", err)
	}
	defer logger.Init("catalog", cfg.Log.Verbose, false, io.Discard).Close()

	if cfg.Environment.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := storage.OpenDB(cfg.Database.Driver, cfg.Database.DSN, &models.App{})
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}

	catalog := services.NewCatalogService(repository.NewAppRepository(db))
	if cfg.Catalog.Seed {
		if err := catalog.Seed(context.Background()); err != nil {
			logger.Fatalf("Failed to seed catalog: %v", err)
		}
	}
	auth, err := services.NewAdminAuth("catalog", "", cfg.Catalog.AdminPassword, cfg.Catalog.SessionSecret, cfg.Catalog.SessionTTL)
	if err != nil {
		logger.Fatalf("Failed to set up admin auth: %v", err)
	}

	r := gin.Default()
	handlers.NewCatalogHandler(catalog, auth).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: r,
	}
	go func() {
		logger.Infof("Catalog API starting on http://%s", cfg.HTTP.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("Signal received, starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
