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

	"rifa/internal/catalogclient"
	"rifa/internal/config"
	"rifa/internal/handlers"
	"rifa/web"
)

func main() {
	cfg, err := config.LoadStore()
	if err != nil {
		logger.Fatalf("Failed to parse config: %v", err)
	}
	defer logger.Init("store", cfg.Log.Verbose, false, io.Discard).Close()

	if cfg.Environment.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	client := catalogclient.New(cfg.Store.APIURL)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.FetchTimeout)
	if err := client.Fetch(ctx); err != nil {
		// the store still starts; every page view retries
		logger.Warningf("Catalog API at %s not reachable yet: %v", cfg.Store.APIURL, err)
	}
	cancel()

	templates, err := web.StoreTemplates()
	if err != nil {
		logger.Fatalf("Failed to parse templates: %v", err)
	}
	assets, err := web.Assets()
	if err != nil {
		logger.Fatalf("Failed to create assets sub-filesystem: %v", err)
	}

	r := gin.Default()
	r.StaticFS("/assets", http.FS(assets))
	handlers.NewStoreHandler(client, templates, handlers.StoreOptions{
		SecureCookie: cfg.Store.SecureCookie || cfg.Environment.IsProduction(),
		FetchTimeout: cfg.Store.FetchTimeout,
	}).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: r,
	}
	go func() {
		logger.Infof("Store front starting on http://%s (catalog API %s)", cfg.HTTP.Addr(), cfg.Store.APIURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	logger.Info("Signal received, starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}
}
