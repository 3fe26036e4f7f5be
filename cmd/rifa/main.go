package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"rifa/internal/config"
	"rifa/internal/handlers"
	"rifa/internal/pix"
	"rifa/internal/repository"
	"rifa/internal/securestore"
	"rifa/internal/services"
	"rifa/internal/storage"
	"rifa/web"
)

// openKV connects the configured key/value backend.
func openKV(cfg config.Storage) (storage.KV, func(), error) {
	switch cfg.Driver {
	case "redis":
		client := storage.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return storage.NewRedisKV(client, "rifa:"), func() { client.Close() }, nil
	default:
		db, err := storage.OpenDB(cfg.Driver, cfg.DSN, &storage.KVEntry{})
		if err != nil {
			return nil, nil, err
		}
		return storage.NewGormKV(db), func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to parse config: %v", err)
	}
	defer logger.Init("rifa", cfg.Log.Verbose, false, io.Discard).Close()

	if cfg.Environment.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. Storage
	kv, closeKV, err := openKV(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer closeKV()

	var store repository.BlobStore = storage.NewJSONStore(kv)
	if cfg.Storage.Secure {
		store = securestore.New(kv, cfg.Storage.SecretKey)
	}
	repo := repository.NewRaffleRepository(store)

	// 2. Services
	raffle := services.NewRaffleService(repo, services.RaffleSettings{
		TotalNumbers: cfg.Raffle.TotalNumbers,
		UnitPrice:    cfg.Raffle.UnitPrice,
		Prize:        cfg.Raffle.Prize,
	}, services.NewBroadcaster())
	if err := raffle.Load(context.Background()); err != nil {
		logger.Fatalf("Failed to load raffle: %v", err)
	}
	draws := services.NewDrawService(raffle, repo, cfg.Raffle.DrawTicks, cfg.Raffle.DrawInterval)
	auth, err := services.NewAdminAuth("rifa", cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.SessionSecret, cfg.Admin.SessionTTL)
	if err != nil {
		logger.Fatalf("Failed to set up admin auth: %v", err)
	}

	// 3. Templates and assets
	templates, err := web.Templates()
	if err != nil {
		logger.Fatalf("Failed to parse templates: %v", err)
	}
	assets, err := web.Assets()
	if err != nil {
		logger.Fatalf("Failed to create assets sub-filesystem: %v", err)
	}

	// 4. Router
	httpHandler := handlers.NewHTTPHandler(raffle, draws, auth, templates, handlers.Options{
		Merchant: pix.Merchant{
			Key:  cfg.Pix.Key,
			Name: cfg.Pix.MerchantName,
			City: cfg.Pix.MerchantCity,
		},
		StaticPixCode:  cfg.Pix.StaticCode,
		WhatsAppNumber: cfg.WhatsApp.Number,
		SecureCookie:   cfg.Environment.IsProduction(),
	})
	r := gin.Default()
	r.StaticFS("/assets", http.FS(assets))
	httpHandler.RegisterRoutes(r)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 5. Pick up writes from other instances sharing the store
	raffle.StartSync(ctx, cfg.Raffle.SyncInterval)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: r,
	}
	go func() {
		logger.Infof("Server starting on http://%s", cfg.HTTP.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Signal received, starting graceful shutdown...")

	if raffle.HasUnsavedChanges() {
		logger.Warning("Shutting down with unsaved admin changes")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}
}
