package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/circle/backend/internal/media"
	"github.com/anonto42/circle/backend/internal/metrics"
	"github.com/anonto42/circle/backend/internal/repositories"
	"github.com/anonto42/circle/backend/internal/repositories/memory"
	"github.com/anonto42/circle/backend/internal/router"
	"github.com/anonto42/circle/backend/pkg/config"
	"github.com/anonto42/circle/backend/pkg/firebase"
	"github.com/anonto42/circle/backend/pkg/logging"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Firebase
	var firebaseApp *firebase.App
	if cfg.FirebaseCredentialsPath != "" {
		app, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, cfg.FirebaseStorageBucket)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize Firebase")
		}
		firebaseApp = app
	}

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	uploader, err := newUploader(ctx, cfg, firebaseApp)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize media uploader")
	}

	deps := router.Deps{
		Store:    store,
		Ingestor: media.NewIngestor(uploader, cfg.MediaMaxBytes),
	}
	if firebaseApp != nil {
		deps.Firebase = firebaseApp.AuthClient
	}
	e := router.New(cfg, deps)

	go func() {
		if err := metrics.Serve(ctx, ":"+cfg.MetricsPort); err != nil {
			logging.Error().Err(err).Msg("Metrics listener stopped")
		}
	}()

	go func() {
		logging.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Str("media", uploader.Name()).Msg("Server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// openStore connects the configured store. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (*repositories.Store, func()) {
	if cfg.StoreDriver == config.StoreMemory {
		logging.Warn().Msg("Using the in-memory store; data is lost on restart")
		return memory.NewStore(), func() {}
	}

	// Initialize database connections
	db, err := config.InitDB(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize databases")
	}
	mdb := db.Mongo.Database(cfg.MongoDatabase)
	if err := repositories.Migrate(ctx, db.Postgres, mdb); err != nil {
		db.CloseDB()
		logging.Fatal().Err(err).Msg("Failed to migrate databases")
	}
	return repositories.NewDatabaseStore(db.Postgres, mdb, cfg.MongoTransactions), db.CloseDB
}

func newUploader(ctx context.Context, cfg *config.Config, app *firebase.App) (media.Uploader, error) {
	breaker := media.BreakerSettings{ConsecutiveFailures: 5, Timeout: 30 * time.Second}

	switch cfg.MediaDriver {
	case config.MediaFirebase:
		if app == nil {
			return nil, errors.New("firebase media driver requires FIREBASE_CREDENTIALS_PATH")
		}
		bucket, err := app.Bucket(ctx, cfg.FirebaseStorageBucket)
		if err != nil {
			return nil, err
		}
		return media.WithCircuitBreaker(media.NewFirebaseUploader(bucket, cfg.FirebaseStorageBucket), breaker), nil
	case config.MediaCloudinary:
		return media.WithCircuitBreaker(media.NewCloudinaryUploader(media.CloudinaryConfig{
			CloudName: cfg.CloudinaryCloud,
			APIKey:    cfg.CloudinaryKey,
			APISecret: cfg.CloudinarySecret,
			Folder:    cfg.CloudinaryFolder,
		}), breaker), nil
	default:
		disk, err := media.NewDiskUploader(cfg.MediaDir, cfg.MediaBaseURL)
		if err != nil {
			return nil, err
		}
		return disk, nil
	}
}
