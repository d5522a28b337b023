package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/refound/refound/internal/api"
	"github.com/refound/refound/internal/config"
	"github.com/refound/refound/internal/embedding"
	"github.com/refound/refound/internal/engine"
	"github.com/refound/refound/internal/lock"
	"github.com/refound/refound/internal/storage"
	"github.com/refound/refound/internal/store"
	"github.com/refound/refound/internal/vectorindex"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting refound matching service...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/refound.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize PostgreSQL store
	st, err := store.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("PostgreSQL unavailable", zap.Error(err))
	}
	if err := st.Migrate(context.Background(), "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Per-item locks: Redis when configured, in-process otherwise
	var locks lock.Locker = lock.NewMemory()
	if cfg.Database.Redis.URL != "" {
		rl, rErr := lock.NewRedis(cfg.Database.Redis.URL, logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, falling back to in-process locks", zap.Error(rErr))
		} else {
			locks = rl
			logger.Info("Redis locks initialized")
		}
	}

	// Embedding sidecar
	provider := embedding.NewClipProvider(embedding.Config{
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})

	// Qdrant write-through index (optional)
	var index engine.Index
	var qdrant *vectorindex.Client
	if cfg.Database.Qdrant.Host != "" {
		qc, qErr := vectorindex.NewClient(vectorindex.Config{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if qErr != nil {
			logger.Warn("Qdrant unavailable, running without vector index", zap.Error(qErr))
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if eErr := qc.EnsureCollections(ctx, uint64(cfg.Embedding.Dimension)); eErr != nil {
				logger.Warn("Qdrant collection setup failed, running without vector index", zap.Error(eErr))
				qc.Close()
			} else {
				qdrant = qc
				index = qc
				logger.Info("Qdrant index initialized")
			}
			cancel()
		}
	}

	files := storage.NewLocal(cfg.Storage.ImagesDir)

	eng := engine.New(st, provider, files, locks, index, engine.Config{
		TextWeight:       cfg.Matching.TextWeight,
		ImageWeight:      cfg.Matching.ImageWeight,
		EmbeddingVersion: cfg.Matching.EmbeddingVersion,
	}, logger)

	handler := api.NewHandler(eng, api.Defaults{
		Similar: api.OperationDefaults{
			Threshold:  cfg.Matching.Threshold,
			MaxResults: cfg.Matching.MaxResults,
		},
	}, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("refound listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down refound...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	if qdrant != nil {
		qdrant.Close()
	}
	st.Close()
}
