package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ludio/questplayer/internal/api"
	"github.com/ludio/questplayer/internal/artwork"
	"github.com/ludio/questplayer/internal/catalog"
	"github.com/ludio/questplayer/internal/config"
	"github.com/ludio/questplayer/internal/playback"
	"github.com/ludio/questplayer/internal/quest"
	"github.com/ludio/questplayer/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	configAppName = "app"
	configExt     = "env"
	configDir     = "config"
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout", "app_log.log"}
	cfg.ErrorOutputPaths = []string{"stderr", "app_log.log"}
	return cfg.Build()
}

func main() {
	zapLogger, err := newLogger()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "can init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	logger := zapLogger.Named("server")

	logger.Info("running server", zap.Int("pid", os.Getpid()))

	cfg, err := readConfig()
	if err != nil || cfg == nil {
		logger.Fatal("cant read config, check file", zap.Error(err), zap.String("name", configAppName))
	}
	gin.SetMode(cfg.GinMode)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("cant create data dir", zap.Error(err), zap.String("dir", cfg.DataDir))
	}
	if err := os.MkdirAll(cfg.ArtworkDir, 0o755); err != nil {
		logger.Fatal("cant create artwork dir", zap.Error(err), zap.String("dir", cfg.ArtworkDir))
	}

	if !cfg.APIKeyUsable() {
		logger.Warn("youtube api key is missing or placeholder, quests will fail until it is set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, compactor, err := newStore(cfg)
	if err != nil {
		logger.Fatal("cant create progress store", zap.Error(err), zap.String("mode", cfg.StorageMode))
	}

	fetcher, err := catalog.NewClient(&catalog.ClientOptions{
		HTTPClient:   &http.Client{Timeout: cfg.FetchTimeout},
		APIKey:       cfg.APIKey,
		APIKeyUsable: cfg.APIKeyUsable(),
		UserAgent:    cfg.UserAgent,
		PageSize:     cfg.FetchPageSize,
		Logger:       logger.Named("catalog"),
	})
	if err != nil {
		logger.Fatal("cant create catalog client", zap.Error(err))
	}

	bridge := playback.NewBridge(logger.Named("playback"))

	prefetcher, err := newPrefetcher(ctx, cfg, logger.Named("artwork"))
	if err != nil {
		logger.Fatal("cant create artwork prefetcher", zap.Error(err))
	}
	if err := prefetcher.Start(); err != nil {
		logger.Fatal("cant start artwork prefetcher", zap.Error(err))
	}

	policy, err := quest.NewPolicy(cfg.UnlockPolicy, cfg.UnlockUnitCost, cfg.UnlockBatchSize)
	if err != nil {
		logger.Fatal("cant create unlock policy", zap.Error(err), zap.String("policy", cfg.UnlockPolicy))
	}

	engine, err := quest.NewEngine(ctx, &quest.Options{
		Fetcher:     fetcher,
		Store:       store,
		Transport:   bridge,
		Artwork:     prefetcher,
		Logger:      logger.Named("quest"),
		Policy:      policy,
		PageSize:    cfg.FetchPageSize,
		MaxTracks:   cfg.MaxTracks,
		EndedReward: cfg.TrackEndReward,
		ClickReward: cfg.ClickReward,
		AckTTL:      cfg.AckTTL,
	})
	if err != nil {
		logger.Fatal("cant create quest engine", zap.Error(err))
	}
	engine.Start(ctx)

	srv, err := api.NewServer(&api.ServerOptions{
		Engine:  engine,
		Bridge:  bridge,
		Artwork: prefetcher,
		Logger:  logger,

		Addr: cfg.ServerAddr,
	})
	if err != nil {
		logger.Fatal("cant create api server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.ServerAddr))
		if err := srv.Run(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				return
			}
			errCh <- err
		}
	}()

	compactStop := startCompaction(ctx, compactor, cfg, logger.Named("compact"))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	offCtx, offCanc := context.WithTimeout(context.Background(), 30*time.Second)
	defer offCanc()
	if err := srv.Shutdown(offCtx); err != nil {
		logger.Error("cant shutdown server", zap.Error(err))
	}

	engine.Close()
	prefetcher.Stop()
	if compactStop != nil {
		compactStop()
	}

	if compactor != nil {
		cCtx, cCanc := context.WithTimeout(context.Background(), cfg.CompactTimeout)
		if err := compactor.CompactJournal(cCtx); err != nil {
			logger.Error("cant compact journal", zap.Error(err))
		}
		cCanc()
	}
	if err := store.Close(); err != nil {
		logger.Error("cant close store", zap.Error(err))
	}
	logger.Info("shutdown done")
}

func readConfig() (*config.AppConfig, error) {
	return config.LoadAppConfig(configAppName, configExt, configDir, ".")
}

func newStore(cfg *config.AppConfig) (storage.ProgressStore, storage.JournalCompactor, error) {
	switch cfg.StorageMode {
	case "bbolt":
		store, err := storage.NewBoltProgressStore(filepath.Join(cfg.DataDir, "progress.db"))
		return store, nil, err
	case "file":
		store, err := storage.NewFileProgressStore(
			filepath.Join(cfg.DataDir, "progress.json"),
			filepath.Join(cfg.DataDir, "journal.log"),
		)
		return store, store, err
	}
	return nil, nil, fmt.Errorf("unknown storage mode %q", cfg.StorageMode)
}

func newPrefetcher(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*artwork.Prefetcher, error) {
	fetcher, err := artwork.NewFetcher(ctx, &artwork.FetcherConfig{
		Client:          &http.Client{Timeout: cfg.ArtworkTimeout},
		Dir:             cfg.ArtworkDir,
		Timeout:         cfg.ArtworkTimeout,
		UserAgent:       cfg.UserAgent,
		MaxAttempts:     1,
		BackoffDuration: time.Second,
	})
	if err != nil {
		return nil, err
	}
	pool, err := artwork.NewPool(cfg.ArtworkWorkers, fetcher, cfg.ArtworkQueueSize, logger)
	if err != nil {
		return nil, err
	}
	return artwork.NewPrefetcher(pool, fetcher, logger)
}

// startCompaction periodically folds the journal into the snapshot.
// Only the file store compacts; bbolt needs none.
func startCompaction(ctx context.Context, compactor storage.JournalCompactor, cfg *config.AppConfig, logger *zap.Logger) func() {
	if compactor == nil {
		return nil
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(cfg.CompactInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logger.Info("starting journal compaction")
				cCtx, canc := context.WithTimeout(context.Background(), cfg.CompactTimeout)
				if err := compactor.CompactJournal(cCtx); err != nil {
					logger.Error("journal compaction failed", zap.Error(err))
				}
				canc()
				logger.Info("journal compaction done")
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		close(stopCh)
		<-doneCh
	}
}
