package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-ledger-sync/internal/archive"
	appcfg "github.com/park285/chess-ledger-sync/internal/config"
	"github.com/park285/chess-ledger-sync/internal/httpapi"
	"github.com/park285/chess-ledger-sync/internal/ledger"
	"github.com/park285/chess-ledger-sync/internal/msgcat"
	"github.com/park285/chess-ledger-sync/internal/obslog"
	"github.com/park285/chess-ledger-sync/internal/session"
	"github.com/park285/chess-ledger-sync/internal/snapcache"
	"github.com/park285/chess-ledger-sync/internal/stream"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	client := ledger.NewClient(cfg.LedgerBaseURL,
		ledger.WithHeaderProvider(cfg.Headers),
		ledger.WithRetry(cfg.LedgerRetryMax),
	)

	opts := session.Options{
		GameID: cfg.GameID,
		Player: cfg.PlayerAddress,
		Reader: client,
		Writer: client,
		Stream: stream.Config{
			PollInterval:        cfg.PollInterval(),
			ResubscribeCooldown: cfg.ResubscribeCooldown(),
			DeliveryTimeout:     cfg.DeliveryTimeout(),
			MaxPollFailures:     cfg.MaxPollFailures,
		},
		Logger: logger,
	}

	// Push feed is optional; without it the session polls
	if cfg.LedgerWSURL != "" {
		ws := stream.NewWebSocketSource(cfg.LedgerWSURL)
		ws.SetHeaderProvider(cfg.Headers)
		opts.Source = ws
	} else {
		logger.Info("ws_disabled", zap.String("reason", "LEDGER_WS_URL not set"))
	}

	var cache *snapcache.Store
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		cache, err = snapcache.Open(ctx, cfg.RedisURL, cfg.SnapshotCacheTTL())
		cancel()
		if err != nil {
			logger.Warn("snapshot_cache_disabled", zap.Error(err))
			cache = nil
		} else {
			opts.Cache = cache
		}
	}

	var repo archive.Repository
	if cfg.DatabaseURL != "" {
		pg, err := archive.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive_init_error", zap.Error(err))
		}
		repo = pg
	} else {
		repo = archive.NewMemoryRepository()
	}
	opts.Archive = repo

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_init_error", zap.Error(err))
	}
	opts.Catalog = cat

	sess, err := session.New(opts)
	if err != nil {
		logger.Fatal("session_init_error", zap.Error(err))
	}
	sess.OnStateChange(func(from, to stream.Mode) {
		logger.Info("subscription_state", zap.Stringer("from", from), zap.Stringer("to", to))
	})

	if err := sess.Start(context.Background()); err != nil {
		logger.Fatal("session_start_error", zap.Error(err))
	}
	logger.Info("session_started",
		zap.String("game_id", sess.GameID()),
		zap.String("player", sess.Player()),
		zap.String("session_id", sess.ID()),
	)

	srv := httpapi.New(sess, cat, logger)
	go func() {
		if err := srv.Start(cfg.HTTPAddr); err != nil {
			logger.Error("http_server_error", zap.Error(err))
		}
	}()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if err := sess.Close(ctx); err != nil {
		logger.Warn("session_close_error", zap.Error(err))
	}
	if cache != nil {
		_ = cache.Close()
	}
	_ = repo.Close()
	logger.Info("shutdown_complete")
}
