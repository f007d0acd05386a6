package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shapedtime/syncstream/internal/api"
	"github.com/shapedtime/syncstream/internal/auth"
	"github.com/shapedtime/syncstream/internal/config"
	"github.com/shapedtime/syncstream/internal/metrics"
	"github.com/shapedtime/syncstream/internal/room"
	"github.com/shapedtime/syncstream/internal/store"
	"github.com/shapedtime/syncstream/internal/torrent"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	slog.Info("starting syncstream", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		slog.Error("failed to create directories", "error", err)
		os.Exit(1)
	}

	st, err := store.OpenSQLite(cfg.Room.DBURL)
	if err != nil {
		slog.Error("failed to open room store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("room store initialized", "db_url", cfg.Room.DBURL)

	pieceStorage, _, pieceCompletion, err := torrent.InitStorage(
		cfg.Torrent.MetadataFolder,
		cfg.Torrent.GlobalCacheSize,
	)
	if err != nil {
		slog.Error("failed to initialize torrent storage", "error", err)
		os.Exit(1)
	}
	defer pieceCompletion.Close()

	itemStore, err := torrent.NewItemStore(
		filepath.Join(cfg.Torrent.MetadataFolder, "dht-items"),
		2*time.Hour,
	)
	if err != nil {
		slog.Error("failed to initialize DHT item store", "error", err)
		os.Exit(1)
	}
	defer itemStore.Close()

	peerID, err := torrent.GetOrCreatePeerID(
		filepath.Join(cfg.Torrent.MetadataFolder, "peer-id"),
	)
	if err != nil {
		slog.Error("failed to get peer ID", "error", err)
		os.Exit(1)
	}

	torrentClient, err := torrent.NewClient(&cfg.Torrent, &torrent.ClientConfig{
		Storage:         pieceStorage,
		ItemStore:       itemStore,
		PeerID:          peerID,
		PieceCompletion: pieceCompletion,
	})
	if err != nil {
		slog.Error("failed to create torrent client", "error", err)
		os.Exit(1)
	}
	slog.Info("torrent client created")

	var activityManager *torrent.ActivityManager
	if cfg.Torrent.IdleEnabled {
		activityManager = torrent.NewActivityManager(
			time.Duration(cfg.Torrent.IdleTimeout)*time.Second,
			cfg.Torrent.StartPaused,
		)
		activityManager.Start()
		slog.Info("activity manager started",
			"idle_timeout_seconds", cfg.Torrent.IdleTimeout,
			"start_paused", cfg.Torrent.StartPaused,
		)
	}

	torrentManager := torrent.NewManagerWithActivity(torrentClient, &cfg.Torrent, activityManager)

	reg := prometheus.NewRegistry()
	var roomMetrics *metrics.Metrics
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		roomMetrics = metrics.New(reg)
	}

	roomStorage := room.NewStorageWithMetrics(st, torrentManager, &cfg.Torrent, cfg.Room.InactivityPeriod(), roomMetrics)
	storageCtx, cancelStorage := context.WithCancel(context.Background())
	go roomStorage.Run(storageCtx)

	if cfg.Metrics.Enabled {
		reg.MustRegister(metrics.NewRoomCollector(roomStorage))
		metricsServer = metrics.NewServer(cfg.Metrics.Port, reg)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	authenticator := auth.NewHMACAuthenticator(cfg.Auth.AuthSecretKey)

	apiServer := api.NewServer(roomStorage, st, &cfg.Torrent, authenticator)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: apiServer.Handler(),
	}

	go func() {
		slog.Info("starting API server", "port", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	slog.Info("syncstream is ready",
		"api_url", fmt.Sprintf("http://localhost:%d", cfg.Server.HTTPPort),
		"metrics_enabled", cfg.Metrics.Enabled,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("received signal, shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("API server shutdown error", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}

	roomStorage.Shutdown(ctx)
	cancelStorage()

	if err := torrentManager.Close(); err != nil {
		slog.Error("torrent manager close error", "error", err)
	}

	slog.Info("syncstream stopped")
}
