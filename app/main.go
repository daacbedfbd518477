package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattanmr/job-posting-aggregator/app/api"
	"github.com/mattanmr/job-posting-aggregator/app/cfg"
	"github.com/mattanmr/job-posting-aggregator/app/database"
	"github.com/mattanmr/job-posting-aggregator/app/events"
	"github.com/mattanmr/job-posting-aggregator/app/jobs"
	"github.com/mattanmr/job-posting-aggregator/app/provider"
	"github.com/mattanmr/job-posting-aggregator/app/snapshot"
	"github.com/mattanmr/job-posting-aggregator/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	logger, closeLog := cfg.SetupLogger(appCfg.LogFile, appCfg.Debug)
	slog.SetDefault(logger)
	defer closeLog()

	if err := run(appCfg); err != nil {
		slog.Error("Job aggregator stopped with error", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting job aggregator", "version", appCfg.Version, "data_dir", appCfg.DataDir)

	db, err := database.NewConnection(appCfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}
	defer db.Close()

	keywordRepo, err := database.NewKeywordRepository(db)
	if err != nil {
		return err
	}
	scheduleRepo, err := database.NewScheduleRepository(db, appCfg.IntervalHours)
	if err != nil {
		return err
	}
	historyRepo, err := database.NewHistoryRepository(db, appCfg.HistoryLimit)
	if err != nil {
		return err
	}
	runStateRepo := database.NewRunStateRepository(db)

	snapshots, err := snapshot.NewStore(db.Path(snapshot.DirName))
	if err != nil {
		return err
	}
	slog.Info("Storage ready", "keywords", keywordRepo.Count(), "snapshots", snapshots.Count(), "interval_hours", scheduleRepo.Get().IntervalHours)

	var cache provider.ResultCache
	if appCfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisCache, err := provider.NewRedisCache(ctx, appCfg.RedisURL)
		cancel()
		if err != nil {
			slog.Warn("Search cache unavailable, continuing without it", "error", err)
		} else {
			defer redisCache.Close()
			cache = redisCache
		}
	}

	searchProvider := provider.Build(appCfg, cache)
	slog.Info("Search provider configured", "provider", searchProvider.Name())

	hub := events.NewHub()
	defer hub.Close()

	scheduler := tasks.NewScheduler(tasks.Deps{
		Keywords:  keywordRepo,
		Schedule:  scheduleRepo,
		RunState:  runStateRepo,
		History:   historyRepo,
		Snapshots: snapshots,
		Provider:  searchProvider,
		Extractor: jobs.NewExtractor(),
		Events:    hub,
	}, tasks.ConfigFrom(appCfg))
	scheduler.Start()

	handler := api.NewHandler(keywordRepo, scheduleRepo, historyRepo, snapshots, scheduler, searchProvider, hub, appCfg.Version)
	server := api.NewServer(handler)

	// No write timeout: manual collection runs and event streams outlive it.
	httpServer := &http.Server{
		Addr:              ":" + appCfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down")

	// End event streams first so Shutdown is not held open by them.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop()
	slog.Info("Shutdown complete")

	return runErr
}
