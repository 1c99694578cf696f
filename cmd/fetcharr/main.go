// Command fetcharr runs the acquisition engine: scheduled RSS sync,
// download monitoring, completed-download scanning, and the management API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fetcharr/fetcharr/internal/api"
	"github.com/fetcharr/fetcharr/internal/blacklist"
	"github.com/fetcharr/fetcharr/internal/config"
	"github.com/fetcharr/fetcharr/internal/database"
	"github.com/fetcharr/fetcharr/internal/download"
	"github.com/fetcharr/fetcharr/internal/gateway"
	"github.com/fetcharr/fetcharr/internal/importer"
	"github.com/fetcharr/fetcharr/internal/indexer/newznab"
	"github.com/fetcharr/fetcharr/internal/logger"
	"github.com/fetcharr/fetcharr/internal/maintenance"
	"github.com/fetcharr/fetcharr/internal/rsssync"
	"github.com/fetcharr/fetcharr/internal/scanner"
	"github.com/fetcharr/fetcharr/internal/scheduler"
	"github.com/fetcharr/fetcharr/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("fetcharr", config.Version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().Str("version", config.Version).Msg("fetcharr starting")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	st := store.New(db.Conn())

	gw := gateway.New(gatewayOverrides(cfg), gatewayLimits(cfg.Gateway.Default), log.Logger)
	nz := newznab.New(gw, log.Logger)
	bl := blacklist.NewService(st, log.Logger)
	im := importer.New(st, cfg.Import.KeepSource, log.Logger)
	dm := download.NewManager(st, gw, im, bl, log.Logger)
	sync := rsssync.NewService(st, nz, dm, bl, log.Logger)
	sc := scanner.New(st, gw, im, cfg.Scanner.HistoryLimit, log.Logger)
	mt := maintenance.New(st, db.Path(), log.Logger)

	sched, err := scheduler.New(st, cfg.Tasks, log.Logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	tasks := []scheduler.TaskConfig{
		{Type: scheduler.TaskDownloadMonitor, Name: "Download Monitor", Interval: time.Minute, Func: dm.MonitorTick},
		{Type: scheduler.TaskCompletedScanner, Name: "Completed Download Scanner", Interval: 5 * time.Minute,
			Func: func(ctx context.Context) error { _, err := sc.Scan(ctx); return err }},
		{Type: scheduler.TaskRSSSync, Name: "RSS Sync", Interval: 15 * time.Minute,
			Func: func(ctx context.Context) error { _, err := sync.Sync(ctx); return err }},
		{Type: scheduler.TaskRequestedSearch, Name: "Requested Item Search", Interval: 60 * time.Minute,
			Func: func(ctx context.Context) error { _, err := sync.SearchWanted(ctx); return err }},
		{Type: scheduler.TaskBackup, Name: "Database Backup", Interval: 24 * time.Hour, Func: mt.Backup},
		{Type: scheduler.TaskBlacklistCleanup, Name: "Blacklist Cleanup", Interval: 24 * time.Hour, Func: mt.CleanBlacklist},
	}
	for _, task := range tasks {
		if err := sched.RegisterTask(task); err != nil {
			return fmt.Errorf("register task %s: %w", task.Type, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	server := api.NewServer(st, sched, dm, log.Logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server shutdown failed")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown failed")
	}

	log.Info().Msg("fetcharr stopped")
	return nil
}

func gatewayLimits(p config.ProviderLimit) gateway.Limits {
	return gateway.Limits{
		Interval:    p.Interval,
		IntervalCap: p.IntervalCap,
		Concurrency: p.Concurrency,
		Timeout:     p.Timeout,
	}
}

func gatewayOverrides(cfg *config.Config) map[string]gateway.Limits {
	out := make(map[string]gateway.Limits, len(cfg.Gateway.Providers))
	for key, p := range cfg.Gateway.Providers {
		out[key] = gatewayLimits(p)
	}
	return out
}
