// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

// Command taskexec-server runs the streaming task-execution service with the
// built-in demo, chat and backtest handlers registered.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/taskstream/taskexec/executor"
	"github.com/taskstream/taskexec/handlers"
	"github.com/taskstream/taskexec/internal/config"
	"github.com/taskstream/taskexec/internal/metrics"
	"github.com/taskstream/taskexec/progress"
	"github.com/taskstream/taskexec/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "taskexec-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	registry := executor.NewRegistry().WithLogger(logger)
	handlers.RegisterAll(registry)

	engineOpts := []executor.Option{
		executor.WithLogger(logger),
		executor.WithObserver(metrics.FrameObserver()),
	}

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		publisher := progress.NewPublisher(redisClient, logger)
		engineOpts = append(engineOpts, executor.WithObserver(publisher.Observer()))
		logger.Info("progress mirroring enabled", "addr", cfg.Redis.Addr)
	}

	engine := executor.New(registry, engineOpts...)
	metrics.RegisterActiveTasks(engine)

	serverOpts := []server.Option{server.WithLogger(logger)}
	if cfg.Auth.Enabled {
		serverOpts = append(serverOpts, server.WithAuthSecret([]byte(cfg.Auth.Secret)))
	}
	srv := server.New(engine, serverOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(cfg.Server.Addr())
	}()

	logger.Info("taskexec server started",
		"addr", cfg.Server.Addr(), "handlers", registry.Methods())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace", cfg.Shutdown.Grace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Grace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
