package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"slack-relay/handler"
	"slack-relay/internal/app"
	"slack-relay/internal/config"
	"slack-relay/internal/httpserver"
	"slack-relay/internal/logger"
	"slack-relay/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("slack-relay", "development", "info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.ServiceName, cfg.Environment, cfg.LogLevel)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AWS config")
	}

	// Turns run on the pool after the request has been acknowledged.
	pool := worker.NewPool(worker.Config{
		WorkerCount:     cfg.WorkerCount,
		QueueSize:       cfg.WorkerQueueSize,
		TaskTimeout:     cfg.TaskTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, log)
	pool.Start(context.Background())

	relay, err := app.Build(ctx, cfg, log, app.Options{AWS: awsCfg, Scheduler: pool})
	if err != nil {
		pool.Stop()
		log.Fatal().Err(err).Msg("failed to assemble relay")
	}

	var install handler.Installer
	if relay.Install != nil {
		install = relay.Install
	}
	srv := httpserver.New(cfg, log, relay.Relay, install)
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server stopped with error")
	}

	pool.Stop()
	if err := relay.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close store")
	}
	log.Info().Msg("shutdown complete")
}
