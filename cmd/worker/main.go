// Command worker runs the Job Runner (C7): it drains the parse/chunk/embed
// queue produced by cmd/apiserver's POST /ingest and drives each document
// through the ingest pipeline to a searchable state.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"ragcore/internal/chunker"
	"ragcore/internal/config"
	"ragcore/internal/jobrunner"
	"ragcore/internal/parser"
	"ragcore/internal/platform/bootstrap"
	"ragcore/internal/platform/logging"
	"ragcore/internal/platform/tracing"
)

func main() {
	if err := run(); err != nil {
		logging.FromContext(nil).Fatal().Err(err).Msg("worker")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init("", cfg.LogLevel)
	log := logging.FromContext(nil)

	shutdownTracing, err := tracing.Init("ragcore-worker")
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap backends: %w", err)
	}
	defer res.Close()

	runner := jobrunner.New(res.Store, res.Objects, parser.New(), chunker.New(chunker.DefaultConfig()), res.Embed, res.Index, res.Bus, cfg.Jobs)

	log.Info().
		Int("parse_workers", cfg.Jobs.ParseWorkers).
		Int("chunk_workers", cfg.Jobs.ChunkWorkers).
		Int("embed_workers", cfg.Jobs.EmbedWorkers).
		Msg("worker starting")

	runner.Start(ctx)
	<-ctx.Done()
	runner.Wait()

	log.Info().Msg("worker stopped")
	return nil
}
