// Command apiserver runs the HTTP Facade (C12): it accepts uploads, answers
// retrieval and generation requests, and serves the realtime job-progress
// WebSocket. Document processing itself runs out-of-process in cmd/worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/redis/go-redis/v9"

	"ragcore/internal/answer"
	"ragcore/internal/config"
	"ragcore/internal/httpapi"
	"ragcore/internal/llmprovider"
	"ragcore/internal/platform/bootstrap"
	"ragcore/internal/platform/logging"
	"ragcore/internal/platform/tracing"
	"ragcore/internal/quota"
	"ragcore/internal/realtime"
	"ragcore/internal/retriever"
)

func main() {
	if err := run(); err != nil {
		logging.FromContext(nil).Fatal().Err(err).Msg("apiserver")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init("", cfg.LogLevel)
	log := logging.FromContext(nil)

	shutdownTracing, err := tracing.Init("ragcore-apiserver")
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

	llm, err := llmprovider.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	rerank := retriever.NewReranker(cfg.Rerank)
	retr := retriever.New(res.Embed, res.Index, res.Store, rerank, cfg.Retrieval)

	answerCache, err := buildAnswerCache(cfg)
	if err != nil {
		return fmt.Errorf("init answer cache: %w", err)
	}
	orch := answer.New(retr, llm, answerCache, cfg.LLM, cfg.AnswerCacheTTL)

	tokenCounter, err := buildTokenCounter(cfg)
	if err != nil {
		return fmt.Errorf("init token counter: %w", err)
	}
	limiter := quota.New(cfg.Quota, tokenCounter)

	authn := httpapi.NewAuthenticator(cfg.Auth)
	gateway := realtime.New(res.Bus, authn, cfg.Realtime)

	server := httpapi.NewServer(cfg, res.Store, res.Objects, retr, orch, gateway, limiter)
	handler := otelhttp.NewHandler(server, "ragcore-api")

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpSrv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("apiserver listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info().Msg("apiserver stopped")
	return nil
}

// buildAnswerCache and buildTokenCounter reuse the REDIS_URL/BUS_URL
// variable for the answer cache and daily token counter too, rather than
// introducing separate connection strings for data that is operationally
// just as disposable as the event bus itself. Both fall back to an
// in-process store when no Redis backend is configured, matching
// config.Load's single-process-friendly defaults.
func buildAnswerCache(cfg config.Config) (answer.Cache, error) {
	if cfg.Bus.Backend != "redis" || cfg.Bus.URL == "" {
		return answer.NewMemoryCache(), nil
	}
	opts, err := redis.ParseURL(cfg.Bus.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return answer.NewRedisCache(opts.Addr, opts.Password, opts.DB)
}

func buildTokenCounter(cfg config.Config) (quota.TokenCounter, error) {
	if cfg.Bus.Backend != "redis" || cfg.Bus.URL == "" {
		return quota.NewMemoryTokenCounter(), nil
	}
	opts, err := redis.ParseURL(cfg.Bus.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return quota.NewRedisTokenCounter(opts.Addr, opts.Password, opts.DB)
}
