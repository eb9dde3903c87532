// Command experimentd runs the experiment orchestration core's HTTP API
// server: session runtime, matchmaking, treatment assignment, chat, and
// agent-triggered LLM streaming.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pairium/experimentd/pkg/agentrunner"
	"github.com/pairium/experimentd/pkg/api"
	"github.com/pairium/experimentd/pkg/chat"
	"github.com/pairium/experimentd/pkg/config"
	"github.com/pairium/experimentd/pkg/eventbus"
	"github.com/pairium/experimentd/pkg/llmstream"
	"github.com/pairium/experimentd/pkg/matchmaking"
	"github.com/pairium/experimentd/pkg/runtime"
	"github.com/pairium/experimentd/pkg/store"
	"github.com/pairium/experimentd/pkg/treatment"
)

// idempotencySweepInterval bounds how often expired reservations
// (pkg/store.IdempotencyTTL old) are purged so the table doesn't grow
// without bound.
const idempotencySweepInterval = 15 * time.Minute

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"), "path to a .env file to load")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", *envFile, "error", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		os.Exit(1)
	}

	dbConfig, err := store.LoadConfigFromEnv()
	if err != nil {
		slog.Error("failed to load database config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := store.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("connected to postgres, migrations applied")

	agents, err := config.LoadAgentRegistry(settings.AgentsFile)
	if err != nil {
		slog.Error("failed to load agent registry", "path", settings.AgentsFile, "error", err)
		os.Exit(1)
	}
	slog.Info("loaded agent registry", "count", agents.Len())

	bus := eventbus.New()
	counters := treatment.NewCounters()
	llm := llmstream.NewRegistry(settings.AnthropicAPIKey, settings.OpenAIAPIKey)

	rt := runtime.New(dbClient, bus, counters)
	runner := agentrunner.New(dbClient, bus, llm, agents)
	orchestrator := chat.New(dbClient, bus, runner)
	scheduler := matchmaking.New(dbClient, bus, counters)

	server := api.NewServer(rt, orchestrator, scheduler, bus, settings.CORSOrigins)

	go sweepIdempotency(ctx, dbClient)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ":"+settings.Port)
		if err := server.Start(":" + settings.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			slog.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// sweepIdempotency periodically purges expired idempotency reservations
// until ctx is cancelled.
func sweepIdempotency(ctx context.Context, dbClient *store.Client) {
	ticker := time.NewTicker(idempotencySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := dbClient.Idempotency.Sweep(ctx)
			if err != nil {
				slog.Error("idempotency sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("swept expired idempotency reservations", "count", n)
			}
		}
	}
}
