// Command topictrends is the main entry point for the TopicTrends analytics
// engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/topictrends/internal/app"
	"github.com/MrWong99/topictrends/internal/config"
	"github.com/MrWong99/topictrends/internal/observe"
	"github.com/MrWong99/topictrends/pkg/provider/embeddings"
	"github.com/MrWong99/topictrends/pkg/provider/embeddings/openai"
	"github.com/MrWong99/topictrends/pkg/provider/embeddings/tei"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	reindex := flag.Bool("reindex-taxonomy", false, "rebuild the semantic category index, then serve")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "topictrends: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "topictrends: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("topictrends starting",
		"config", *configPath,
		"data_dir", cfg.Data.Dir,
		"wikis", cfg.Data.Wikis,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerEmbeddingsProviders(reg)

	// ── Application wiring ────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *reindex {
		n, err := application.IndexTaxonomy(ctx)
		if err != nil {
			slog.Error("taxonomy reindex failed", "err", err)
			return 1
		}
		slog.Info("taxonomy reindexed", "points", n)
	}

	slog.Info("engine ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerEmbeddingsProviders wires the embedding backends that ship with the
// engine into the registry.
func registerEmbeddingsProviders(reg *config.Registry) {
	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return openai.New(entry.APIKey, entry.Model,
			openai.WithBaseURL(entry.BaseURL),
			openai.WithDimensions(384),
			openai.WithTimeout(30*time.Second),
		)
	})
	reg.RegisterEmbeddings("tei", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return tei.New(entry.BaseURL, entry.Model,
			tei.WithTimeout(30*time.Second),
		)
	})
}

// newLogger builds the process-wide slog logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level.Slog(),
	}))
}
