// Command backfill runs one geocode backfill batch: it selects address rows
// without coordinates, resolves them through Mapbox with a persistent
// fingerprint cache in front, and writes the results back in one transaction.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	kafkaadapter "github.com/couchcryptid/geocode-backfill/internal/adapter/kafka"
	"github.com/couchcryptid/geocode-backfill/internal/adapter/mapbox"
	"github.com/couchcryptid/geocode-backfill/internal/adapter/postgres"
	"github.com/couchcryptid/geocode-backfill/internal/config"
	"github.com/couchcryptid/geocode-backfill/internal/domain"
	"github.com/couchcryptid/geocode-backfill/internal/observability"
	"github.com/couchcryptid/geocode-backfill/internal/pipeline"
	"github.com/couchcryptid/geocode-backfill/internal/retry"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	summary, err := run(cfg, logger, metrics)
	pushMetrics(cfg, logger, metrics)
	if err != nil {
		logger.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	if summary.NothingToDo() {
		fmt.Println("Nothing to geocode.")
		return
	}
	fmt.Printf("Updated %d rows. Cached %d address keys.\n", summary.RowsUpdated, summary.CacheEntriesWritten)
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (pipeline.Summary, error) {
	ctx := context.Background()

	store, err := postgres.Open(ctx, cfg.DatabaseURL, retry.NewPolicy(config.MaxAttempts, retry.Linear(config.BackoffBase)), logger)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer store.Close()

	client := mapbox.NewClient(cfg.MapboxToken, mapbox.Options{
		Country: config.CountryFilter,
		Timeout: cfg.MapboxTimeout,
		Retry:   retry.NewPolicy(config.MaxAttempts, retry.Linear(config.BackoffBase)),
		Limiter: retry.NewLimiter(config.RequestInterval),
	}, metrics, logger)
	if cfg.MapboxToken == "" {
		logger.Warn("GEOCODE_API_KEY is not set, every miss will be cached as negative")
	}

	geocoder, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("create query cache: %w", err)
	}
	resolver := domain.NewResolver(geocoder, config.CountryName, logger)

	var opts []pipeline.Option
	if cfg.PublishEnabled() {
		publisher := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.Provider, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithPublisher(publisher))
		logger.Info("publishing coordinate updates", "topic", cfg.KafkaTopic)
	}

	backfill := pipeline.New(store, resolver, cfg.Provider, config.BatchSize, logger, metrics, opts...)
	return backfill.Run(ctx)
}

func pushMetrics(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := observability.Push(ctx, cfg.PushgatewayURL, metrics); err != nil {
		logger.Error("push metrics failed", "error", err)
	}
}
