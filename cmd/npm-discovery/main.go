// Command npm-discovery sweeps the npm registry for every package matching a
// query, streaming results as they are found, and optionally enriches each
// package with its packument using bounded concurrency. Ctrl-C stops the
// sweep cleanly; results printed so far stay valid.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pkgscout/npm-discovery/pkg/cache"
	"github.com/pkgscout/npm-discovery/pkg/discovery"
	"github.com/pkgscout/npm-discovery/pkg/executor"
	"github.com/pkgscout/npm-discovery/pkg/logging"
	"github.com/pkgscout/npm-discovery/pkg/ratelimit"
	"github.com/pkgscout/npm-discovery/pkg/registry"
	"github.com/pkgscout/npm-discovery/pkg/transport"
)

func main() {
	query := flag.String("query", "", "search text (required)")
	pageSize := flag.Int("page-size", discovery.DefaultPageSize, "results per search page")
	concurrency := flag.Int("concurrency", 8, "max parallel packument fetches")
	enrich := flag.Bool("enrich", false, "fetch the packument for every discovered package")
	pretty := flag.Bool("pretty", false, "human-readable log output")
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: npm-discovery -query <text> [-enrich] [-concurrency N]")
		os.Exit(2)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: *pretty,
		Output: os.Stderr,
	})

	// Ctrl-C is the user's stop action: it cancels the shared context and
	// every component stops at its next checkpoint without an error.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp := transport.New(transportConfig())
	client := registry.NewClient(tp, registryConfig(ctx, logger))

	engine := discovery.NewEngine(client, discovery.Config{
		PageSize:      *pageSize,
		WindowCeiling: discovery.DefaultWindowCeiling,
		Alphabet:      discovery.DefaultAlphabet,
	})

	start := time.Now()
	var found []registry.Package
	err := engine.Run(ctx, *query, func(b discovery.Batch) {
		found = append(found, b.Items...)
		if b.Progress > 0 {
			fmt.Printf("found %d packages (~%d reported, %.0f%% of partitions)\n",
				b.Unique, b.Total, b.Progress*100)
		} else {
			fmt.Printf("found %d packages (~%d reported)\n", b.Unique, b.Total)
		}
	})
	if err != nil {
		logger.Error().Err(err).Msg("Discovery failed")
		os.Exit(1)
	}
	if ctx.Err() != nil {
		// Stopped by the user: no error, just report what was found.
		fmt.Printf("stopped: %d packages found in %s\n", len(found), time.Since(start).Round(time.Millisecond))
		return
	}
	fmt.Printf("done: %d packages found in %s\n", len(found), time.Since(start).Round(time.Millisecond))

	if !*enrich || len(found) == 0 {
		return
	}

	stats := executor.Run(ctx, found, *concurrency,
		func(ctx context.Context, pkg registry.Package) (*registry.Packument, error) {
			return client.Packument(ctx, pkg.Name)
		},
		func(pkg registry.Package, p registry.Packument) {
			fmt.Printf("%-40s latest=%s license=%s\n", pkg.Name, p.DistTags["latest"], p.License)
		},
		func(pkg registry.Package, err error) {
			logger.Warn().Err(err).Str("package", pkg.Name).Msg("Enrichment failed")
		},
	)

	if ctx.Err() != nil {
		fmt.Printf("stopped: %d enriched, %d failed, %d pending\n",
			stats.Completed, stats.Failed, len(found)-stats.Completed-stats.Failed)
		return
	}
	if stats.Failed > 0 {
		fmt.Printf("partial: %d enriched, %d failed\n", stats.Completed, stats.Failed)
		os.Exit(1)
	}
	fmt.Printf("enriched %d packages\n", stats.Completed)
}

func transportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.UserAgent = getEnv("USER_AGENT", "npm-discovery/0.1.0")
	cfg.Limiter = ratelimit.New(ratelimit.DefaultConfig())
	return cfg
}

// registryConfig wires the optional Redis packument cache when REDIS_URL is
// set; without it the client fetches packuments directly every time.
func registryConfig(ctx context.Context, logger zerolog.Logger) registry.Config {
	cfg := registry.DefaultConfig()
	cfg.BaseURL = getEnv("REGISTRY_URL", registry.DefaultBaseURL)

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return cfg
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("redis", redisURL).Msg("Redis unavailable, packument cache disabled")
		return cfg
	}

	cfg.Cache = cache.NewManager(redisClient)
	logger.Info().Str("redis", redisURL).Msg("Packument cache enabled")
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
