// Package discovery enumerates effectively all packages matching a query,
// working around the registry search window ceiling.
//
// The registry serves at most WindowCeiling results per query text. When the
// upstream-reported total exceeds what baseline paging can reach, the engine
// partitions the result space by appending each symbol of a fixed alphabet to
// the query text and paging each narrowed sub-query within its own window.
// A per-run seen-set guarantees every package name is emitted at most once.
//
// This is a best-effort sweep: a query whose true match count exceeds
// WindowCeiling * (len(Alphabet)+1) is silently under-enumerated.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pkgscout/npm-discovery/pkg/registry"
	"github.com/pkgscout/npm-discovery/pkg/transport"
)

// Prometheus metrics for discovery runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discovery_runs_total",
		Help: "Total discovery runs by outcome",
	}, []string{"outcome"}) // "completed", "cancelled", "failed"

	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_pages_total",
		Help: "Total search pages fetched across all runs",
	})

	packagesFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_packages_found_total",
		Help: "Total unique packages emitted across all runs",
	})

	partitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discovery_partitions_total",
		Help: "Total partition sub-queries by outcome",
	}, []string{"outcome"}) // "completed", "failed"
)

// DefaultAlphabet is the partition alphabet: one sub-query per symbol.
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// DefaultWindowCeiling is the maximum offset+size the registry serves for a
// single query text.
const DefaultWindowCeiling = 10000

// DefaultPageSize is the registry's maximum search page size.
const DefaultPageSize = 250

// Config holds the engine configuration.
type Config struct {
	// PageSize is the number of results requested per page.
	PageSize int

	// WindowCeiling is the upstream result window limit per query text.
	WindowCeiling int

	// Alphabet is the ordered set of partition symbols.
	Alphabet string

	// Optional relevance weights forwarded to every search query.
	Quality     float64
	Popularity  float64
	Maintenance float64
}

// DefaultConfig returns the configuration matching the public registry limits.
func DefaultConfig() Config {
	return Config{
		PageSize:      DefaultPageSize,
		WindowCeiling: DefaultWindowCeiling,
		Alphabet:      DefaultAlphabet,
	}
}

// Searcher fetches one page of search matches.
type Searcher interface {
	Search(ctx context.Context, q registry.Query) (*registry.SearchPage, error)
}

// Batch is one increment of discovered packages.
type Batch struct {
	// Items are the packages not seen earlier in this run, upstream order.
	Items []registry.Package

	// Unique is the running count of unique package names seen so far.
	Unique int

	// Total is the upstream total estimate for the query that produced this
	// batch. An estimate only; it may disagree across sub-queries.
	Total int

	// Progress is the fraction of partition sub-queries completed when this
	// batch was emitted; 0 during the baseline phase.
	Progress float64
}

// Engine runs exhaustive discovery. All state is per-run: an Engine may be
// reused for sequential runs but a run cannot be resumed, only restarted.
type Engine struct {
	searcher Searcher
	config   Config
	logger   zerolog.Logger
}

// NewEngine creates an engine on top of s.
func NewEngine(s Searcher, cfg Config) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.WindowCeiling <= 0 {
		cfg.WindowCeiling = DefaultWindowCeiling
	}
	if cfg.Alphabet == "" {
		cfg.Alphabet = DefaultAlphabet
	}
	return &Engine{
		searcher: s,
		config:   cfg,
		logger:   log.With().Str("component", "discovery").Logger(),
	}
}

// Run discovers all packages matching text, calling emit for every batch of
// newly-seen packages as it is fetched. emit is always called from Run's
// goroutine; batches already emitted remain valid whatever happens later.
//
// A baseline-query failure is returned to the caller. A partition failure is
// logged and skipped. Cancellation returns nil: the caller distinguishes a
// user stop from completion via ctx.Err().
func (e *Engine) Run(ctx context.Context, text string, emit func(Batch)) error {
	if text == "" {
		return fmt.Errorf("discovery: query text is required")
	}

	start := time.Now()
	seen := make(map[string]struct{})

	total, err := e.pageThrough(ctx, text, seen, emit, 0)
	if err != nil {
		if transport.IsCancelled(err) {
			runsTotal.WithLabelValues("cancelled").Inc()
			e.logger.Info().Str("text", text).Int("unique", len(seen)).Msg("Run cancelled")
			return nil
		}
		runsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("baseline query %q: %w", text, err)
	}

	if total <= len(seen) {
		runsTotal.WithLabelValues("completed").Inc()
		e.logger.Info().
			Str("text", text).
			Int("unique", len(seen)).
			Dur("duration", time.Since(start)).
			Msg("Run complete within window")
		return nil
	}

	e.logger.Info().
		Str("text", text).
		Int("unique", len(seen)).
		Int("reported_total", total).
		Msg("Window ceiling insufficient, partitioning")

	symbols := []rune(e.config.Alphabet)
	for i, sym := range symbols {
		if ctx.Err() != nil {
			runsTotal.WithLabelValues("cancelled").Inc()
			e.logger.Info().Str("text", text).Int("unique", len(seen)).Msg("Run cancelled")
			return nil
		}

		sub := text + string(sym)
		progress := float64(i) / float64(len(symbols))

		if _, err := e.pageThrough(ctx, sub, seen, emit, progress); err != nil {
			if transport.IsCancelled(err) {
				runsTotal.WithLabelValues("cancelled").Inc()
				e.logger.Info().Str("text", text).Int("unique", len(seen)).Msg("Run cancelled")
				return nil
			}
			// One bad partition yields nothing further; the sweep goes on.
			partitionsTotal.WithLabelValues("failed").Inc()
			e.logger.Warn().
				Err(err).
				Str("partition", sub).
				Msg("Partition failed, skipping")
			continue
		}
		partitionsTotal.WithLabelValues("completed").Inc()
	}

	runsTotal.WithLabelValues("completed").Inc()
	e.logger.Info().
		Str("text", text).
		Int("unique", len(seen)).
		Dur("duration", time.Since(start)).
		Msg("Partitioned run complete")
	return nil
}

// pageThrough pages one query text within the window ceiling, emitting every
// batch of newly-seen packages. It returns the upstream total estimate for
// the text. A page shorter than requested ends the phase without error.
func (e *Engine) pageThrough(ctx context.Context, text string, seen map[string]struct{}, emit func(Batch), progress float64) (int, error) {
	total := 0

	for from := 0; from < e.config.WindowCeiling; from += e.config.PageSize {
		// Cancellation checkpoint before every page request.
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("%w: %v", transport.ErrCancelled, err)
		}

		size := e.config.PageSize
		if from+size > e.config.WindowCeiling {
			size = e.config.WindowCeiling - from
		}

		page, err := e.searcher.Search(ctx, registry.Query{
			Text:        text,
			Size:        size,
			From:        from,
			Quality:     e.config.Quality,
			Popularity:  e.config.Popularity,
			Maintenance: e.config.Maintenance,
		})
		if err != nil {
			return total, err
		}
		pagesTotal.Inc()
		total = page.Total

		fresh := make([]registry.Package, 0, len(page.Items))
		for _, pkg := range page.Items {
			if _, ok := seen[pkg.Name]; ok {
				continue
			}
			seen[pkg.Name] = struct{}{}
			fresh = append(fresh, pkg)
		}

		if len(fresh) > 0 {
			packagesFoundTotal.Add(float64(len(fresh)))
			emit(Batch{
				Items:    fresh,
				Unique:   len(seen),
				Total:    total,
				Progress: progress,
			})
		}

		if len(page.Items) < size {
			break
		}
	}

	return total, nil
}
