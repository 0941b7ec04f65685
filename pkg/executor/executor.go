// Package executor provides a generic bounded-concurrency fan-out runner: a
// caller-supplied operation is applied to a list of items with a hard cap on
// simultaneous in-flight work, streaming per-item results and isolating
// per-item failures.
package executor

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/pkgscout/npm-discovery/pkg/transport"
)

// Prometheus metrics for executor runs.
var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "executor_tasks_total",
		Help: "Total executor tasks by outcome",
	}, []string{"outcome"}) // "completed", "failed", "skipped"

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "executor_inflight",
		Help: "Currently in-flight executor operations",
	})
)

// Stats summarizes one Run. The caller surfaces partial success from these
// counts: Failed > 0 with Completed > 0 means some items failed while the
// rest went through.
type Stats struct {
	// Completed counts items whose result reached the result callback.
	Completed int

	// Failed counts items whose operation returned a non-cancellation error.
	Failed int

	// Skipped counts items that produced no result: a deliberate nil result,
	// a cancelled operation, or completion after cancellation.
	Skipped int
}

// settled carries one finished operation back to the control loop.
type settled[T, R any] struct {
	item   T
	result *R
	err    error
}

// Run applies op to every item with at most limit operations in flight.
//
// Contract:
//   - The backlog is FIFO; admission is gated only by the in-flight count.
//     At the limit, the loop blocks until any one operation settles.
//   - op returning (nil, nil) is a deliberate no-op for that item: neither
//     callback fires.
//   - An op error that is not a cancellation goes to onError (when non-nil)
//     and never affects sibling items or Run itself.
//   - Once ctx is cancelled no new operation starts; Run still waits for all
//     in-flight operations to settle before returning.
//   - onResult and onError are invoked only from Run's goroutine, in
//     completion order, which may differ from submission order. Operations
//     must not touch executor state; they see only their item and ctx.
func Run[T, R any](ctx context.Context, items []T, limit int, op func(context.Context, T) (*R, error), onResult func(T, R), onError func(T, error)) Stats {
	if limit <= 0 {
		limit = 1
	}

	logger := log.With().Str("component", "executor").Logger()
	done := make(chan settled[T, R])
	inflight := 0
	var stats Stats

	settle := func(s settled[T, R]) {
		inflight--
		inFlight.Dec()
		switch {
		case s.err != nil:
			if transport.IsCancelled(s.err) {
				tasksTotal.WithLabelValues("skipped").Inc()
				stats.Skipped++
				return
			}
			tasksTotal.WithLabelValues("failed").Inc()
			stats.Failed++
			logger.Warn().Err(s.err).Msg("Item operation failed")
			if onError != nil {
				onError(s.item, s.err)
			}
		case s.result == nil:
			tasksTotal.WithLabelValues("skipped").Inc()
			stats.Skipped++
		case ctx.Err() != nil:
			// Result arrived after cancellation: drop it silently.
			tasksTotal.WithLabelValues("skipped").Inc()
			stats.Skipped++
		default:
			tasksTotal.WithLabelValues("completed").Inc()
			stats.Completed++
			if onResult != nil {
				onResult(s.item, *s.result)
			}
		}
	}

	backlog := items
	for len(backlog) > 0 && ctx.Err() == nil {
		if inflight == limit {
			settle(<-done)
			continue
		}

		item := backlog[0]
		backlog = backlog[1:]
		inflight++
		inFlight.Inc()

		go func(it T) {
			r, err := op(ctx, it)
			done <- settled[T, R]{item: it, result: r, err: err}
		}(item)
	}

	// Drain: everything started must settle before Run returns.
	for inflight > 0 {
		settle(<-done)
	}

	if stats.Failed > 0 {
		logger.Warn().
			Int("completed", stats.Completed).
			Int("failed", stats.Failed).
			Int("skipped", stats.Skipped).
			Msg("Run finished with failures")
	} else {
		logger.Debug().
			Int("completed", stats.Completed).
			Int("skipped", stats.Skipped).
			Msg("Run finished")
	}

	return stats
}
