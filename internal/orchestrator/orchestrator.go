// Package orchestrator runs all source adapters and resolver calls for one
// fetch cycle through a bounded worker pool and assembles their results.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"birrwatch/internal/fetcher"
)

const defaultWorkers = 10

// Options tune the per-cycle fetch fan-out.
type Options struct {
	// Workers caps how many fetch tasks run concurrently.
	Workers int
	// Pooled names the sources whose samples are combined into the primary
	// sample. Empty means every source is pooled.
	Pooled []string
}

// Cycle is the complete outcome of one concurrent fetch phase. Everything
// after it (aggregation, history, presentation) is sequential.
type Cycle struct {
	Samples   map[string][]float64
	Peg       float64
	Official  *float64
	Pooled    []float64
	FetchedAt time.Time
}

// Orchestrator owns the configured adapters and resolvers for the process
// lifetime. It never fails because a source failed.
type Orchestrator struct {
	adapters []fetcher.SourceAdapter
	peg      fetcher.PegSource
	official fetcher.OfficialSource
	pooled   map[string]bool
	workers  int
	logger   zerolog.Logger
}

// New constructs an orchestrator over the given adapters and resolvers. The
// peg and official sources may be nil when unconfigured.
func New(adapters []fetcher.SourceAdapter, peg fetcher.PegSource, official fetcher.OfficialSource, opts Options, logger zerolog.Logger) *Orchestrator {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	var pooled map[string]bool
	if len(opts.Pooled) > 0 {
		pooled = make(map[string]bool, len(opts.Pooled))
		for _, name := range opts.Pooled {
			pooled[name] = true
		}
	}

	return &Orchestrator{
		adapters: adapters,
		peg:      peg,
		official: official,
		pooled:   pooled,
		workers:  workers,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Fetch runs every adapter plus the peg and official resolver calls
// concurrently and blocks until all of them finish. Each task writes only
// its own result slot. Adapter failures are collapsed to empty samples here,
// deliberately and visibly: the error kind is logged and then discarded, so
// downstream a failed marketplace and one with zero live offers look the
// same (empty sample).
func (o *Orchestrator) Fetch(ctx context.Context) *Cycle {
	samples := make([][]float64, len(o.adapters))

	var (
		peg      float64
		official *float64
	)

	var group errgroup.Group
	group.SetLimit(o.workers)

	for i, adapter := range o.adapters {
		i, adapter := i, adapter
		group.Go(func() error {
			prices, err := adapter.Fetch(ctx)
			if err != nil {
				o.logger.Warn().Err(err).Str("source", adapter.Name()).Msg("source fetch failed; downgrading to empty sample")
				prices = nil
			}
			samples[i] = prices
			return nil
		})
	}

	if o.peg != nil {
		group.Go(func() error {
			value, err := o.peg.FetchPeg(ctx)
			if err != nil {
				o.logger.Warn().Err(err).Str("source", o.peg.Name()).Msg("peg fetch failed; falling back to 1.00")
				return nil
			}
			peg = value
			return nil
		})
	}

	if o.official != nil {
		group.Go(func() error {
			value, err := o.official.FetchOfficial(ctx)
			if err != nil {
				o.logger.Warn().Err(err).Str("source", o.official.Name()).Msg("official rate fetch failed; treating as absent")
				return nil
			}
			official = &value
			return nil
		})
	}

	// Tasks never return errors; Wait is purely the cycle barrier.
	_ = group.Wait()

	if peg <= 0 {
		peg = 1.00
	}

	cycle := &Cycle{
		Samples:   make(map[string][]float64, len(o.adapters)),
		Peg:       peg,
		Official:  official,
		FetchedAt: time.Now().UTC(),
	}

	for i, adapter := range o.adapters {
		name := adapter.Name()
		cycle.Samples[name] = samples[i]
		if o.pooled == nil || o.pooled[name] {
			cycle.Pooled = append(cycle.Pooled, samples[i]...)
		}
	}

	return cycle
}
