// Package service ties one fetch cycle together: concurrent fetch, pooled
// and per-source aggregation, history append, dashboard render, and the
// optional premium alert. Everything after the fetch phase is sequential.
package service

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"birrwatch/internal/alerting"
	"birrwatch/internal/config"
	"birrwatch/internal/history"
	"birrwatch/internal/orchestrator"
	"birrwatch/internal/report"
	"birrwatch/internal/stats"
)

// Service drives complete fetch cycles.
type Service struct {
	orch     *orchestrator.Orchestrator
	store    *history.Store
	renderer *report.Renderer
	notifier alerting.Notifier
	logger   zerolog.Logger

	band      stats.Band
	quantiler stats.Quantiler
	threshold float64
	alertsOn  bool
}

// New constructs the cycle service. The renderer and notifier may be nil.
func New(cfg *config.Config, orch *orchestrator.Orchestrator, store *history.Store, renderer *report.Renderer, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	band := stats.Band{Low: cfg.Stats.BandLow, High: cfg.Stats.BandHigh}

	return &Service{
		orch:      orch,
		store:     store,
		renderer:  renderer,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		band:      band,
		quantiler: stats.QuantilerFor(cfg.Stats.PercentileStrategy),
		threshold: cfg.Alerting.ThresholdPct,
		alertsOn:  cfg.Alerting.Enabled,
	}
}

// RunCycle executes one complete cycle. A cycle without usable pooled
// statistics logs a diagnostic and leaves history and the previous
// dashboard untouched; that is a normal outcome, not an error.
func (s *Service) RunCycle(ctx context.Context) error {
	cycle := s.orch.Fetch(ctx)

	pooled := stats.Aggregate(cycle.Pooled, cycle.Peg, s.band, s.quantiler)
	if pooled == nil {
		s.logger.Warn().
			Int("raw_quotes", len(cycle.Pooled)).
			Msg("no usable pooled statistics; skipping history and dashboard this cycle")
		return nil
	}

	perSource := make(map[string]*stats.Stats, len(cycle.Samples))
	for name, sample := range cycle.Samples {
		// nil entries mark sources to skip this cycle; the dashboard still
		// lists them so a silent marketplace stays visible.
		perSource[name] = stats.Aggregate(sample, cycle.Peg, s.band, s.quantiler)
	}

	premium := stats.Premium(pooled.Median, cycle.Official)

	s.logger.Info().
		Float64("median", pooled.Median).
		Float64("premium_pct", premium).
		Int("count", pooled.Count).
		Float64("peg", cycle.Peg).
		Msg("cycle aggregated")

	rec := history.Record{
		Timestamp: cycle.FetchedAt,
		Median:    pooled.Median,
		Q1:        pooled.Q1,
		Q3:        pooled.Q3,
		Official:  cycle.Official,
	}
	if err := s.store.Append(rec); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if s.renderer != nil {
		recent, err := s.store.LoadRecent()
		if err != nil {
			s.logger.Warn().Err(err).Msg("history replay failed; rendering without trend data")
			recent = nil
		}

		in := report.Input{
			Pooled:    pooled,
			PerSource: perSource,
			Official:  cycle.Official,
			Peg:       cycle.Peg,
			Premium:   premium,
			FetchedAt: cycle.FetchedAt,
			History:   recent,
		}
		if err := s.renderer.Render(in); err != nil {
			return fmt.Errorf("render dashboard: %w", err)
		}
	}

	s.maybeAlert(ctx, cycle, pooled, premium)
	return nil
}

func (s *Service) maybeAlert(ctx context.Context, cycle *orchestrator.Cycle, pooled *stats.Stats, premium float64) {
	if !s.alertsOn || s.notifier == nil || s.threshold <= 0 {
		return
	}
	if cycle.Official == nil || math.Abs(premium) <= s.threshold {
		return
	}

	note := alerting.Notification{
		At:           cycle.FetchedAt,
		Median:       pooled.Median,
		OfficialRate: *cycle.Official,
		PremiumPct:   premium,
		ThresholdPct: s.threshold,
		PooledCount:  pooled.Count,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Msg("failed to dispatch premium alert")
	}
}
