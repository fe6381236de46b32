// Package app aggregates configuration and shared dependencies for the CLI
// commands.
package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"birrwatch/internal/alerting"
	"birrwatch/internal/config"
	"birrwatch/internal/fetcher"
	"birrwatch/internal/history"
	"birrwatch/internal/orchestrator"
	"birrwatch/internal/report"
	"birrwatch/internal/scheduler"
	"birrwatch/internal/service"
)

// App holds the configuration and logger shared by every command.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newAdapters() []fetcher.SourceAdapter {
	cfg := a.Config
	var adapters []fetcher.SourceAdapter

	if cfg.Sources.Unified.BaseURL != "" {
		for _, market := range cfg.Sources.Unified.Markets {
			adapters = append(adapters, fetcher.NewUnified(fetcher.UnifiedOptions{
				BaseURL:   cfg.Sources.Unified.BaseURL,
				Market:    market,
				Asset:     cfg.Pair.Asset,
				Fiat:      cfg.Pair.Fiat,
				Rows:      cfg.Sources.Unified.Rows,
				Timeout:   cfg.Fetch.Timeout,
				PageDelay: cfg.Fetch.PageDelay,
				UserAgent: cfg.Fetch.UserAgent,
			}, a.Logger))
		}
	} else {
		a.Logger.Debug().Msg("unified aggregation endpoint not configured; skipping its markets")
	}

	if cfg.Sources.Exchange.SearchURL != "" {
		adapters = append(adapters, fetcher.NewExchange(fetcher.ExchangeOptions{
			Name:      cfg.Sources.Exchange.Name,
			SearchURL: cfg.Sources.Exchange.SearchURL,
			Asset:     cfg.Pair.Asset,
			Fiat:      cfg.Pair.Fiat,
			Sides:     cfg.Sources.Exchange.Sides,
			Rows:      cfg.Sources.Exchange.Rows,
			Timeout:   cfg.Fetch.Timeout,
			PageDelay: cfg.Fetch.PageDelay,
			UserAgent: cfg.Fetch.UserAgent,
		}, a.Logger))
	}

	return adapters
}

func (a *App) newPegSource() fetcher.PegSource {
	cfg := a.Config
	if cfg.Peg.Source == "chain" {
		return fetcher.NewChainPeg(fetcher.ChainPegOptions{
			RPCURL:      cfg.Peg.RPCURL,
			FeedAddress: cfg.Peg.FeedAddress,
			Timeout:     cfg.Fetch.Timeout,
		}, a.Logger)
	}
	return fetcher.NewSpotPeg(fetcher.SpotPegOptions{
		URL:     cfg.Peg.SpotURL,
		AssetID: cfg.Peg.AssetID,
		Timeout: cfg.Fetch.Timeout,
	}, a.Logger)
}

func (a *App) newOfficialSource() fetcher.OfficialSource {
	cfg := a.Config
	if cfg.Official.Source == "scrape" {
		return fetcher.NewOfficialScrape(fetcher.OfficialScrapeOptions{
			URL:         cfg.Official.ScrapeURL,
			RowSelector: cfg.Official.RowSelector,
			Timeout:     cfg.Fetch.Timeout,
			UserAgent:   cfg.Fetch.UserAgent,
		}, a.Logger)
	}
	return fetcher.NewOfficialAPI(fetcher.OfficialAPIOptions{
		URL:     cfg.Official.APIURL,
		Fiat:    cfg.Pair.Fiat,
		Timeout: cfg.Fetch.Timeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	tg := a.Config.Alerting.Telegram
	if !a.Config.Alerting.Enabled || !tg.Enabled {
		return nil
	}
	return alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, 10*time.Second, a.Logger)
}

func (a *App) newService() *service.Service {
	cfg := a.Config

	orch := orchestrator.New(a.newAdapters(), a.newPegSource(), a.newOfficialSource(), orchestrator.Options{
		Workers: cfg.Fetch.Workers,
		Pooled:  cfg.Sources.Pooled,
	}, a.Logger)

	store := history.NewStore(cfg.History.Path, a.Logger)
	renderer := report.NewRenderer(report.Options{
		OutputDir: cfg.Report.OutputDir,
		Charts:    cfg.Report.Charts,
	}, a.Logger)

	return service.New(cfg, orch, store, renderer, a.newNotifier(), a.Logger)
}

// Run executes a single fetch cycle and exits; an external scheduler is
// expected to invoke it periodically.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.newService().RunCycle(ctx)
}

// Watch runs cycles on the internal aligned-interval loop, for deployments
// without an external scheduler.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService()

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting watch loop")
	err := sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return svc.RunCycle(ctx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.Logger.Info().Msg("watch loop stopped")
	return nil
}
