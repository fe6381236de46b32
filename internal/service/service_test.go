package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"birrwatch/internal/alerting"
	"birrwatch/internal/config"
	"birrwatch/internal/fetcher"
	"birrwatch/internal/history"
	"birrwatch/internal/orchestrator"
	"birrwatch/internal/report"
)

type staticAdapter struct {
	name   string
	prices []float64
	err    error
}

func (a *staticAdapter) Name() string { return a.name }

func (a *staticAdapter) Fetch(context.Context) ([]float64, error) { return a.prices, a.err }

type captureNotifier struct {
	notes []alerting.Notification
}

func (c *captureNotifier) Notify(_ context.Context, note alerting.Notification) error {
	c.notes = append(c.notes, note)
	return nil
}

type staticOfficial struct {
	rate float64
	err  error
}

func (s *staticOfficial) Name() string { return "official.static" }

func (s *staticOfficial) FetchOfficial(context.Context) (float64, error) { return s.rate, s.err }

func testConfig() *config.Config {
	return &config.Config{
		Stats: config.StatsConfig{BandLow: 50, BandHigh: 400, PercentileStrategy: "inclusive"},
		Alerting: config.AlertingConfig{
			Enabled:      true,
			ThresholdPct: 5,
		},
	}
}

func buildService(t *testing.T, adapters []fetcher.SourceAdapter, official fetcher.OfficialSource, notifier alerting.Notifier) (*Service, *history.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := history.NewStore(filepath.Join(dir, "history.csv"), zerolog.Nop())
	renderer := report.NewRenderer(report.Options{OutputDir: filepath.Join(dir, "public")}, zerolog.Nop())
	orch := orchestrator.New(adapters, nil, official, orchestrator.Options{}, zerolog.Nop())
	svc := New(testConfig(), orch, store, renderer, notifier, zerolog.Nop())
	return svc, store, dir
}

func TestRunCycleHappyPath(t *testing.T) {
	adapters := []fetcher.SourceAdapter{
		&staticAdapter{name: "p2p.binance", prices: []float64{129, 130, 131}},
		&staticAdapter{name: "exchange", prices: []float64{130, 132}},
	}
	notifier := &captureNotifier{}
	svc, store, dir := buildService(t, adapters, &staticOfficial{rate: 57.48}, notifier)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	records, err := store.LoadRecent()
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one history record, got %d", len(records))
	}
	if records[0].Median != 130 {
		t.Fatalf("expected pooled median 130, got %v", records[0].Median)
	}
	if records[0].Official == nil {
		t.Fatal("official rate should be recorded")
	}

	if _, err := os.Stat(filepath.Join(dir, "public", "index.html")); err != nil {
		t.Fatalf("dashboard should be rendered: %v", err)
	}

	// Premium (130-57.48)/57.48*100 far exceeds the 5% threshold.
	if len(notifier.notes) != 1 {
		t.Fatalf("expected one premium alert, got %d", len(notifier.notes))
	}
}

func TestRunCycleNoUsableData(t *testing.T) {
	adapters := []fetcher.SourceAdapter{
		&staticAdapter{name: "p2p.binance", err: errors.New("timeout")},
		&staticAdapter{name: "exchange", err: errors.New("timeout")},
	}
	notifier := &captureNotifier{}
	svc, store, dir := buildService(t, adapters, &staticOfficial{err: errors.New("down")}, notifier)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("data-less cycle must not fail the process: %v", err)
	}

	records, err := store.LoadRecent()
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("no history should be appended, got %d records", len(records))
	}
	if _, err := os.Stat(filepath.Join(dir, "public", "index.html")); !os.IsNotExist(err) {
		t.Fatal("no dashboard should be rendered without data")
	}
	if len(notifier.notes) != 0 {
		t.Fatal("no alert should fire without data")
	}
}

func TestRunCycleAbsentOfficialNoAlert(t *testing.T) {
	adapters := []fetcher.SourceAdapter{
		&staticAdapter{name: "p2p.binance", prices: []float64{129, 130, 131}},
	}
	notifier := &captureNotifier{}
	svc, store, _ := buildService(t, adapters, &staticOfficial{err: errors.New("down")}, notifier)

	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	records, _ := store.LoadRecent()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].Official != nil {
		t.Fatal("official should be absent in the record")
	}
	if len(notifier.notes) != 0 {
		t.Fatal("absent official rate must suppress alerts, premium is zero by convention")
	}
}
