package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

// OfficialAPIOptions parameterise the JSON FX-rate official source.
type OfficialAPIOptions struct {
	URL     string
	Fiat    string
	Timeout time.Duration
}

// OfficialAPI resolves the official USD->fiat rate from a JSON FX endpoint.
// Public FX APIs disagree on shape, so the rate is probed under the common
// nestings before giving up.
type OfficialAPI struct {
	opts   OfficialAPIOptions
	logger zerolog.Logger
	client *http.Client
}

// NewOfficialAPI constructs the JSON official-rate source.
func NewOfficialAPI(opts OfficialAPIOptions, logger zerolog.Logger) *OfficialAPI {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Fiat == "" {
		opts.Fiat = "ETB"
	}

	return &OfficialAPI{
		opts:   opts,
		logger: logger.With().Str("component", "official_api").Logger(),
		client: &http.Client{Timeout: opts.Timeout},
	}
}

func (o *OfficialAPI) Name() string { return "official.api" }

// FetchOfficial returns the official USD->fiat rate. Absence of a usable
// rate is an error; the orchestrator downgrades it to "absent", never zero.
func (o *OfficialAPI) FetchOfficial(ctx context.Context) (float64, error) {
	if o.opts.URL == "" {
		return 0, fmt.Errorf("official api url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.opts.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("create official request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute official request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("official api status %d", resp.StatusCode)
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode official response: %w", err)
	}

	rate, ok := o.probeRate(payload)
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("official response carries no %s rate", o.opts.Fiat)
	}
	return rate, nil
}

// probeRate looks for the fiat rate under the nestings used by the common
// free FX APIs, then at the top level.
func (o *OfficialAPI) probeRate(payload map[string]json.RawMessage) (float64, bool) {
	fiat := strings.ToUpper(o.opts.Fiat)

	for _, wrapper := range []string{"rates", "conversion_rates", "usd"} {
		raw, ok := payload[wrapper]
		if !ok {
			continue
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err != nil {
			continue
		}
		if v, ok := numeric(nested[fiat]); ok {
			return v, true
		}
		if v, ok := numeric(nested[strings.ToLower(fiat)]); ok {
			return v, true
		}
	}

	if v, ok := numeric(payload[fiat]); ok {
		return v, true
	}
	return 0, false
}

var _ OfficialSource = (*OfficialAPI)(nil)

// OfficialScrapeOptions parameterise the central-bank page scraper.
type OfficialScrapeOptions struct {
	URL         string
	RowSelector string
	Timeout     time.Duration
	UserAgent   string
}

// OfficialScrape resolves the official rate by scraping the central bank's
// daily exchange-rate table: the first numeric cell of the US dollar row.
type OfficialScrape struct {
	opts   OfficialScrapeOptions
	logger zerolog.Logger
	client *http.Client
}

// NewOfficialScrape constructs the scraping official-rate source.
func NewOfficialScrape(opts OfficialScrapeOptions, logger zerolog.Logger) *OfficialScrape {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RowSelector == "" {
		opts.RowSelector = "table tr"
	}

	return &OfficialScrape{
		opts:   opts,
		logger: logger.With().Str("component", "official_scrape").Logger(),
		client: &http.Client{Timeout: opts.Timeout},
	}
}

func (o *OfficialScrape) Name() string { return "official.scrape" }

// FetchOfficial scrapes the configured page for the USD row.
func (o *OfficialScrape) FetchOfficial(ctx context.Context) (float64, error) {
	if o.opts.URL == "" {
		return 0, fmt.Errorf("official scrape url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.opts.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("create scrape request: %w", err)
	}
	if ua := strings.TrimSpace(o.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute scrape request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("official page status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("parse official page: %w", err)
	}

	var rate float64
	doc.Find(o.opts.RowSelector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return true
		}

		label := strings.ToUpper(strings.TrimSpace(cells.First().Text()))
		if !strings.Contains(label, "USD") && !strings.Contains(label, "US DOLLAR") {
			return true
		}

		cells.Slice(1, cells.Length()).EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell.Text()), 64)
			if err != nil || v <= 0 {
				return true
			}
			rate = v
			return false
		})
		return rate == 0
	})

	if rate == 0 {
		return 0, fmt.Errorf("official page carries no USD row")
	}
	return rate, nil
}

var _ OfficialSource = (*OfficialScrape)(nil)
