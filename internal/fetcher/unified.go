package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// UnifiedOptions parameterise one market on the unified P2P aggregation API.
type UnifiedOptions struct {
	BaseURL   string
	Market    string
	Asset     string
	Fiat      string
	Rows      int
	Timeout   time.Duration
	PageDelay time.Duration
	UserAgent string
}

// Unified queries a third-party endpoint that aggregates P2P advertisements
// across exchanges, parameterised by market name. One instance per market.
type Unified struct {
	opts   UnifiedOptions
	logger zerolog.Logger
	client *http.Client
}

// NewUnified constructs an adapter for one aggregated market.
func NewUnified(opts UnifiedOptions, logger zerolog.Logger) *Unified {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Rows <= 0 {
		opts.Rows = defaultRows
	}
	if opts.PageDelay == 0 {
		opts.PageDelay = defaultPageDelay
	}
	if opts.Asset == "" {
		opts.Asset = "USDT"
	}
	if opts.Fiat == "" {
		opts.Fiat = "ETB"
	}

	return &Unified{
		opts:   opts,
		logger: logger.With().Str("component", "unified_adapter").Str("market", opts.Market).Logger(),
		client: &http.Client{Timeout: opts.Timeout},
	}
}

func (u *Unified) Name() string {
	return "p2p." + strings.ToLower(u.opts.Market)
}

// Fetch walks sequential result pages, accumulating ask prices until a page
// comes back empty or the page ceiling is hit. The adapter buys USDT, so it
// queries sell-side advertisements.
func (u *Unified) Fetch(ctx context.Context) ([]float64, error) {
	if u.opts.BaseURL == "" {
		return nil, fmt.Errorf("unified adapter base url not configured")
	}
	if u.opts.Market == "" {
		return nil, fmt.Errorf("unified adapter market not configured")
	}

	var prices []float64
	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			pagePause(ctx, u.opts.PageDelay)
		}

		pagePrices, err := u.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(pagePrices) == 0 {
			break
		}
		prices = append(prices, pagePrices...)
	}

	u.logger.Debug().Int("prices", len(prices)).Msg("unified market fetched")
	return prices, nil
}

func (u *Unified) fetchPage(ctx context.Context, page int) ([]float64, error) {
	endpoint, err := url.Parse(strings.TrimRight(u.opts.BaseURL, "/") + "/advertisements")
	if err != nil {
		return nil, fmt.Errorf("parse unified endpoint: %w", err)
	}

	query := endpoint.Query()
	query.Set("exchange", u.opts.Market)
	query.Set("asset", u.opts.Asset)
	query.Set("fiat", u.opts.Fiat)
	query.Set("tradeType", "SELL")
	query.Set("page", strconv.Itoa(page))
	query.Set("rows", strconv.Itoa(u.opts.Rows))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create unified request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(u.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute unified request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read unified response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unified api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var prices []float64
	for _, offer := range offerList(body) {
		if price, ok := priceOf(offer); ok {
			prices = append(prices, price)
		}
	}
	return prices, nil
}

var _ SourceAdapter = (*Unified)(nil)
