package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ExchangeOptions parameterise the direct-exchange C2C adapter.
type ExchangeOptions struct {
	Name      string
	SearchURL string
	Asset     string
	Fiat      string
	Sides     []string
	Rows      int
	Timeout   time.Duration
	PageDelay time.Duration
	UserAgent string
}

type searchRequest struct {
	Asset     string `json:"asset"`
	Fiat      string `json:"fiat"`
	TradeType string `json:"tradeType"`
	Rows      int    `json:"rows"`
	Page      int    `json:"page"`
}

// Exchange queries a direct exchange C2C search endpoint, parameterised by a
// trade-side flag. Fetch calls the endpoint once per configured side and
// concatenates the results into one sample.
type Exchange struct {
	opts   ExchangeOptions
	logger zerolog.Logger
	client *http.Client
}

// NewExchange constructs the direct-exchange adapter.
func NewExchange(opts ExchangeOptions, logger zerolog.Logger) *Exchange {
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
	if len(opts.Sides) == 0 {
		opts.Sides = []string{"SELL", "BUY"}
	}
	if opts.Name == "" {
		opts.Name = "exchange"
	}

	return &Exchange{
		opts:   opts,
		logger: logger.With().Str("component", "exchange_adapter").Str("source", opts.Name).Logger(),
		client: &http.Client{Timeout: opts.Timeout},
	}
}

func (e *Exchange) Name() string {
	return e.opts.Name
}

// Fetch collects advertisements for every configured trade side.
func (e *Exchange) Fetch(ctx context.Context) ([]float64, error) {
	if e.opts.SearchURL == "" {
		return nil, fmt.Errorf("exchange adapter search url not configured")
	}

	var prices []float64
	for i, side := range e.opts.Sides {
		if i > 0 {
			pagePause(ctx, e.opts.PageDelay)
		}
		sidePrices, err := e.fetchSide(ctx, side)
		if err != nil {
			return nil, err
		}
		prices = append(prices, sidePrices...)
	}

	e.logger.Debug().Int("prices", len(prices)).Msg("exchange fetched")
	return prices, nil
}

func (e *Exchange) fetchSide(ctx context.Context, side string) ([]float64, error) {
	var prices []float64
	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			pagePause(ctx, e.opts.PageDelay)
		}

		pagePrices, err := e.fetchPage(ctx, side, page)
		if err != nil {
			return nil, err
		}
		if len(pagePrices) == 0 {
			break
		}
		prices = append(prices, pagePrices...)
	}
	return prices, nil
}

func (e *Exchange) fetchPage(ctx context.Context, side string, page int) ([]float64, error) {
	payload := searchRequest{
		Asset:     e.opts.Asset,
		Fiat:      e.opts.Fiat,
		TradeType: strings.ToUpper(side),
		Rows:      e.opts.Rows,
		Page:      page,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.opts.SearchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(e.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute exchange request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read exchange response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange api status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var prices []float64
	for _, offer := range offerList(respBody) {
		if price, ok := priceOf(offer); ok {
			prices = append(prices, price)
		}
	}
	return prices, nil
}

var _ SourceAdapter = (*Exchange)(nil)
