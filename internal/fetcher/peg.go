package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SpotPegOptions parameterise the HTTP spot-price peg source.
type SpotPegOptions struct {
	URL     string
	AssetID string
	Timeout time.Duration
}

// SpotPeg resolves the stablecoin's USD value from a spot-price JSON API of
// the form {"tether":{"usd":1.0002}}.
type SpotPeg struct {
	opts   SpotPegOptions
	logger zerolog.Logger
	client *http.Client
}

// NewSpotPeg constructs the HTTP peg source.
func NewSpotPeg(opts SpotPegOptions, logger zerolog.Logger) *SpotPeg {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.AssetID == "" {
		opts.AssetID = "tether"
	}

	return &SpotPeg{
		opts:   opts,
		logger: logger.With().Str("component", "peg_spot").Logger(),
		client: &http.Client{Timeout: opts.Timeout},
	}
}

func (p *SpotPeg) Name() string { return "peg.spot" }

// FetchPeg returns the stablecoin's USD spot value. The caller is expected
// to substitute exactly 1.00 on failure.
func (p *SpotPeg) FetchPeg(ctx context.Context) (float64, error) {
	if p.opts.URL == "" {
		return 0, fmt.Errorf("peg spot url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("create peg request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute peg request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("peg api status %d", resp.StatusCode)
	}

	var payload map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode peg response: %w", err)
	}

	asset, ok := payload[strings.ToLower(p.opts.AssetID)]
	if !ok {
		return 0, fmt.Errorf("peg response missing asset %q", p.opts.AssetID)
	}
	raw, ok := asset["usd"]
	if !ok {
		return 0, fmt.Errorf("peg response missing usd value")
	}

	peg, err := raw.Float64()
	if err != nil || peg <= 0 {
		return 0, fmt.Errorf("peg value %q is not a positive number", raw.String())
	}
	return peg, nil
}

var _ PegSource = (*SpotPeg)(nil)
