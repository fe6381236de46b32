// Package fetcher contains the marketplace source adapters and the peg and
// official-rate resolvers. Adapters do their own defensive parsing; upstream
// shapes are not trusted.
package fetcher

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const (
	// maxPages is the hard pagination ceiling per source per cycle.
	maxPages = 5

	defaultTimeout   = 8 * time.Second
	defaultPageDelay = 250 * time.Millisecond
	defaultRows      = 20
)

// SourceAdapter yields raw ask prices for one marketplace and one trading
// pair. A failed or empty marketplace is the caller's problem to downgrade;
// adapters report errors honestly.
type SourceAdapter interface {
	Name() string
	Fetch(ctx context.Context) ([]float64, error)
}

// PegSource resolves the stablecoin's USD spot value for the current cycle.
type PegSource interface {
	Name() string
	FetchPeg(ctx context.Context) (float64, error)
}

// OfficialSource resolves the official USD->fiat benchmark rate.
type OfficialSource interface {
	Name() string
	FetchOfficial(ctx context.Context) (float64, error)
}

// listKeys are the plausible wrappers marketplaces nest their ad list under.
var listKeys = []string{"data", "ads", "items", "results"}

// offerList pulls the advertisement array out of a response body that may be
// a bare top-level array or nested under any of several keys.
func offerList(body []byte) []json.RawMessage {
	var bare []json.RawMessage
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil
	}
	for _, key := range listKeys {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err == nil {
			return list
		}
	}
	return nil
}

// priceOf extracts a numeric ask price from one advertisement record. The
// price may be a JSON number or a numeric string, directly under "price" or
// nested under "adv". Anything else is skipped.
func priceOf(raw json.RawMessage) (float64, bool) {
	var entry map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entry); err != nil {
		return 0, false
	}

	if v, ok := numeric(entry["price"]); ok {
		return v, true
	}

	if adv, ok := entry["adv"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(adv, &nested); err == nil {
			if v, ok := numeric(nested["price"]); ok {
				return v, true
			}
		}
	}
	return 0, false
}

func numeric(raw json.RawMessage) (float64, bool) {
	if raw == nil {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// pagePause sleeps between page fetches to stay under marketplace rate
// limits, bailing out early if the context is cancelled.
func pagePause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
