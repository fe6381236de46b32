package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestUnifiedFetchPaginates(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		if r.URL.Query().Get("exchange") != "binance" {
			t.Fatalf("market parameter not forwarded: %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("tradeType") != "SELL" {
			t.Fatalf("adapter must query sell-side ads: %s", r.URL.RawQuery)
		}

		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			fmt.Fprint(w, `{"data":[{"price":"120.5"},{"price":121},{"volume":9},{"price":"bad"}]}`)
		case "2":
			fmt.Fprint(w, `{"data":[{"price":122}]}`)
		default:
			fmt.Fprint(w, `{"data":[]}`)
		}
	}))
	defer srv.Close()

	u := NewUnified(UnifiedOptions{
		BaseURL:   srv.URL,
		Market:    "binance",
		Timeout:   time.Second,
		PageDelay: -1,
	}, noopLogger())

	prices, err := u.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(prices) != 3 {
		t.Fatalf("expected 3 prices (junk entries skipped), got %v", prices)
	}
	if prices[0] != 120.5 || prices[1] != 121 || prices[2] != 122 {
		t.Fatalf("unexpected prices %v", prices)
	}
	if len(pages) != 3 {
		t.Fatalf("expected fetch to stop after the first empty page, requested pages %v", pages)
	}
}

func TestUnifiedFetchPageCeiling(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"price": 120}}})
	}))
	defer srv.Close()

	u := NewUnified(UnifiedOptions{BaseURL: srv.URL, Market: "okx", Timeout: time.Second, PageDelay: -1}, noopLogger())
	prices, err := u.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if requests != maxPages {
		t.Fatalf("expected the %d-page ceiling to hold, made %d requests", maxPages, requests)
	}
	if len(prices) != maxPages {
		t.Fatalf("expected %d prices, got %d", maxPages, len(prices))
	}
}

func TestUnifiedFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	u := NewUnified(UnifiedOptions{BaseURL: srv.URL, Market: "binance", Timeout: time.Second, PageDelay: -1}, noopLogger())
	if _, err := u.Fetch(context.Background()); err == nil {
		t.Fatal("HTTP 502 should surface as an error")
	}
}

func TestUnifiedFetchMissingConfig(t *testing.T) {
	u := NewUnified(UnifiedOptions{Market: "binance"}, noopLogger())
	if _, err := u.Fetch(context.Background()); err == nil {
		t.Fatal("missing base url should be an error")
	}

	u = NewUnified(UnifiedOptions{BaseURL: "http://localhost"}, noopLogger())
	if _, err := u.Fetch(context.Background()); err == nil {
		t.Fatal("missing market should be an error")
	}
}

func TestUnifiedName(t *testing.T) {
	u := NewUnified(UnifiedOptions{Market: "Binance"}, noopLogger())
	if u.Name() != "p2p.binance" {
		t.Fatalf("unexpected source name %q", u.Name())
	}
}
