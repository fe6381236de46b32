package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOfficialAPIShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want float64
	}{
		{"rates nesting", `{"base":"USD","rates":{"ETB":57.48}}`, 57.48},
		{"conversion_rates nesting", `{"result":"success","conversion_rates":{"ETB":57.5}}`, 57.5},
		{"usd nesting lowercase", `{"usd":{"etb":57.51}}`, 57.51},
		{"top level", `{"ETB":57.52}`, 57.52},
		{"string rate", `{"rates":{"ETB":"57.53"}}`, 57.53},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, c.body)
		}))

		o := NewOfficialAPI(OfficialAPIOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
		rate, err := o.FetchOfficial(context.Background())
		if err != nil {
			t.Fatalf("%s: fetch failed: %v", c.name, err)
		}
		if rate != c.want {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, rate)
		}
		srv.Close()
	}
}

func TestOfficialAPIMissingRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"rates":{"KES":129.5}}`)
	}))
	defer srv.Close()

	o := NewOfficialAPI(OfficialAPIOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := o.FetchOfficial(context.Background()); err == nil {
		t.Fatal("missing fiat rate should be an error")
	}
}

const bankPage = `<html><body>
<table>
<tr><th>Currency</th><th>Buying</th><th>Selling</th></tr>
<tr><td>EURO</td><td>62.1034</td><td>63.3455</td></tr>
<tr><td>US DOLLAR</td><td>57.4807</td><td>58.6303</td></tr>
<tr><td>POUND STERLING</td><td>72.9001</td><td>74.3581</td></tr>
</table>
</body></html>`

func TestOfficialScrapeFindsUSDRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, bankPage)
	}))
	defer srv.Close()

	o := NewOfficialScrape(OfficialScrapeOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	rate, err := o.FetchOfficial(context.Background())
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	if rate != 57.4807 {
		t.Fatalf("expected the USD buying rate, got %v", rate)
	}
}

func TestOfficialScrapeNoUSDRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><table><tr><td>EURO</td><td>62.1</td></tr></table></html>`)
	}))
	defer srv.Close()

	o := NewOfficialScrape(OfficialScrapeOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := o.FetchOfficial(context.Background()); err == nil {
		t.Fatal("page without a USD row should be an error")
	}
}

func TestOfficialSourcesMissingConfig(t *testing.T) {
	api := NewOfficialAPI(OfficialAPIOptions{}, noopLogger())
	if _, err := api.FetchOfficial(context.Background()); err == nil {
		t.Fatal("missing api url should be an error")
	}

	scrape := NewOfficialScrape(OfficialScrapeOptions{}, noopLogger())
	if _, err := scrape.FetchOfficial(context.Background()); err == nil {
		t.Fatal("missing scrape url should be an error")
	}
}
