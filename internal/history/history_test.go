package history

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "history.csv"), zerolog.Nop())
}

func TestAppendCreatesHeader(t *testing.T) {
	store := testStore(t)

	rec := Record{Timestamp: time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC), Median: 124.456, Q1: 122, Q3: 126}
	if err := store.Append(rec); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	raw, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if lines[0] != "Timestamp,Median,Q1,Q3,Official" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[1] != "2026-08-24 10:30:00,124.46,122,126,0" {
		t.Fatalf("unexpected row: %q", lines[1])
	}
}

func TestRoundTrip(t *testing.T) {
	store := testStore(t)
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	official := 57.48

	const n = 60
	for i := 0; i < n; i++ {
		rec := Record{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Median:    124.5 + float64(i)*0.01,
			Q1:        122.25,
			Q3:        126.75,
			Official:  &official,
		}
		if err := store.Append(rec); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	records, err := store.LoadRecent()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(records) != activeRecords {
		t.Fatalf("expected %d active records, got %d", activeRecords, len(records))
	}

	// Chronological order, most recent window.
	for i := 1; i < len(records); i++ {
		if !records[i].Timestamp.After(records[i-1].Timestamp) {
			t.Fatalf("records out of order at %d", i)
		}
	}
	last := records[len(records)-1]
	if !last.Timestamp.Equal(base.Add((n - 1) * time.Hour)) {
		t.Fatalf("unexpected final timestamp %v", last.Timestamp)
	}
	if math.Abs(last.Median-(124.5+(n-1)*0.01)) > 0.005 {
		t.Fatalf("median not within rounding tolerance: %v", last.Median)
	}
	if last.Official == nil || math.Abs(*last.Official-official) > 0.005 {
		t.Fatalf("official rate did not survive round-trip: %v", last.Official)
	}
}

func TestRoundTripFewerThanWindow(t *testing.T) {
	store := testStore(t)
	for i := 0; i < 3; i++ {
		rec := Record{Timestamp: time.Date(2026, 8, 24, i, 0, 0, 0, time.UTC), Median: 120, Q1: 119, Q3: 121}
		if err := store.Append(rec); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	records, err := store.LoadRecent()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
}

func TestAbsentOfficialWrittenAsZero(t *testing.T) {
	store := testStore(t)
	rec := Record{Timestamp: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC), Median: 130, Q1: 128, Q3: 132}
	if err := store.Append(rec); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	raw, _ := os.ReadFile(store.Path())
	if !strings.HasSuffix(strings.TrimSpace(string(raw)), ",0") {
		t.Fatalf("absent official should be written as 0: %q", string(raw))
	}

	records, err := store.LoadRecent()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if records[0].Official != nil {
		t.Fatalf("official 0 should read back as absent, got %v", *records[0].Official)
	}
}

func TestCorruptRowSkipped(t *testing.T) {
	store := testStore(t)
	for i := 0; i < 3; i++ {
		rec := Record{Timestamp: time.Date(2026, 8, 24, i, 0, 0, 0, time.UTC), Median: 120, Q1: 119, Q3: 121}
		if err := store.Append(rec); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	// Wedge a half-written row into the middle of the log.
	raw, _ := os.ReadFile(store.Path())
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	lines = append(lines[:3], append([]string{"2026-08-24 03:00:00,not-a-number"}, lines[3:]...)...)
	if err := os.WriteFile(store.Path(), []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("rewrite log: %v", err)
	}

	records, err := store.LoadRecent()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected corrupt row to be skipped, got %d records", len(records))
	}
}

func TestLoadRecentMissingFile(t *testing.T) {
	store := testStore(t)
	records, err := store.LoadRecent()
	if err != nil {
		t.Fatalf("missing log must not be an error: %v", err)
	}
	if records != nil {
		t.Fatalf("expected no records, got %v", records)
	}
}
