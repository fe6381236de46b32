// Package history persists one aggregate record per fetch cycle to an
// append-only CSV log. The format stays textual so a damaged log can be
// inspected and repaired by hand.
package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	timeLayout = "2006-01-02 15:04:05"

	// activeRecords bounds how much history the presentation layer sees.
	// Older rows stay in the log but are not replayed.
	activeRecords = 48
)

var header = []string{"Timestamp", "Median", "Q1", "Q3", "Official"}

// Record is a single persisted cycle observation. Immutable once appended.
type Record struct {
	Timestamp time.Time
	Median    float64
	Q1        float64
	Q3        float64
	// Official is the official USD->fiat rate, or nil when it could not be
	// resolved that cycle. On disk an absent rate is written as "0", which is
	// indistinguishable from a genuine zero; kept for format compatibility.
	Official *float64
}

// Store owns the on-disk log for the process lifetime.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore builds a store around the given log path.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Path returns the log location.
func (s *Store) Path() string {
	return s.path
}

// Append durably writes one record, creating the log with a header row on
// first write. Numeric fields are rounded to two decimals.
func (s *Store) Append(rec Record) error {
	if err := ensureDir(s.path); err != nil {
		return err
	}

	_, statErr := os.Stat(s.path)
	fresh := os.IsNotExist(statErr)

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if fresh {
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("write history header: %w", err)
		}
	}

	official := "0"
	if rec.Official != nil {
		official = round2(*rec.Official)
	}

	row := []string{
		rec.Timestamp.Format(timeLayout),
		round2(rec.Median),
		round2(rec.Q1),
		round2(rec.Q3),
		official,
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("write history row: %w", err)
	}

	writer.Flush()
	return writer.Error()
}

// LoadRecent replays the log and returns the most recent valid records in
// chronological order. Rows that fail to parse are skipped, not fatal: a
// truncated or hand-edited row must never block the dashboard.
func (s *Store) LoadRecent() ([]Record, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history log: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping malformed history row")
			continue
		}

		rec, ok := parseRow(row)
		if !ok {
			if row[0] != header[0] { // header rows are expected, not corrupt
				s.logger.Warn().Strs("row", row).Msg("skipping unparsable history row")
			}
			continue
		}
		records = append(records, rec)
	}

	if len(records) > activeRecords {
		records = records[len(records)-activeRecords:]
	}
	return records, nil
}

func parseRow(row []string) (Record, bool) {
	if len(row) != len(header) {
		return Record{}, false
	}

	ts, err := time.Parse(timeLayout, row[0])
	if err != nil {
		return Record{}, false
	}

	nums := make([]float64, 4)
	for i, field := range row[1:] {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Record{}, false
		}
		nums[i] = v
	}

	rec := Record{Timestamp: ts, Median: nums[0], Q1: nums[1], Q3: nums[2]}
	if nums[3] != 0 {
		official := nums[3]
		rec.Official = &official
	}
	return rec, true
}

func round2(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
