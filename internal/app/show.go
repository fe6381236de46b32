package app

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"birrwatch/internal/history"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// Show prints recent history records.
func (a *App) Show(opts ShowOptions) error {
	store := history.NewStore(a.Config.History.Path, a.Logger)

	records, err := store.LoadRecent()
	if err != nil {
		return err
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[len(records)-opts.Limit:]
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no history records found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tMedian\tQ1\tQ3\tOfficial\tPremium%")

	for _, rec := range records {
		official := "-"
		premium := "-"
		if rec.Official != nil {
			official = formatRate(*rec.Official)
			premium = formatRate((rec.Median - *rec.Official) / *rec.Official * 100)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			formatRate(rec.Median),
			formatRate(rec.Q1),
			formatRate(rec.Q3),
			official,
			premium,
		)
	}

	return writer.Flush()
}

func formatRate(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
