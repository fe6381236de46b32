package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"birrwatch/internal/history"
	"birrwatch/internal/stats"
)

// renderTrendChart plots the pooled median with its quartile companions and
// the official rate over the active history window.
func (r *Renderer) renderTrendChart(records []history.Record) error {
	if len(records) < 2 {
		r.logger.Debug().Int("records", len(records)).Msg("not enough history for a trend chart")
		return nil
	}

	x := make([]time.Time, len(records))
	median := make([]float64, len(records))
	q1 := make([]float64, len(records))
	q3 := make([]float64, len(records))

	var officialX []time.Time
	var official []float64

	for i, rec := range records {
		x[i] = rec.Timestamp
		median[i] = rec.Median
		q1[i] = rec.Q1
		q3[i] = rec.Q3
		if rec.Official != nil {
			officialX = append(officialX, rec.Timestamp)
			official = append(official, *rec.Official)
		}
	}

	series := []chart.Series{
		chart.TimeSeries{Name: "Median", XValues: x, YValues: median},
		chart.TimeSeries{Name: "Q1", XValues: x, YValues: q1},
		chart.TimeSeries{Name: "Q3", XValues: x, YValues: q3},
	}
	if len(official) >= 2 {
		series = append(series, chart.TimeSeries{Name: "Official", XValues: officialX, YValues: official})
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "ETB per USDT",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.1f")
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return r.writeChart("trend.png", func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

// renderSourcesChart draws the current per-source medians as bars. Sources
// without usable statistics this cycle are omitted.
func (r *Renderer) renderSourcesChart(perSource map[string]*stats.Stats) error {
	names := make([]string, 0, len(perSource))
	for name, s := range perSource {
		if s != nil {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		r.logger.Debug().Msg("no sampled sources for the source chart")
		return nil
	}
	sort.Strings(names)

	bars := make([]chart.Value, 0, len(names))
	for _, name := range names {
		bars = append(bars, chart.Value{Label: name, Value: perSource[name].Median})
	}

	graph := chart.BarChart{
		Width:    1280,
		Height:   540,
		BarWidth: 80,
		YAxis: chart.YAxis{
			Name: "Median (ETB per USDT)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.1f")
			},
		},
		Bars: bars,
	}

	return r.writeChart("sources.png", func(f *os.File) error {
		return graph.Render(chart.PNG, f)
	})
}

func (r *Renderer) writeChart(name string, render func(*os.File) error) error {
	path := filepath.Join(r.opts.OutputDir, name)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart %s: %w", name, err)
	}
	if err := render(file); err != nil {
		file.Close()
		return fmt.Errorf("render chart %s: %w", name, err)
	}
	return file.Close()
}
