package stats

import (
	"math"
	"sort"
	"strings"
)

// Quantiler estimates a quantile q in [0,1] over a sorted, non-empty slice.
type Quantiler interface {
	Name() string
	Quantile(sorted []float64, q float64) float64
}

// Inclusive implements inclusive-rank linear interpolation: the quantile at
// rank (n-1)*q, interpolated between the two neighbouring order statistics.
type Inclusive struct{}

func (Inclusive) Name() string { return "inclusive" }

func (Inclusive) Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}

	rank := float64(n-1) * q
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}

	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// NearestRank indexes the sorted slice at floor(n*q), except for the median
// which uses the standard median-of-sorted rule.
type NearestRank struct{}

func (NearestRank) Name() string { return "nearest-rank" }

func (NearestRank) Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if q == 0.5 {
		if n%2 == 0 {
			return (sorted[n/2-1] + sorted[n/2]) / 2
		}
		return sorted[n/2]
	}

	idx := int(math.Floor(float64(n) * q))
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// probeVector has a known inclusive-interpolation answer set used by Probe.
var probeVector = []float64{1, 2, 3, 4}

// Probe selects the quantile strategy at startup. The inclusive path is
// validated against a vector with known answers; if it misbehaves the engine
// degrades to nearest-rank indexing rather than failing at call time.
func Probe() Quantiler {
	var inc Inclusive

	checks := []struct {
		q    float64
		want float64
	}{
		{0.25, 1.75},
		{0.5, 2.5},
		{0.75, 3.25},
	}

	for _, c := range checks {
		got := inc.Quantile(probeVector, c.q)
		if math.IsNaN(got) || math.Abs(got-c.want) > 1e-9 {
			return NearestRank{}
		}
	}
	return inc
}

// QuantilerFor resolves a configured strategy name. Empty or unknown names
// fall through to the startup probe.
func QuantilerFor(name string) Quantiler {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "inclusive", "precise":
		return Inclusive{}
	case "nearest-rank", "nearest_rank", "nearest":
		return NearestRank{}
	default:
		return Probe()
	}
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}
