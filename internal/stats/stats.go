// Package stats turns raw marketplace ask prices into peg-normalized robust
// statistics. The pipeline is deterministic: identical input prices and peg
// produce bit-identical output.
package stats

// Band is the hard sanity filter applied before any statistics. Prices at or
// beyond either bound are discarded as data-entry errors regardless of peg.
type Band struct {
	Low  float64
	High float64
}

// DefaultBand covers the plausible ETB-per-USDT range.
var DefaultBand = Band{Low: 50, High: 400}

// Contains reports whether v lies strictly inside the band.
func (b Band) Contains(v float64) bool {
	return v > b.Low && v < b.High
}

// Stats is an immutable aggregate snapshot for one sample.
type Stats struct {
	Median float64
	Q1     float64
	Q3     float64
	P10    float64
	P90    float64
	Min    float64
	Max    float64
	Count  int
	Values []float64 // sorted, peg-normalized survivors
}

// Aggregate filters prices through the band, normalizes survivors by the peg
// rate, and computes the percentile set. Fewer than two survivors yield nil:
// an absent result the caller skips, not an error.
func Aggregate(prices []float64, peg float64, band Band, q Quantiler) *Stats {
	if peg <= 0 {
		peg = 1
	}
	if q == nil {
		q = Probe()
	}

	kept := make([]float64, 0, len(prices))
	for _, p := range prices {
		if band.Contains(p) {
			kept = append(kept, p)
		}
	}
	if len(kept) < 2 {
		return nil
	}

	values := sortedCopy(kept)
	for i := range values {
		values[i] /= peg
	}

	return &Stats{
		Median: q.Quantile(values, 0.5),
		Q1:     q.Quantile(values, 0.25),
		Q3:     q.Quantile(values, 0.75),
		P10:    q.Quantile(values, 0.10),
		P90:    q.Quantile(values, 0.90),
		Min:    values[0],
		Max:    values[len(values)-1],
		Count:  len(values),
		Values: values,
	}
}

// Premium returns the percentage deviation of median from the official rate.
// An absent official rate yields zero premium by convention.
func Premium(median float64, official *float64) float64 {
	if official == nil || *official == 0 {
		return 0
	}
	return (median - *official) / *official * 100
}
