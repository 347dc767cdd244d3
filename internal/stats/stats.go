package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInsufficientSamples indicates the summary was asked to work with an
// empty sample vector. Fewer than one valid sample after filtering is an
// implementation bug, not a runtime condition.
var ErrInsufficientSamples = errors.New("insufficient samples for summary")

// Summary holds the reduced statistics of one experiment's sample vector.
// Throughput units are whatever the caller measured in; the summary is
// unit-agnostic.
type Summary struct {
	Mean          float64 `json:"mean"`
	Median        float64 `json:"median"`
	StdDev        float64 `json:"std_dev"`
	CILow         float64 `json:"ci_low"`
	CIHigh        float64 `json:"ci_high"`
	Q1            float64 `json:"q1"`
	Q3            float64 `json:"q3"`
	IQR           float64 `json:"iqr"`
	ValidCount    int     `json:"valid_count"`
	OriginalCount int     `json:"original_count"`
}

// percentile computes the p-quantile (0 <= p <= 1) of a sorted slice using
// linear interpolation between order statistics. gonum's Quantile kinds
// interpolate between empirical CDF steps, which does not match the
// quartile values downstream tooling expects, so the interpolation is done
// here and gonum handles the rest.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Summarize reduces raw samples to a robust summary: Tukey-fence outlier
// removal at iqrMultiplier followed by mean, median, sample standard
// deviation and a 95% t-distribution confidence interval for the mean.
//
// If filtering would leave fewer than 2 valid samples, the original vector
// is retained unfiltered so the estimate is never under-powered.
func Summarize(samples []float64, iqrMultiplier float64) (*Summary, error) {
	if len(samples) == 0 {
		return nil, ErrInsufficientSamples
	}
	if iqrMultiplier < 0 {
		return nil, fmt.Errorf("negative IQR multiplier %v", iqrMultiplier)
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lower := q1 - iqrMultiplier*iqr
	upper := q3 + iqrMultiplier*iqr

	valid := sorted[:0:0]
	for _, v := range sorted {
		if v >= lower && v <= upper {
			valid = append(valid, v)
		}
	}
	if len(valid) < 2 {
		valid = sorted
	}

	n := len(valid)
	mean := stat.Mean(valid, nil)
	median := percentile(valid, 0.5)

	var sd float64
	if n > 1 {
		sd = stat.StdDev(valid, nil)
	}

	ciLow, ciHigh := mean, mean
	if n > 1 && sd > 0 {
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
		tCrit := t.Quantile(0.975)
		half := tCrit * sd / math.Sqrt(float64(n))
		ciLow = mean - half
		ciHigh = mean + half
	}

	return &Summary{
		Mean:          mean,
		Median:        median,
		StdDev:        sd,
		CILow:         ciLow,
		CIHigh:        ciHigh,
		Q1:            q1,
		Q3:            q3,
		IQR:           iqr,
		ValidCount:    n,
		OriginalCount: len(samples),
	}, nil
}
