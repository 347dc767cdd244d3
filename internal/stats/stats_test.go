package stats

import (
	"math"
	"math/rand"
	"testing"
)

func TestSummarizeIdenticalSamples(t *testing.T) {
	s, err := Summarize([]float64{10, 10, 10, 10, 10}, 1.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Median != 10 || s.Mean != 10 {
		t.Fatalf("expected median=mean=10, got median=%v mean=%v", s.Median, s.Mean)
	}
	if s.StdDev != 0 {
		t.Fatalf("expected zero std dev, got %v", s.StdDev)
	}
	if s.CILow != 10 || s.CIHigh != 10 {
		t.Fatalf("expected CI collapsed to mean, got [%v, %v]", s.CILow, s.CIHigh)
	}
	if s.ValidCount != 5 || s.OriginalCount != 5 {
		t.Fatalf("expected 5/5 samples retained, got %d/%d", s.ValidCount, s.OriginalCount)
	}
}

func TestSummarizeRemovesOutlier(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 1000}
	s, err := Summarize(samples, 1.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(s.Q1-3.25) > 1e-9 {
		t.Fatalf("expected Q1=3.25, got %v", s.Q1)
	}
	if math.Abs(s.Q3-7.75) > 1e-9 {
		t.Fatalf("expected Q3=7.75, got %v", s.Q3)
	}
	if s.ValidCount != 9 {
		t.Fatalf("expected 1000 removed, valid count 9, got %d", s.ValidCount)
	}
	if s.Median != 5 {
		t.Fatalf("expected median 5 after removal, got %v", s.Median)
	}
}

func TestSummarizeSingleSample(t *testing.T) {
	s, err := Summarize([]float64{42.5}, 1.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Median != 42.5 || s.Mean != 42.5 {
		t.Fatalf("expected point estimate 42.5, got median=%v mean=%v", s.Median, s.Mean)
	}
	if s.StdDev != 0 || s.CILow != 42.5 || s.CIHigh != 42.5 {
		t.Fatalf("expected degenerate CI, got sd=%v CI=[%v, %v]", s.StdDev, s.CILow, s.CIHigh)
	}
	if s.ValidCount != 1 {
		t.Fatalf("expected valid count 1, got %d", s.ValidCount)
	}
}

func TestSummarizeEmptyInput(t *testing.T) {
	if _, err := Summarize(nil, 1.5); err == nil {
		t.Fatal("expected error for empty input")
	}
}

// Aggressive filtering must never leave fewer than 2 valid samples.
func TestSummarizeNeverUnderPowers(t *testing.T) {
	vectors := [][]float64{
		{1, 1000},
		{5, 5, 900000},
		{0, 0, 0, 1e12},
		{1, 2, 3},
	}
	for _, v := range vectors {
		s, err := Summarize(v, 0)
		if err != nil {
			t.Fatalf("samples %v: unexpected error: %v", v, err)
		}
		if s.ValidCount < 2 {
			t.Fatalf("samples %v: valid count %d below safeguard", v, s.ValidCount)
		}
		if s.ValidCount > s.OriginalCount {
			t.Fatalf("samples %v: valid count %d exceeds original %d", v, s.ValidCount, s.OriginalCount)
		}
	}
}

func TestSummarizeIdempotent(t *testing.T) {
	samples := []float64{3.1, 2.9, 3.0, 3.3, 2.7, 3.05, 11.0}
	a, err := Summarize(samples, 1.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Summarize(samples, 1.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *a != *b {
		t.Fatalf("re-summarization differs: %+v vs %+v", a, b)
	}
}

// Loose coverage sanity check: the 95% CI should contain the generating
// mean in clearly more than 90% of synthetic trials.
func TestConfidenceIntervalCoverage(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const trueMean = 100.0
	const trials = 500
	hits := 0
	for i := 0; i < trials; i++ {
		samples := make([]float64, 30)
		for j := range samples {
			samples[j] = trueMean + rng.NormFloat64()*5
		}
		s, err := Summarize(samples, 1.5)
		if err != nil {
			t.Fatalf("trial %d: unexpected error: %v", i, err)
		}
		if s.CILow <= trueMean && trueMean <= s.CIHigh {
			hits++
		}
	}
	coverage := float64(hits) / trials
	if coverage < 0.90 {
		t.Fatalf("CI coverage %.3f below 0.90 sanity floor", coverage)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	if got := percentile(sorted, 0.5); got != 25 {
		t.Fatalf("expected interpolated median 25, got %v", got)
	}
	if got := percentile(sorted, 0); got != 10 {
		t.Fatalf("expected min at p=0, got %v", got)
	}
	if got := percentile(sorted, 1); got != 40 {
		t.Fatalf("expected max at p=1, got %v", got)
	}
}
