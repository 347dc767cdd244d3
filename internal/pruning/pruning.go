package pruning

import (
	"errors"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/results"
)

// ErrDegenerateBaseline marks a baseline whose throughput is zero or
// unmeasurable. Without a reference point no speedup ratio exists, so the
// whole operation's remaining sweep is abandoned.
var ErrDegenerateBaseline = errors.New("baseline throughput is zero or unmeasurable")

// Strategy holds the speedup gates controlling which branches of the
// configuration space are worth executing. The defaults are empirical
// policy choices, not derived constants, which is why they are
// configurable rather than hard-coded.
type Strategy struct {
	// AlternativeMinSpeedup is the minimum speedup over baseline an
	// alternative must reach for its descendants to be explored.
	AlternativeMinSpeedup float64

	// CompositionMinIncrementalSpeedup is the minimum speedup over the
	// parent a composition must add to justify escalating further.
	CompositionMinIncrementalSpeedup float64
}

// DefaultStrategy returns the standard 1.5x / 1.3x gates.
func DefaultStrategy() Strategy {
	return Strategy{
		AlternativeMinSpeedup:            1.5,
		CompositionMinIncrementalSpeedup: 1.3,
	}
}

// BaselineDegenerate reports whether the baseline result can serve as a
// speedup reference at all.
func BaselineDegenerate(baseline *results.ExperimentResult) bool {
	return baseline == nil || baseline.Failure != "" || baseline.MedianThroughput() <= 0
}

// ShouldPruneAlternative decides whether an executed alternative's
// descendants (compositions, refinements) are skipped. The alternative
// itself stays in the output as an executed dead end.
func (s Strategy) ShouldPruneAlternative(res, baseline *results.ExperimentResult) bool {
	if BaselineDegenerate(baseline) {
		return true
	}
	if res == nil || res.Failure != "" || res.Stats == nil {
		return true
	}
	return res.SpeedupVsBaseline < s.AlternativeMinSpeedup
}

// ShouldPruneComposition decides whether escalation stops for a lineage.
// Under the diminishing-returns model, once one escalation step fails to
// clear the incremental bar, higher thread counts are never attempted.
func (s Strategy) ShouldPruneComposition(res, parent *results.ExperimentResult) bool {
	if res == nil || res.Failure != "" || res.Stats == nil {
		return true
	}
	if parent == nil || parent.MedianThroughput() <= 0 {
		return true
	}
	incremental := res.MedianThroughput() / parent.MedianThroughput()
	return incremental < s.CompositionMinIncrementalSpeedup
}
