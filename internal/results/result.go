package results

import (
	"fmt"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/confgraph"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/stats"
)

// ExperimentResult is the outcome of one (operation, node, scale) triple.
// Created once, never mutated afterward.
type ExperimentResult struct {
	Operation     string         `json:"operation"`
	Node          confgraph.Node `json:"node"`
	ScaleLabel    string         `json:"scale"`
	SequenceCount int            `json:"sequence_count"`

	// TotalBases is the dataset size in bases, for per-base throughput
	// derivation downstream. Zero for records that never loaded a dataset.
	TotalBases int64 `json:"total_bases"`

	// RequestedSamples is the configured repetition count; Stats carries
	// the retained count after outlier removal.
	RequestedSamples int            `json:"requested_samples"`
	Stats            *stats.Summary `json:"stats,omitempty"`

	// SpeedupVsBaseline is the ratio of this node's median throughput to
	// the baseline's for the same operation and scale. Exactly 1.0 for
	// the baseline itself; 0 when unmeasurable.
	SpeedupVsBaseline float64 `json:"speedup_vs_baseline"`

	// Pruned marks a node that was never executed because an ancestor
	// failed its speedup gate. Stats is nil for pruned results.
	Pruned bool `json:"pruned"`

	// Failure carries the error annotation for execution failures and
	// degenerate baselines; empty on success.
	Failure string `json:"failure,omitempty"`
}

// Key is the deterministic identity of the experiment within one sweep,
// used for checkpoint resume.
func (r *ExperimentResult) Key() string {
	return ExperimentKey(r.Operation, r.ScaleLabel, r.Node)
}

func ExperimentKey(operation, scale string, node confgraph.Node) string {
	return fmt.Sprintf("%s|%s|%s", operation, scale, node.ID())
}

// Executed reports whether the workload actually ran for this record.
func (r *ExperimentResult) Executed() bool {
	return !r.Pruned && r.Failure == ""
}

// MedianThroughput returns the median throughput, or 0 when the node never
// produced statistics.
func (r *ExperimentResult) MedianThroughput() float64 {
	if r.Stats == nil {
		return 0
	}
	return r.Stats.Median
}

// Sink receives completed experiment records. Implementations must keep
// field encoding stable within one traversal run.
type Sink interface {
	Write(res *ExperimentResult) error
	Close() error
}

// MultiSink fans writes out to several sinks, failing on the first error.
type MultiSink []Sink

func (m MultiSink) Write(res *ExperimentResult) error {
	for _, s := range m {
		if err := s.Write(res); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Close() error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
