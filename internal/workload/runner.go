package workload

import (
	"context"
	"fmt"
	"time"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/confgraph"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/dataset"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/logging"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/results"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/stats"
	"github.com/sirupsen/logrus"
)

// Runner executes one (operation, node, scale) experiment: warmup passes,
// timed repetitions, statistical reduction. Experiments run strictly one
// at a time; the only concurrency is inside the workload itself, bounded
// by the node's thread count.
type Runner struct {
	Repetitions   int
	WarmupCount   int
	IQRMultiplier float64

	// RepetitionTimeout is an optional defensive wall-clock watchdog per
	// repetition. Zero disables it.
	RepetitionTimeout time.Duration
}

// SampleBudget returns the configured repetition count per experiment.
func (r *Runner) SampleBudget() int {
	return r.Repetitions
}

// Run produces the reduced result for one experiment. Precondition
// violations (bad repetition count, unsupported backend) are returned as
// errors; a runtime failure inside the workload is converted into a
// result record with a failure annotation and no statistics. Failures are
// never retried here: a retry would mask real workload defects.
func (r *Runner) Run(ctx context.Context, op Operation, node confgraph.Node, scale dataset.Scale, src dataset.Source) (*results.ExperimentResult, error) {
	if r.Repetitions < 1 {
		return nil, fmt.Errorf("repetitions must be >= 1, got %d", r.Repetitions)
	}
	if r.WarmupCount < 0 {
		return nil, fmt.Errorf("warmup count must be >= 0, got %d", r.WarmupCount)
	}
	if !Supports(op, node.Backend) {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedBackend, node.Backend, op.Name())
	}

	ds, err := src.Dataset(scale)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %q: %w", scale.Label, err)
	}

	logger := logging.GetTraversalLogger()
	logger.WithFields(logrus.Fields{
		"operation":   op.Name(),
		"node":        node.ID(),
		"scale":       scale.Label,
		"repetitions": r.Repetitions,
		"warmup":      r.WarmupCount,
	}).Debug("Running experiment")

	res := &results.ExperimentResult{
		Operation:        op.Name(),
		Node:             node,
		ScaleLabel:       scale.Label,
		SequenceCount:    ds.SequenceCount(),
		TotalBases:       ds.TotalBases,
		RequestedSamples: r.Repetitions,
	}

	// Warmup passes flush cold caches and let frequency scaling settle;
	// their timings are discarded.
	for i := 0; i < r.WarmupCount; i++ {
		if _, err := r.timedExecute(ctx, op, node, ds); err != nil {
			res.Failure = fmt.Sprintf("warmup %d: %v", i, err)
			return res, nil
		}
	}

	samples := make([]float64, 0, r.Repetitions)
	for i := 0; i < r.Repetitions; i++ {
		elapsed, err := r.timedExecute(ctx, op, node, ds)
		if err != nil {
			res.Failure = fmt.Sprintf("repetition %d: %v", i, err)
			return res, nil
		}
		// Throughput in sequences per second.
		samples = append(samples, float64(ds.SequenceCount())/elapsed.Seconds())
	}

	summary, err := stats.Summarize(samples, r.IQRMultiplier)
	if err != nil {
		// Only reachable if the never-below-2 safeguard is bypassed.
		return nil, fmt.Errorf("summary of %s failed: %w", res.Key(), err)
	}
	res.Stats = summary

	logger.WithFields(logrus.Fields{
		"operation":     op.Name(),
		"node":          node.ID(),
		"scale":         scale.Label,
		"median":        summary.Median,
		"valid_samples": summary.ValidCount,
	}).Debug("Experiment complete")

	return res, nil
}

func (r *Runner) timedExecute(ctx context.Context, op Operation, node confgraph.Node, ds *dataset.Dataset) (time.Duration, error) {
	execCtx := ctx
	if r.RepetitionTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.RepetitionTimeout)
		defer cancel()
	}

	start := time.Now()
	err := op.Execute(execCtx, node, ds)
	elapsed := time.Since(start)

	if err != nil {
		return 0, err
	}
	if elapsed <= 0 {
		// Timer resolution floor; a zero elapsed would blow up the
		// throughput division.
		elapsed = time.Nanosecond
	}
	if r.RepetitionTimeout > 0 && elapsed > r.RepetitionTimeout {
		return 0, fmt.Errorf("repetition exceeded watchdog limit %s (took %s)", r.RepetitionTimeout, elapsed)
	}
	return elapsed, nil
}
