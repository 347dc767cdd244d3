package traversal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/confgraph"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/dataset"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/logging"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/pruning"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/results"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/workload"
	"github.com/sirupsen/logrus"
)

// Options tunes the shape of the swept configuration space.
type Options struct {
	// ThreadCounts is the escalation ladder for compositions, tested in
	// the order given. Must be ascending for the monotonic-escalation
	// pruning rule to be meaningful.
	ThreadCounts []int

	// Affinities are the refinement variants tried on the best
	// composition. Default affinity is skipped automatically.
	Affinities []confgraph.CoreAffinity

	// CheckpointDir receives periodic crash-recovery artifacts; empty
	// disables checkpointing.
	CheckpointDir string

	// CheckpointEvery flushes the accumulator after this many completed
	// experiments. Zero means after every experiment.
	CheckpointEvery int
}

// ExperimentRunner executes a single experiment. *workload.Runner is the
// production implementation; tests substitute a deterministic one.
type ExperimentRunner interface {
	Run(ctx context.Context, op workload.Operation, node confgraph.Node, scale dataset.Scale, src dataset.Source) (*results.ExperimentResult, error)
	SampleBudget() int
}

// Traversal orchestrates the full multi-operation, multi-scale sweep:
// baseline, alternatives, compositions of survivors, refinements of the
// best composition. Experiments execute strictly sequentially so timing
// measurements never contend with each other.
type Traversal struct {
	runner   ExperimentRunner
	strategy pruning.Strategy
	source   dataset.Source
	sink     results.Sink
	opts     Options
	metadata *results.SweepMetadata

	log *logrus.Logger

	// prior holds records carried over from a resumed checkpoint, keyed
	// by experiment key. Matching experiments are re-emitted instead of
	// re-executed.
	prior map[string]*results.ExperimentResult

	all        []*results.ExperimentResult
	sinceFlush int
}

func New(runner ExperimentRunner, strategy pruning.Strategy, source dataset.Source, sink results.Sink, metadata *results.SweepMetadata, opts Options) *Traversal {
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = 1
	}
	return &Traversal{
		runner:   runner,
		strategy: strategy,
		source:   source,
		sink:     sink,
		opts:     opts,
		metadata: metadata,
		log:      logging.GetTraversalLogger(),
		prior:    make(map[string]*results.ExperimentResult),
	}
}

// Resume seeds the traversal with a previous checkpoint so completed
// (operation, node, scale) triples are replayed from the artifact instead
// of re-executed.
func (t *Traversal) Resume(artifact *results.CheckpointArtifact) {
	for _, r := range artifact.Results {
		t.prior[r.Key()] = r
	}
	t.log.WithField("completed_experiments", len(t.prior)).Info("Resuming from checkpoint")
}

// Run sweeps every operation against every scale. Iteration order over
// operations, scales, backends, thread counts and affinities is fixed, so
// two runs with the same inputs enumerate identical node identities. A
// broken operation never aborts the others.
func (t *Traversal) Run(ctx context.Context, ops []workload.Operation, scales []dataset.Scale) ([]*results.ExperimentResult, error) {
	for _, op := range ops {
		for _, scale := range scales {
			if err := ctx.Err(); err != nil {
				t.flushCheckpoint(false)
				return t.all, err
			}
			if err := t.sweepOperation(ctx, op, scale); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					t.flushCheckpoint(false)
					return t.all, err
				}
				t.log.WithFields(logrus.Fields{
					"operation": op.Name(),
					"scale":     scale.Label,
				}).WithError(err).Warn("Operation sweep aborted, continuing with next")
			}
		}
	}
	t.flushCheckpoint(true)
	return t.all, nil
}

// sweepOperation runs the four phases for one (operation, scale) pair:
// baseline, alternatives, compositions, refinements. A returned error
// means the remaining nodes for this pair were abandoned; other pairs are
// unaffected.
func (t *Traversal) sweepOperation(ctx context.Context, op workload.Operation, scale dataset.Scale) error {
	nodes := confgraph.AlternativesFor(op.SupportedBackends())
	baselineNode := nodes[0]
	alternatives := nodes[1:]

	t.log.WithFields(logrus.Fields{
		"operation":    op.Name(),
		"scale":        scale.Label,
		"alternatives": len(alternatives),
	}).Info("Sweeping operation")

	// Phase 1: baseline, always executed, never pruned.
	baseline, err := t.execute(ctx, op, baselineNode, scale)
	if err != nil {
		// Even a structurally broken baseline leaves an audit record.
		baseline = t.failedRecord(op, baselineNode, scale, err)
		t.record(baseline)
		t.markAllPruned(op, scale, alternatives)
		return err
	}
	if baseline.Executed() {
		baseline.SpeedupVsBaseline = 1.0
	}
	if pruning.BaselineDegenerate(baseline) && baseline.Failure == "" {
		baseline.Failure = pruning.ErrDegenerateBaseline.Error()
	}
	t.record(baseline)

	if pruning.BaselineDegenerate(baseline) {
		// No reference point: every remaining node for this pair is a
		// pruned marker with no execution attempted.
		t.markAllPruned(op, scale, alternatives)
		return fmt.Errorf("operation %s at scale %s: %w", op.Name(), scale.Label, pruning.ErrDegenerateBaseline)
	}

	// Phase 2: alternatives, each compared against baseline.
	type survivor struct {
		node confgraph.Node
		res  *results.ExperimentResult
	}
	var survivors []survivor

	for _, altNode := range alternatives {
		altRes, err := t.execute(ctx, op, altNode, scale)
		if err != nil {
			if errors.Is(err, workload.ErrUnsupportedBackend) {
				// Node generation only uses declared backends, so this
				// is a plugin contract violation. Fatal to this
				// operation's remaining nodes.
				t.record(t.failedRecord(op, altNode, scale, err))
				return err
			}
			return err
		}
		if altRes.Executed() {
			altRes.SpeedupVsBaseline = altRes.MedianThroughput() / baseline.MedianThroughput()
		}
		t.record(altRes)

		if !t.strategy.ShouldPruneAlternative(altRes, baseline) {
			survivors = append(survivors, survivor{node: altNode, res: altRes})
		} else {
			t.log.WithFields(logrus.Fields{
				"operation": op.Name(),
				"scale":     scale.Label,
				"node":      altNode.ID(),
				"speedup":   altRes.SpeedupVsBaseline,
			}).Debug("Alternative pruned, descendants skipped")
		}
	}

	// Phase 3: compositions of survivors with monotonic escalation. The
	// incremental gate compares each step against the previous surviving
	// step in the same lineage: if 2 threads fails the bar, 4 and 8 are
	// recorded as pruned without execution.
	var bestComp *survivor
	for i := range survivors {
		s := survivors[i]
		comps := confgraph.CompositionsOf(s.node, t.opts.ThreadCounts)
		parent := s.res
		for ci, compNode := range comps {
			compRes, err := t.execute(ctx, op, compNode, scale)
			if err != nil {
				if errors.Is(err, workload.ErrUnsupportedBackend) {
					t.record(t.failedRecord(op, compNode, scale, err))
					return err
				}
				return err
			}
			if compRes.Executed() {
				compRes.SpeedupVsBaseline = compRes.MedianThroughput() / baseline.MedianThroughput()
			}
			t.record(compRes)

			if t.strategy.ShouldPruneComposition(compRes, parent) {
				t.markAllPruned(op, scale, comps[ci+1:])
				break
			}
			parent = compRes
			if compRes.Executed() && (bestComp == nil || compRes.MedianThroughput() > bestComp.res.MedianThroughput()) {
				bestComp = &survivor{node: compNode, res: compRes}
			}
		}
	}

	// Phase 4: refinements of the single best composition, exhaustive.
	if bestComp != nil {
		for _, refNode := range confgraph.RefinementsOf(bestComp.node, t.opts.Affinities) {
			refRes, err := t.execute(ctx, op, refNode, scale)
			if err != nil {
				if errors.Is(err, workload.ErrUnsupportedBackend) {
					t.record(t.failedRecord(op, refNode, scale, err))
					return err
				}
				return err
			}
			if refRes.Executed() {
				refRes.SpeedupVsBaseline = refRes.MedianThroughput() / baseline.MedianThroughput()
			}
			t.record(refRes)
		}
	}

	return nil
}

// execute runs one experiment, or replays it from a resumed checkpoint.
func (t *Traversal) execute(ctx context.Context, op workload.Operation, node confgraph.Node, scale dataset.Scale) (*results.ExperimentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := results.ExperimentKey(op.Name(), scale.Label, node)
	if prev, ok := t.prior[key]; ok {
		t.log.WithField("experiment", key).Debug("Replaying completed experiment from checkpoint")
		return prev, nil
	}
	return t.runner.Run(ctx, op, node, scale, t.source)
}

func (t *Traversal) failedRecord(op workload.Operation, node confgraph.Node, scale dataset.Scale, err error) *results.ExperimentResult {
	return &results.ExperimentResult{
		Operation:        op.Name(),
		Node:             node,
		ScaleLabel:       scale.Label,
		RequestedSamples: t.runner.SampleBudget(),
		Failure:          err.Error(),
	}
}

// markAllPruned materializes generated-but-unexecuted nodes as pruned
// audit records.
func (t *Traversal) markAllPruned(op workload.Operation, scale dataset.Scale, nodes []confgraph.Node) {
	for _, node := range nodes {
		t.record(&results.ExperimentResult{
			Operation:        op.Name(),
			Node:             node,
			ScaleLabel:       scale.Label,
			RequestedSamples: t.runner.SampleBudget(),
			Pruned:           true,
		})
	}
}

// record appends to the accumulator, forwards to the sink and flushes the
// checkpoint on the configured cadence. The accumulator is append-only and
// execution is sequential, so no locking is needed.
func (t *Traversal) record(res *results.ExperimentResult) {
	t.all = append(t.all, res)
	if err := t.sink.Write(res); err != nil {
		t.log.WithField("experiment", res.Key()).WithError(err).Warn("Failed to write result to sink")
	}
	t.sinceFlush++
	if t.sinceFlush >= t.opts.CheckpointEvery {
		t.flushCheckpoint(false)
	}
}

func (t *Traversal) finishMetadata() {
	if t.metadata != nil {
		t.metadata.FinishedAt = time.Now().UTC().Format(time.RFC3339)
		t.metadata.TotalExperiments = len(t.all)
	}
}

func (t *Traversal) flushCheckpoint(final bool) {
	if t.opts.CheckpointDir == "" {
		return
	}
	t.sinceFlush = 0
	if final {
		t.finishMetadata()
	}
	artifact := &results.CheckpointArtifact{
		Version:   1,
		CreatedAt: time.Now(),
		Metadata:  t.metadata,
		Results:   t.all,
	}
	if _, err := results.WriteCheckpoint(t.opts.CheckpointDir, artifact); err != nil {
		t.log.WithError(err).Warn("Failed to write checkpoint artifact")
	}
}
