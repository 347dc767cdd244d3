package traversal

import (
	"context"
	"fmt"
	"testing"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/confgraph"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/dataset"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/pruning"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/results"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/stats"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/workload"
)

// fakeOperation declares backends without doing work; the mock runner
// dictates throughput.
type fakeOperation struct {
	name     string
	backends []confgraph.BackendKind
}

func (f *fakeOperation) Name() string { return f.name }

func (f *fakeOperation) SupportedBackends() []confgraph.BackendKind { return f.backends }

func (f *fakeOperation) Execute(ctx context.Context, node confgraph.Node, ds *dataset.Dataset) error {
	return nil
}

// mockRunner returns dictated medians per experiment key, in place of real
// timing. Missing entries become execution failures; entries with a
// negative median simulate a workload error.
type mockRunner struct {
	medians  map[string]float64
	executed []string
}

func (m *mockRunner) SampleBudget() int { return 30 }

func (m *mockRunner) Run(ctx context.Context, op workload.Operation, node confgraph.Node, scale dataset.Scale, src dataset.Source) (*results.ExperimentResult, error) {
	if !workload.Supports(op, node.Backend) {
		return nil, fmt.Errorf("%w: %s on %s", workload.ErrUnsupportedBackend, node.Backend, op.Name())
	}

	key := results.ExperimentKey(op.Name(), scale.Label, node)
	m.executed = append(m.executed, key)

	res := &results.ExperimentResult{
		Operation:        op.Name(),
		Node:             node,
		ScaleLabel:       scale.Label,
		SequenceCount:    scale.SequenceCount,
		RequestedSamples: 30,
	}

	median, ok := m.medians[key]
	if !ok || median < 0 {
		res.Failure = "simulated workload error"
		return res, nil
	}
	res.Stats = &stats.Summary{
		Median: median, Mean: median,
		CILow: median, CIHigh: median,
		Q1: median, Q3: median,
		ValidCount: 30, OriginalCount: 30,
	}
	return res, nil
}

// collectSink accumulates records in memory.
type collectSink struct {
	records []*results.ExperimentResult
}

func (c *collectSink) Write(res *results.ExperimentResult) error {
	c.records = append(c.records, res)
	return nil
}

func (c *collectSink) Close() error { return nil }

func key(op, scale string, backend confgraph.BackendKind, threads int, affinity confgraph.CoreAffinity) string {
	return results.ExperimentKey(op, scale, confgraph.Node{Backend: backend, Threads: threads, Affinity: affinity})
}

var testScale = dataset.Scale{Label: "1k", SequenceCount: 1000, SequenceLength: 150}

func newTraversal(runner ExperimentRunner, sink results.Sink) *Traversal {
	return New(runner, pruning.DefaultStrategy(), dataset.NewGenerator(1), sink, nil, Options{
		ThreadCounts: []int{2, 4, 8},
		Affinities:   []confgraph.CoreAffinity{confgraph.AffinityPerformance, confgraph.AffinityEfficiency},
	})
}

func findRecord(records []*results.ExperimentResult, k string) *results.ExperimentResult {
	for _, r := range records {
		if r.Key() == k {
			return r
		}
	}
	return nil
}

func TestBaselineSpeedupIdentity(t *testing.T) {
	op := &fakeOperation{name: "base-count", backends: []confgraph.BackendKind{confgraph.BackendNaive, confgraph.BackendVectorized}}
	runner := &mockRunner{medians: map[string]float64{
		key("base-count", "1k", confgraph.BackendNaive, 1, confgraph.AffinityDefault):      100,
		key("base-count", "1k", confgraph.BackendVectorized, 1, confgraph.AffinityDefault): 120,
	}}
	sink := &collectSink{}

	all, err := newTraversal(runner, sink).Run(context.Background(), []workload.Operation{op}, []dataset.Scale{testScale})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	baseline := findRecord(all, key("base-count", "1k", confgraph.BackendNaive, 1, confgraph.AffinityDefault))
	if baseline == nil {
		t.Fatal("baseline record missing")
	}
	if baseline.SpeedupVsBaseline != 1.0 {
		t.Fatalf("baseline speedup must be exactly 1.0, got %v", baseline.SpeedupVsBaseline)
	}
}

func TestAlternativePrunedSkipsDescendants(t *testing.T) {
	op := &fakeOperation{name: "base-count", backends: []confgraph.BackendKind{confgraph.BackendNaive, confgraph.BackendVectorized}}
	// 1.2x speedup, below the 1.5x gate.
	runner := &mockRunner{medians: map[string]float64{
		key("base-count", "1k", confgraph.BackendNaive, 1, confgraph.AffinityDefault):      100,
		key("base-count", "1k", confgraph.BackendVectorized, 1, confgraph.AffinityDefault): 120,
	}}
	sink := &collectSink{}

	all, err := newTraversal(runner, sink).Run(context.Background(), []workload.Operation{op}, []dataset.Scale{testScale})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alt := findRecord(all, key("base-count", "1k", confgraph.BackendVectorized, 1, confgraph.AffinityDefault))
	if alt == nil || alt.Pruned {
		t.Fatalf("executed alternative must appear unpruned, got %+v", alt)
	}
	if alt.SpeedupVsBaseline != 1.2 {
		t.Fatalf("expected speedup 1.2, got %v", alt.SpeedupVsBaseline)
	}
	// Descendant generation is skipped entirely: exactly 2 records.
	if len(all) != 2 {
		t.Fatalf("expected 2 records (baseline + dead-end alternative), got %d", len(all))
	}
}

func TestSurvivorCompositionsAndRefinements(t *testing.T) {
	op := &fakeOperation{name: "base-count", backends: []confgraph.BackendKind{confgraph.BackendNaive, confgraph.BackendVectorized}}
	runner := &mockRunner{medians: map[string]float64{
		key("base-count", "1k", confgraph.BackendNaive, 1, confgraph.AffinityDefault):      100,
		key("base-count", "1k", confgraph.BackendVectorized, 1, confgraph.AffinityDefault): 180,
		// t2 doubles the parent (2.0 >= 1.3), t4 adds only 1.1x (< 1.3).
		key("base-count", "1k", confgraph.BackendVectorized, 2, confgraph.AffinityDefault): 360,
		key("base-count", "1k", confgraph.BackendVectorized, 4, confgraph.AffinityDefault): 396,
		// Refinements of the best composition (t2).
		key("base-count", "1k", confgraph.BackendVectorized, 2, confgraph.AffinityPerformance): 370,
		key("base-count", "1k", confgraph.BackendVectorized, 2, confgraph.AffinityEfficiency):  250,
	}}
	sink := &collectSink{}

	all, err := newTraversal(runner, sink).Run(context.Background(), []workload.Operation{op}, []dataset.Scale{testScale})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Monotonic escalation: t4 failed the incremental gate, so t8 must be
	// a pruned marker that never executed.
	t8Key := key("base-count", "1k", confgraph.BackendVectorized, 8, confgraph.AffinityDefault)
	t8 := findRecord(all, t8Key)
	if t8 == nil {
		t.Fatal("t8 must be materialized as a pruned audit record")
	}
	if !t8.Pruned || t8.Stats != nil {
		t.Fatalf("t8 must be pruned with no statistics, got %+v", t8)
	}
	for _, executed := range runner.executed {
		if executed == t8Key {
			t.Fatal("pruned node must never execute")
		}
	}

	// t4 was executed before the lineage stopped.
	t4 := findRecord(all, key("base-count", "1k", confgraph.BackendVectorized, 4, confgraph.AffinityDefault))
	if t4 == nil || t4.Pruned {
		t.Fatalf("t4 was executed and must appear unpruned, got %+v", t4)
	}

	// t4 failed the incremental gate, so t2 is the best surviving
	// composition and receives the affinity refinements.
	perf := findRecord(all, key("base-count", "1k", confgraph.BackendVectorized, 2, confgraph.AffinityPerformance))
	eff := findRecord(all, key("base-count", "1k", confgraph.BackendVectorized, 2, confgraph.AffinityEfficiency))
	if perf == nil || eff == nil {
		t.Fatal("both affinity refinements of the best composition must run")
	}
	if perf.Pruned || eff.Pruned {
		t.Fatal("refinements are exhaustive, never pruned")
	}
}

func TestDegenerateBaselinePrunesOperation(t *testing.T) {
	op := &fakeOperation{name: "gc-content", backends: []confgraph.BackendKind{confgraph.BackendNaive, confgraph.BackendVectorized, confgraph.BackendGPU}}
	runner := &mockRunner{medians: map[string]float64{
		key("gc-content", "1k", confgraph.BackendNaive, 1, confgraph.AffinityDefault): 0,
	}}
	sink := &collectSink{}

	all, err := newTraversal(runner, sink).Run(context.Background(), []workload.Operation{op}, []dataset.Scale{testScale})
	if err != nil {
		t.Fatalf("degenerate baseline must not abort the whole run: %v", err)
	}

	baseline := findRecord(all, key("gc-content", "1k", confgraph.BackendNaive, 1, confgraph.AffinityDefault))
	if baseline == nil || baseline.Failure == "" {
		t.Fatalf("baseline must carry a degenerate annotation, got %+v", baseline)
	}

	// Both alternatives are materialized as pruned with no execution.
	prunedCount := 0
	for _, r := range all {
		if r.Pruned {
			prunedCount++
			if r.Stats != nil {
				t.Fatalf("pruned record must have no statistics: %+v", r)
			}
		}
	}
	if prunedCount != 2 {
		t.Fatalf("expected 2 pruned alternative markers, got %d", prunedCount)
	}
	if len(runner.executed) != 1 {
		t.Fatalf("only the baseline may execute, got %v", runner.executed)
	}
}

func TestFailureIsolationAcrossOperations(t *testing.T) {
	broken := &fakeOperation{name: "broken", backends: []confgraph.BackendKind{confgraph.BackendNaive}}
	healthy := &fakeOperation{name: "healthy", backends: []confgraph.BackendKind{confgraph.BackendNaive, confgraph.BackendVectorized}}
	runner := &mockRunner{medians: map[string]float64{
		// broken's baseline is missing -> simulated execution failure.
		key("healthy", "1k", confgraph.BackendNaive, 1, confgraph.AffinityDefault):      100,
		key("healthy", "1k", confgraph.BackendVectorized, 1, confgraph.AffinityDefault): 200,
	}}
	sink := &collectSink{}

	all, err := newTraversal(runner, sink).Run(context.Background(), []workload.Operation{broken, healthy}, []dataset.Scale{testScale})
	if err != nil {
		t.Fatalf("one broken operation must not abort the sweep: %v", err)
	}

	brokenBaseline := findRecord(all, key("broken", "1k", confgraph.BackendNaive, 1, confgraph.AffinityDefault))
	if brokenBaseline == nil || brokenBaseline.Failure == "" {
		t.Fatalf("broken baseline must be recorded with a failure marker, got %+v", brokenBaseline)
	}

	healthyAlt := findRecord(all, key("healthy", "1k", confgraph.BackendVectorized, 1, confgraph.AffinityDefault))
	if healthyAlt == nil || healthyAlt.SpeedupVsBaseline != 2.0 {
		t.Fatalf("healthy operation must still be swept, got %+v", healthyAlt)
	}
}

func TestResumeReplaysWithoutExecution(t *testing.T) {
	op := &fakeOperation{name: "base-count", backends: []confgraph.BackendKind{confgraph.BackendNaive, confgraph.BackendVectorized}}
	runner := &mockRunner{medians: map[string]float64{
		key("base-count", "1k", confgraph.BackendNaive, 1, confgraph.AffinityDefault):      100,
		key("base-count", "1k", confgraph.BackendVectorized, 1, confgraph.AffinityDefault): 120,
	}}
	sink := &collectSink{}
	tr := newTraversal(runner, sink)

	baselineKey := key("base-count", "1k", confgraph.BackendNaive, 1, confgraph.AffinityDefault)
	tr.Resume(&results.CheckpointArtifact{
		Results: []*results.ExperimentResult{{
			Operation:         "base-count",
			Node:              confgraph.Node{Backend: confgraph.BackendNaive, Threads: 1, Affinity: confgraph.AffinityDefault},
			ScaleLabel:        "1k",
			Stats:             &stats.Summary{Median: 100, Mean: 100, ValidCount: 30, OriginalCount: 30},
			SpeedupVsBaseline: 1.0,
		}},
	})

	all, err := tr.Run(context.Background(), []workload.Operation{op}, []dataset.Scale{testScale})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, executed := range runner.executed {
		if executed == baselineKey {
			t.Fatal("resumed baseline must not re-execute")
		}
	}
	if findRecord(all, baselineKey) == nil {
		t.Fatal("resumed baseline must still appear in output")
	}
	if findRecord(all, key("base-count", "1k", confgraph.BackendVectorized, 1, confgraph.AffinityDefault)) == nil {
		t.Fatal("non-resumed alternative must execute")
	}
}

func TestDeterministicEnumeration(t *testing.T) {
	op := &fakeOperation{name: "base-count", backends: []confgraph.BackendKind{confgraph.BackendNaive, confgraph.BackendVectorized}}
	medians := map[string]float64{
		key("base-count", "1k", confgraph.BackendNaive, 1, confgraph.AffinityDefault):      100,
		key("base-count", "1k", confgraph.BackendVectorized, 1, confgraph.AffinityDefault): 180,
		key("base-count", "1k", confgraph.BackendVectorized, 2, confgraph.AffinityDefault): 360,
		key("base-count", "1k", confgraph.BackendVectorized, 4, confgraph.AffinityDefault): 400,
	}

	run := func() []string {
		runner := &mockRunner{medians: medians}
		sink := &collectSink{}
		all, err := newTraversal(runner, sink).Run(context.Background(), []workload.Operation{op}, []dataset.Scale{testScale})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		keys := make([]string, len(all))
		for i, r := range all {
			keys[i] = r.Key()
		}
		return keys
	}

	a := run()
	b := run()
	if len(a) != len(b) {
		t.Fatalf("record counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("record %d differs between runs: %s vs %s", i, a[i], b[i])
		}
	}
}
