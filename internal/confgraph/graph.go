package confgraph

// backendOrder fixes the enumeration order of alternatives. Node
// generation must be deterministic and order-preserving so re-running the
// same sweep yields identical node identities.
var backendOrder = []BackendKind{
	BackendNaive,
	BackendVectorized,
	BackendGPU,
	BackendAMX,
}

// AlternativesFor returns the baseline plus each supported non-naive
// backend as single-threaded, default-affinity root nodes. The baseline is
// always first and is always generated regardless of the supported set.
func AlternativesFor(supported []BackendKind) []Node {
	set := make(map[BackendKind]bool, len(supported))
	for _, b := range supported {
		set[b] = true
	}

	var nodes []Node
	for _, b := range backendOrder {
		if b != BackendNaive && !set[b] {
			continue
		}
		nodes = append(nodes, Node{Backend: b, Threads: 1, Affinity: AffinityDefault})
	}
	return nodes
}

// CompositionsOf layers thread parallelism on top of a surviving
// alternative. The child inherits the parent's backend, never downgrading
// the optimization, and thread counts are enumerated in the order given.
func CompositionsOf(base Node, threadCounts []int) []Node {
	nodes := make([]Node, 0, len(threadCounts))
	for _, tc := range threadCounts {
		if tc <= 1 {
			continue
		}
		nodes = append(nodes, Node{
			Backend:  base.Backend,
			Threads:  tc,
			Affinity: base.Affinity,
			ParentID: base.ID(),
		})
	}
	return nodes
}

// RefinementsOf varies core affinity around the best composition, keeping
// backend and thread count fixed. Default affinity is skipped since the
// base node already measured it.
func RefinementsOf(base Node, affinities []CoreAffinity) []Node {
	var nodes []Node
	for _, a := range affinities {
		if a == AffinityDefault || a == base.Affinity {
			continue
		}
		nodes = append(nodes, Node{
			Backend:  base.Backend,
			Threads:  base.Threads,
			Affinity: a,
			ParentID: base.ID(),
		})
	}
	return nodes
}
