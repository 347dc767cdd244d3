package confgraph

import "fmt"

// BackendKind is the closed set of compute backends a configuration can
// select. Pruning and composition logic switches on this exhaustively, so
// it is a tagged enum rather than a free-form string.
type BackendKind int

const (
	BackendNaive BackendKind = iota
	BackendVectorized
	BackendGPU
	BackendAMX
)

func (b BackendKind) String() string {
	switch b {
	case BackendNaive:
		return "naive"
	case BackendVectorized:
		return "vectorized"
	case BackendGPU:
		return "gpu"
	case BackendAMX:
		return "amx"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// ParseBackendKind maps a configuration string to a BackendKind.
func ParseBackendKind(s string) (BackendKind, error) {
	switch s {
	case "naive":
		return BackendNaive, nil
	case "vectorized":
		return BackendVectorized, nil
	case "gpu":
		return BackendGPU, nil
	case "amx":
		return BackendAMX, nil
	default:
		return 0, fmt.Errorf("unknown backend kind %q", s)
	}
}

// CoreAffinity names the scheduling hint applied to worker threads.
// On Apple Silicon this distinguishes P-cluster from E-cluster placement;
// Default leaves placement to the OS scheduler.
type CoreAffinity int

const (
	AffinityDefault CoreAffinity = iota
	AffinityPerformance
	AffinityEfficiency
)

func (a CoreAffinity) String() string {
	switch a {
	case AffinityDefault:
		return "default"
	case AffinityPerformance:
		return "performance"
	case AffinityEfficiency:
		return "efficiency"
	default:
		return fmt.Sprintf("affinity(%d)", int(a))
	}
}

func ParseCoreAffinity(s string) (CoreAffinity, error) {
	switch s {
	case "default":
		return AffinityDefault, nil
	case "performance":
		return AffinityPerformance, nil
	case "efficiency":
		return AffinityEfficiency, nil
	default:
		return 0, fmt.Errorf("unknown core affinity %q", s)
	}
}

// Node is one hardware configuration to benchmark. Nodes are immutable
// value types; identity is the full (backend, threads, affinity) tuple so
// the same configuration is never executed twice within one traversal.
type Node struct {
	Backend  BackendKind  `json:"backend"`
	Threads  int          `json:"threads"`
	Affinity CoreAffinity `json:"affinity"`

	// ParentID is the ID of the node this one builds upon, empty for
	// baseline and alternative roots.
	ParentID string `json:"parent_id,omitempty"`
}

// ID returns the deterministic identity string of the configuration tuple.
// ParentID is deliberately excluded: two enumeration paths reaching the
// same tuple denote the same experiment.
func (n Node) ID() string {
	return fmt.Sprintf("%s/t%d/%s", n.Backend, n.Threads, n.Affinity)
}

// IsBaseline reports whether this node is the naive single-threaded
// reference configuration.
func (n Node) IsBaseline() bool {
	return n.Backend == BackendNaive && n.Threads == 1 && n.Affinity == AffinityDefault
}
