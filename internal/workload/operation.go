package workload

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/confgraph"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/dataset"
)

// ErrUnsupportedBackend is returned when a node requests a backend the
// operation does not implement. The traversal only generates supported
// nodes, so hitting this is a caller error, not a silent fallback.
var ErrUnsupportedBackend = errors.New("operation does not support requested backend")

// Operation is the plugin contract for a benchmarkable workload. Execute
// performs one full pass over the dataset under the node's configuration
// and must be deterministic in its correctness result; only timing varies.
// Implementations must not mutate shared state observable by other runs.
type Operation interface {
	Name() string
	SupportedBackends() []confgraph.BackendKind
	Execute(ctx context.Context, node confgraph.Node, ds *dataset.Dataset) error
}

// Supports reports whether op implements the given backend.
func Supports(op Operation, backend confgraph.BackendKind) bool {
	for _, b := range op.SupportedBackends() {
		if b == backend {
			return true
		}
	}
	return false
}

var registry = map[string]Operation{}

// Register adds an operation to the built-in registry. Called from init
// functions; duplicate names panic because they would make sweep configs
// ambiguous.
func Register(op Operation) {
	if _, exists := registry[op.Name()]; exists {
		panic(fmt.Sprintf("duplicate operation registration: %s", op.Name()))
	}
	registry[op.Name()] = op
}

// Lookup resolves an operation identifier from the registry.
func Lookup(name string) (Operation, error) {
	op, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	return op, nil
}

// RegisteredNames returns all registered operation identifiers in sorted
// order.
func RegisteredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
