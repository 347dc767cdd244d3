package workload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/confgraph"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/dataset"
)

// blackhole prevents the compiler from eliminating the measured work.
var blackhole uint64

// pureGoBackends is the backend set every built-in operation supports in
// this build. GPU and AMX kernels are pluggable externally; the reference
// operations here stay portable Go.
var pureGoBackends = []confgraph.BackendKind{
	confgraph.BackendNaive,
	confgraph.BackendVectorized,
}

func init() {
	Register(&baseCountOp{})
	Register(&gcContentOp{})
	Register(&reverseComplementOp{})
	Register(&kmerCountOp{})
}

// shardFunc processes one shard of sequences and returns an accumulator
// value that is folded into the blackhole.
type shardFunc func(seqs [][]byte) uint64

// runSharded executes fn over the dataset, split across node.Threads
// goroutines when the node asks for parallelism. This is the only place
// the harness runs concurrent work, and it is bounded by the thread count
// under measurement. Core affinity is recorded as a configuration
// dimension; the portable build has no thread placement control, so the
// hint is carried through to the result record without being enforced.
func runSharded(ctx context.Context, node confgraph.Node, ds *dataset.Dataset, fn shardFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	seqs := ds.Sequences
	if node.Threads <= 1 {
		atomic.AddUint64(&blackhole, fn(seqs))
		return ctx.Err()
	}

	workers := node.Threads
	if workers > len(seqs) {
		workers = len(seqs)
	}
	chunk := (len(seqs) + workers - 1) / workers

	var total uint64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(seqs) {
			hi = len(seqs)
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(shard [][]byte) {
			defer wg.Done()
			atomic.AddUint64(&total, fn(shard))
		}(seqs[lo:hi])
	}
	wg.Wait()

	atomic.AddUint64(&blackhole, total)
	return ctx.Err()
}

// baseTable maps a nucleotide byte to a small index; 255 marks bytes that
// are not A/C/G/T.
var baseTable [256]uint8

// gcTable is 1 for G/C bytes, 0 otherwise.
var gcTable [256]uint8

// complementTable maps each base to its complement.
var complementTable [256]byte

func init() {
	for i := range baseTable {
		baseTable[i] = 255
		complementTable[i] = byte(i)
	}
	baseTable['A'] = 0
	baseTable['C'] = 1
	baseTable['G'] = 2
	baseTable['T'] = 3
	gcTable['G'] = 1
	gcTable['C'] = 1
	complementTable['A'] = 'T'
	complementTable['T'] = 'A'
	complementTable['C'] = 'G'
	complementTable['G'] = 'C'
}

// baseCountOp counts A/C/G/T occurrences across the dataset.
type baseCountOp struct{}

func (baseCountOp) Name() string { return "base-count" }

func (baseCountOp) SupportedBackends() []confgraph.BackendKind { return pureGoBackends }

func (o *baseCountOp) Execute(ctx context.Context, node confgraph.Node, ds *dataset.Dataset) error {
	switch node.Backend {
	case confgraph.BackendNaive:
		return runSharded(ctx, node, ds, func(seqs [][]byte) uint64 {
			var counts [4]uint64
			for _, seq := range seqs {
				for _, b := range seq {
					switch b {
					case 'A':
						counts[0]++
					case 'C':
						counts[1]++
					case 'G':
						counts[2]++
					case 'T':
						counts[3]++
					}
				}
			}
			return counts[0] + counts[1]<<1 + counts[2]<<2 + counts[3]<<3
		})
	case confgraph.BackendVectorized:
		return runSharded(ctx, node, ds, func(seqs [][]byte) uint64 {
			var counts [4]uint64
			for _, seq := range seqs {
				for _, b := range seq {
					if idx := baseTable[b]; idx != 255 {
						counts[idx]++
					}
				}
			}
			return counts[0] + counts[1]<<1 + counts[2]<<2 + counts[3]<<3
		})
	default:
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedBackend, node.Backend, o.Name())
	}
}

// gcContentOp accumulates the G+C fraction numerators per sequence.
type gcContentOp struct{}

func (gcContentOp) Name() string { return "gc-content" }

func (gcContentOp) SupportedBackends() []confgraph.BackendKind { return pureGoBackends }

func (o *gcContentOp) Execute(ctx context.Context, node confgraph.Node, ds *dataset.Dataset) error {
	switch node.Backend {
	case confgraph.BackendNaive:
		return runSharded(ctx, node, ds, func(seqs [][]byte) uint64 {
			var gc uint64
			for _, seq := range seqs {
				for _, b := range seq {
					if b == 'G' || b == 'C' {
						gc++
					}
				}
			}
			return gc
		})
	case confgraph.BackendVectorized:
		return runSharded(ctx, node, ds, func(seqs [][]byte) uint64 {
			var gc uint64
			for _, seq := range seqs {
				for _, b := range seq {
					gc += uint64(gcTable[b])
				}
			}
			return gc
		})
	default:
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedBackend, node.Backend, o.Name())
	}
}

// reverseComplementOp builds the reverse complement of every sequence into
// a per-shard scratch buffer.
type reverseComplementOp struct{}

func (reverseComplementOp) Name() string { return "reverse-complement" }

func (reverseComplementOp) SupportedBackends() []confgraph.BackendKind { return pureGoBackends }

func (o *reverseComplementOp) Execute(ctx context.Context, node confgraph.Node, ds *dataset.Dataset) error {
	revcomp := func(seqs [][]byte) uint64 {
		var scratch []byte
		var acc uint64
		for _, seq := range seqs {
			if cap(scratch) < len(seq) {
				scratch = make([]byte, len(seq))
			}
			scratch = scratch[:len(seq)]
			for i, b := range seq {
				scratch[len(seq)-1-i] = complementTable[b]
			}
			acc += uint64(scratch[0])
		}
		return acc
	}

	switch node.Backend {
	case confgraph.BackendNaive, confgraph.BackendVectorized:
		// The table lookup is the vectorizable form; the naive form is
		// identical in pure Go, so both backends share the kernel here.
		return runSharded(ctx, node, ds, revcomp)
	default:
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedBackend, node.Backend, o.Name())
	}
}

// kmerCountOp counts 4-mer occurrences using a 2-bit packed rolling index.
type kmerCountOp struct{}

func (kmerCountOp) Name() string { return "kmer-count" }

func (kmerCountOp) SupportedBackends() []confgraph.BackendKind { return pureGoBackends }

func (o *kmerCountOp) Execute(ctx context.Context, node confgraph.Node, ds *dataset.Dataset) error {
	switch node.Backend {
	case confgraph.BackendNaive:
		return runSharded(ctx, node, ds, func(seqs [][]byte) uint64 {
			counts := make(map[string]uint64)
			for _, seq := range seqs {
				for i := 0; i+4 <= len(seq); i++ {
					counts[string(seq[i:i+4])]++
				}
			}
			return uint64(len(counts))
		})
	case confgraph.BackendVectorized:
		return runSharded(ctx, node, ds, func(seqs [][]byte) uint64 {
			var counts [256]uint64
			for _, seq := range seqs {
				var idx, filled uint8
				for _, b := range seq {
					code := baseTable[b]
					if code == 255 {
						filled = 0
						continue
					}
					idx = idx<<2 | code
					if filled < 3 {
						filled++
						continue
					}
					counts[idx]++
				}
			}
			var nonzero uint64
			for _, c := range counts {
				if c > 0 {
					nonzero++
				}
			}
			return nonzero
		})
	default:
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedBackend, node.Backend, o.Name())
	}
}
