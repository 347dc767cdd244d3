package dataset

import (
	"fmt"
	"math/rand"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/logging"
	"github.com/sirupsen/logrus"
)

// Scale names one workload size. SequenceCount is the number of reads in
// the generated dataset, SequenceLength the fixed read length in bases.
type Scale struct {
	Label          string
	SequenceCount  int
	SequenceLength int
}

// Scales is the catalog of workload sizes a sweep config can select.
// Order is fixed; the traversal iterates scales in the order given.
var Scales = []Scale{
	{Label: "1k", SequenceCount: 1_000, SequenceLength: 150},
	{Label: "10k", SequenceCount: 10_000, SequenceLength: 150},
	{Label: "100k", SequenceCount: 100_000, SequenceLength: 150},
	{Label: "1m", SequenceCount: 1_000_000, SequenceLength: 150},
}

// DefaultScales are swept when the config does not restrict them. The 1m
// scale is opt-in: a full sweep over it runs for hours.
var DefaultScales = Scales[:3]

// ScaleByLabel resolves a configured scale label against the catalog.
func ScaleByLabel(label string) (Scale, error) {
	for _, s := range Scales {
		if s.Label == label {
			return s, nil
		}
	}
	return Scale{}, fmt.Errorf("unknown scale label %q", label)
}

// Dataset is an in-memory set of nucleotide sequences handed opaquely to
// operation plugins.
type Dataset struct {
	Label      string
	Sequences  [][]byte
	TotalBases int64
}

// SequenceCount returns the number of reads in the dataset.
func (d *Dataset) SequenceCount() int {
	return len(d.Sequences)
}

// Source provides a fixed, reproducible dataset per scale. The traversal
// treats it as a black box so alternative loaders (FASTA readers, memory-
// mapped archives) can be substituted.
type Source interface {
	Dataset(scale Scale) (*Dataset, error)
}

var bases = []byte{'A', 'C', 'G', 'T'}

// Generator is the default Source: a seeded pseudo-random sequence
// generator. The same (seed, scale) pair always yields byte-identical
// datasets, which is what makes cross-run comparisons valid.
type Generator struct {
	Seed  int64
	cache map[string]*Dataset
}

func NewGenerator(seed int64) *Generator {
	return &Generator{Seed: seed, cache: make(map[string]*Dataset)}
}

func (g *Generator) Dataset(scale Scale) (*Dataset, error) {
	if scale.SequenceCount <= 0 || scale.SequenceLength <= 0 {
		return nil, fmt.Errorf("degenerate scale %q (%d x %d)", scale.Label, scale.SequenceCount, scale.SequenceLength)
	}
	if ds, ok := g.cache[scale.Label]; ok {
		return ds, nil
	}

	logger := logging.GetLogger()
	logger.WithFields(logrus.Fields{
		"scale":     scale.Label,
		"sequences": scale.SequenceCount,
		"length":    scale.SequenceLength,
	}).Debug("Generating dataset")

	// Per-scale seed derivation keeps datasets stable even if the set of
	// requested scales changes between runs.
	rng := rand.New(rand.NewSource(g.Seed ^ int64(len(scale.Label))<<32 ^ int64(scale.SequenceCount)))

	ds := &Dataset{
		Label:     scale.Label,
		Sequences: make([][]byte, scale.SequenceCount),
	}
	for i := range ds.Sequences {
		seq := make([]byte, scale.SequenceLength)
		for j := range seq {
			seq[j] = bases[rng.Intn(len(bases))]
		}
		ds.Sequences[i] = seq
	}
	ds.TotalBases = int64(scale.SequenceCount) * int64(scale.SequenceLength)

	g.cache[scale.Label] = ds
	return ds, nil
}
