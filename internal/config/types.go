package config

import (
	"time"
)

type SweepConfig struct {
	Sweep SweepInfo `yaml:"sweep"`
}

type SweepInfo struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	LogLevel    string `yaml:"log_level"`

	// Seed drives the deterministic dataset generator.
	Seed int64 `yaml:"seed"`

	Repetitions          int     `yaml:"repetitions"`
	Warmup               int     `yaml:"warmup"`
	OutlierIQRMultiplier float64 `yaml:"outlier_iqr_multiplier"`

	// RepetitionTimeoutMS is the optional per-repetition watchdog in
	// milliseconds; 0 disables it.
	RepetitionTimeoutMS int `yaml:"repetition_timeout_ms"`

	Pruning PruningConfig `yaml:"pruning"`

	ThreadCounts []int    `yaml:"thread_counts"`
	Affinities   []string `yaml:"affinities"`
	Operations   []string `yaml:"operations"`
	Scales       []string `yaml:"scales"`

	Output OutputConfig `yaml:"output"`
}

type PruningConfig struct {
	AlternativeMinSpeedup            float64 `yaml:"alternative_min_speedup"`
	CompositionMinIncrementalSpeedup float64 `yaml:"composition_min_incremental_speedup"`
}

type OutputConfig struct {
	CSV             string         `yaml:"csv"`
	CheckpointDir   string         `yaml:"checkpoint_dir"`
	CheckpointEvery int            `yaml:"checkpoint_every"`
	DB              DatabaseConfig `yaml:"db"`
}

type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

func (c *SweepConfig) GetRepetitionTimeout() time.Duration {
	return time.Duration(c.Sweep.RepetitionTimeoutMS) * time.Millisecond
}

// defaultSweepConfig carries the standard sweep parameters. The config
// file is unmarshalled on top of it, so only settings the file names are
// overwritten and an explicitly configured zero (warmup: 0, seed: 0,
// outlier_iqr_multiplier: 0) survives parsing.
func defaultSweepConfig() *SweepConfig {
	return &SweepConfig{
		Sweep: SweepInfo{
			LogLevel:             "info",
			Seed:                 42,
			Repetitions:          30,
			Warmup:               3,
			OutlierIQRMultiplier: 1.5,
			Pruning: PruningConfig{
				AlternativeMinSpeedup:            1.5,
				CompositionMinIncrementalSpeedup: 1.3,
			},
			ThreadCounts: []int{2, 4, 8},
			Affinities:   []string{"performance", "efficiency"},
			Scales:       []string{"1k", "10k", "100k"},
			Output: OutputConfig{
				CSV:             "results.csv",
				CheckpointEvery: 1,
			},
		},
	}
}
