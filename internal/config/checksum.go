package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

type sweepChecksumPayload struct {
	Seed         int64    `json:"seed"`
	Repetitions  int      `json:"repetitions"`
	Warmup       int      `json:"warmup"`
	IQR          float64  `json:"iqr"`
	AltGate      float64  `json:"alt_gate"`
	CompGate     float64  `json:"comp_gate"`
	ThreadCounts []int    `json:"thread_counts"`
	Affinities   []string `json:"affinities"`
	Operations   []string `json:"operations"`
	Scales       []string `json:"scales"`
}

// SweepChecksum returns a short, stable checksum identifying the effective
// experiment space (which triples will be enumerated and how they are
// measured), independent of output settings. Two configs with the same
// checksum produce identical node identities, which is what makes
// checkpoint resume safe.
//
// MD5 over canonical JSON, first 6 hex characters.
func SweepChecksum(cfg *SweepConfig) (string, error) {
	if cfg == nil {
		return "", nil
	}
	s := cfg.Sweep

	payload := sweepChecksumPayload{
		Seed:         s.Seed,
		Repetitions:  s.Repetitions,
		Warmup:       s.Warmup,
		IQR:          s.OutlierIQRMultiplier,
		AltGate:      s.Pruning.AlternativeMinSpeedup,
		CompGate:     s.Pruning.CompositionMinIncrementalSpeedup,
		ThreadCounts: s.ThreadCounts,
		Affinities:   s.Affinities,
		Operations:   s.Operations,
		Scales:       s.Scales,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(b)
	hexStr := hex.EncodeToString(sum[:])
	if len(hexStr) > 6 {
		hexStr = hexStr[:6]
	}
	return hexStr, nil
}
