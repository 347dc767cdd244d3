package results

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SweepMetadata describes one sweep run: what was configured, where it ran
// and how far it got. Written into every checkpoint artifact.
type SweepMetadata struct {
	SweepID          string `json:"sweep_id"`
	SweepName        string `json:"sweep_name"`
	Description      string `json:"description"`
	ConfigChecksum   string `json:"config_checksum"`
	DriverVersion    string `json:"driver_version"`
	Hostname         string `json:"hostname"`
	OSInfo           string `json:"os_info"`
	CPUModel         string `json:"cpu_model"`
	PerformanceCores int    `json:"performance_cores"`
	EfficiencyCores  int    `json:"efficiency_cores"`
	TotalCores       int    `json:"total_cores"`
	Repetitions      int    `json:"repetitions"`
	WarmupCount      int    `json:"warmup_count"`
	StartedAt        string `json:"started_at"`  // RFC3339
	FinishedAt       string `json:"finished_at"` // RFC3339, empty while running
	TotalExperiments int    `json:"total_experiments"`
}

// CheckpointArtifact is the crash-recovery image of a sweep in progress:
// metadata plus every completed experiment record. Flushed periodically so
// resumption loses at most the in-flight experiment.
type CheckpointArtifact struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	Metadata *SweepMetadata      `json:"metadata"`
	Results  []*ExperimentResult `json:"results"`
}

func DefaultCheckpointDir() string {
	if v := strings.TrimSpace(os.Getenv("BIO_BENCH_CHECKPOINT_DIR")); v != "" {
		return v
	}
	return "checkpoints"
}

// WriteCheckpoint writes a gzip-compressed JSON artifact to disk
// atomically and returns the final file path.
func WriteCheckpoint(dir string, artifact *CheckpointArtifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("checkpoint artifact is nil")
	}
	if dir == "" {
		dir = DefaultCheckpointDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	checksum := "nocsum"
	sweepID := "unknown"
	if artifact.Metadata != nil {
		if artifact.Metadata.ConfigChecksum != "" {
			checksum = artifact.Metadata.ConfigChecksum
		}
		if artifact.Metadata.SweepID != "" {
			sweepID = artifact.Metadata.SweepID
		}
	}
	name := fmt.Sprintf("sweep_%s_%s.json.gz", sweepID, checksum)
	finalPath := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifact); err != nil {
		_ = gz.Close()
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", err
	}
	ok = true
	return finalPath, nil
}

// LoadCheckpoint reads one checkpoint artifact back from disk.
func LoadCheckpoint(path string) (*CheckpointArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint %s: %w", path, err)
	}
	defer gz.Close()

	var artifact CheckpointArtifact
	if err := json.NewDecoder(gz).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	return &artifact, nil
}

// LatestCheckpoint returns the most recently modified checkpoint artifact
// in dir, or "" when none exists.
func LatestCheckpoint(dir string) (string, error) {
	if dir == "" {
		dir = DefaultCheckpointDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json.gz") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(dir, e.Name()),
			modTime: info.ModTime(),
		})
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	return candidates[0].path, nil
}

// CompletedKeys returns the experiment keys already present in the
// artifact, used by the traversal to skip completed triples on resume.
func (a *CheckpointArtifact) CompletedKeys() map[string]bool {
	keys := make(map[string]bool, len(a.Results))
	for _, r := range a.Results {
		keys[r.Key()] = true
	}
	return keys
}
