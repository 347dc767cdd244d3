package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/confgraph"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/dataset"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/logging"

	"gopkg.in/yaml.v3"
)

func LoadConfig(filepath string) (*SweepConfig, error) {
	config, _, err := LoadConfigWithContent(filepath)
	return config, err
}

func LoadConfigWithContent(filepath string) (*SweepConfig, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	originalContent := string(data)

	// Expand environment variables
	expanded := expandEnvVars(originalContent)

	config := defaultSweepConfig()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, "", err
	}

	if err := validateConfig(config); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}

	return config, originalContent, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func validateConfig(config *SweepConfig) error {
	s := &config.Sweep

	if s.Name == "" {
		return fmt.Errorf("sweep name is required")
	}
	if s.Repetitions < 1 {
		return fmt.Errorf("repetitions must be at least 1")
	}
	if s.Warmup < 0 {
		return fmt.Errorf("warmup must not be negative")
	}
	if s.OutlierIQRMultiplier < 0 {
		return fmt.Errorf("outlier_iqr_multiplier must not be negative")
	}
	if s.Pruning.AlternativeMinSpeedup <= 0 {
		return fmt.Errorf("alternative_min_speedup must be positive")
	}
	if s.Pruning.CompositionMinIncrementalSpeedup <= 0 {
		return fmt.Errorf("composition_min_incremental_speedup must be positive")
	}

	if len(s.Operations) == 0 {
		return fmt.Errorf("at least one operation must be selected")
	}

	prev := 1
	for _, tc := range s.ThreadCounts {
		if tc < 2 {
			return fmt.Errorf("thread count %d is below the composition minimum of 2", tc)
		}
		if tc <= prev {
			return fmt.Errorf("thread_counts must be strictly ascending, got %v", s.ThreadCounts)
		}
		prev = tc
	}

	for _, a := range s.Affinities {
		if _, err := confgraph.ParseCoreAffinity(a); err != nil {
			return err
		}
	}

	for _, label := range s.Scales {
		if _, err := dataset.ScaleByLabel(label); err != nil {
			return err
		}
	}

	db := s.Output.DB
	if db.Enabled && (db.Host == "" || db.Org == "" || db.Bucket == "") {
		return fmt.Errorf("incomplete database configuration")
	}

	return nil
}
