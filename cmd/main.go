package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/config"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/confgraph"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/dataset"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/host"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/logging"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/pruning"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/results"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/traversal"
	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/workload"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const Version = "1.0.0"

func loadEnvironment() {
	logger := logging.GetLogger()

	// Try to load .env file from current directory
	envFile := ".env"
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		} else {
			logger.WithField("file", envFile).Debug("Loaded environment variables")
		}
	} else {
		// Try to load from the application directory
		if execPath, err := os.Executable(); err == nil {
			appDir := filepath.Dir(execPath)
			envFile = filepath.Join(appDir, ".env")
			if _, err := os.Stat(envFile); err == nil {
				if err := godotenv.Load(envFile); err != nil {
					logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
				} else {
					logger.WithField("file", envFile).Debug("Loaded environment variables")
				}
			}
		}
	}
}

// Execute builds the command tree and runs it.
func Execute() error {
	loadEnvironment()

	var configFile string
	var resume bool
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "bio-bench",
		Short: "Hardware optimization experiment traversal for bioinformatics workloads",
		Long:  "Systematically explores (operation x hardware configuration x data scale) experiments with statistical reduction and speedup-threshold pruning of the configuration space",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				if err := logging.SetLogLevel(logLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(configFile, resume)
		},
	}
	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to sweep configuration file")
	runCmd.Flags().BoolVar(&resume, "resume", false, "Resume from the latest checkpoint artifact")
	runCmd.MarkFlagRequired("config")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a sweep configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateSweepConfig(configFile)
		},
	}
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to sweep configuration file")
	validateCmd.MarkFlagRequired("config")

	operationsCmd := &cobra.Command{
		Use:   "operations",
		Short: "List registered operations",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range workload.RegisteredNames() {
				fmt.Println(name)
			}
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the driver version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(operationsCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd.Execute()
}

func validateSweepConfig(configFile string) error {
	logger := logging.GetLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
		return err
	}
	for _, name := range cfg.Sweep.Operations {
		if _, err := workload.Lookup(name); err != nil {
			logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
			return err
		}
	}
	logger.WithField("config_file", configFile).Info("Configuration is valid")
	return nil
}

func runSweep(configFile string, resume bool) error {
	logger := logging.GetLogger()

	cfg, _, err := config.LoadConfigWithContent(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Failed to load configuration")
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logging.SetLogLevel(cfg.Sweep.LogLevel); err != nil {
		logger.WithField("log_level", cfg.Sweep.LogLevel).WithError(err).Warn("Invalid log level in config, using INFO")
		logging.SetLogLevel("info")
	} else {
		logging.SetTraversalLogLevel(cfg.Sweep.LogLevel)
	}

	hostConfig, err := host.GetHostConfig()
	if err != nil {
		logger.WithError(err).Error("Failed to initialize host configuration")
		return err
	}

	checksum, err := config.SweepChecksum(cfg)
	if err != nil {
		return fmt.Errorf("failed to compute sweep checksum: %w", err)
	}

	ops := make([]workload.Operation, 0, len(cfg.Sweep.Operations))
	for _, name := range cfg.Sweep.Operations {
		op, err := workload.Lookup(name)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}

	scales := make([]dataset.Scale, 0, len(cfg.Sweep.Scales))
	for _, label := range cfg.Sweep.Scales {
		scale, err := dataset.ScaleByLabel(label)
		if err != nil {
			return err
		}
		scales = append(scales, scale)
	}

	affinities := make([]confgraph.CoreAffinity, 0, len(cfg.Sweep.Affinities))
	for _, a := range cfg.Sweep.Affinities {
		affinity, err := confgraph.ParseCoreAffinity(a)
		if err != nil {
			return err
		}
		affinities = append(affinities, affinity)
	}

	sweepID := time.Now().UTC().Format("20060102T150405Z")
	metadata := &results.SweepMetadata{
		SweepID:          sweepID,
		SweepName:        cfg.Sweep.Name,
		Description:      cfg.Sweep.Description,
		ConfigChecksum:   checksum,
		DriverVersion:    Version,
		Hostname:         hostConfig.Hostname,
		OSInfo:           hostConfig.OSInfo,
		CPUModel:         hostConfig.CPUModel,
		PerformanceCores: hostConfig.PerformanceCores,
		EfficiencyCores:  hostConfig.EfficiencyCores,
		TotalCores:       hostConfig.TotalCores,
		Repetitions:      cfg.Sweep.Repetitions,
		WarmupCount:      cfg.Sweep.Warmup,
		StartedAt:        time.Now().UTC().Format(time.RFC3339),
	}

	csvSink, err := results.NewCSVSink(cfg.Sweep.Output.CSV)
	if err != nil {
		return err
	}
	sinks := results.MultiSink{csvSink}

	if cfg.Sweep.Output.DB.Enabled {
		token := os.Getenv("INFLUXDB_TOKEN")
		if token == "" {
			return fmt.Errorf("INFLUXDB_TOKEN is required when the database sink is enabled")
		}
		influxSink, err := results.NewInfluxSink(results.InfluxConfig{
			Host:   cfg.Sweep.Output.DB.Host,
			Token:  token,
			Org:    cfg.Sweep.Output.DB.Org,
			Bucket: cfg.Sweep.Output.DB.Bucket,
		}, sweepID)
		if err != nil {
			logger.WithError(err).Error("Failed to create database sink")
			return fmt.Errorf("failed to create database sink: %w", err)
		}
		sinks = append(sinks, influxSink)
	}
	defer sinks.Close()

	runner := &workload.Runner{
		Repetitions:       cfg.Sweep.Repetitions,
		WarmupCount:       cfg.Sweep.Warmup,
		IQRMultiplier:     cfg.Sweep.OutlierIQRMultiplier,
		RepetitionTimeout: cfg.GetRepetitionTimeout(),
	}
	strategy := pruning.Strategy{
		AlternativeMinSpeedup:            cfg.Sweep.Pruning.AlternativeMinSpeedup,
		CompositionMinIncrementalSpeedup: cfg.Sweep.Pruning.CompositionMinIncrementalSpeedup,
	}

	trav := traversal.New(runner, strategy, dataset.NewGenerator(cfg.Sweep.Seed), sinks, metadata, traversal.Options{
		ThreadCounts:    cfg.Sweep.ThreadCounts,
		Affinities:      affinities,
		CheckpointDir:   cfg.Sweep.Output.CheckpointDir,
		CheckpointEvery: cfg.Sweep.Output.CheckpointEvery,
	})

	if resume {
		if err := resumeFromCheckpoint(trav, cfg.Sweep.Output.CheckpointDir, checksum); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received interrupt signal, shutting down after in-flight experiment")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"sweep_id":   sweepID,
		"name":       cfg.Sweep.Name,
		"checksum":   checksum,
		"operations": len(ops),
		"scales":     len(scales),
	}).Info("Starting sweep")

	start := time.Now()
	all, err := trav.Run(ctx, ops, scales)
	if err != nil {
		logger.WithError(err).Error("Sweep interrupted")
		return err
	}

	executed, prunedCount, failed := 0, 0, 0
	for _, r := range all {
		switch {
		case r.Pruned:
			prunedCount++
		case r.Failure != "":
			failed++
		default:
			executed++
		}
	}
	logger.WithFields(logrus.Fields{
		"duration":    time.Since(start).Round(time.Second).String(),
		"experiments": len(all),
		"executed":    executed,
		"pruned":      prunedCount,
		"failed":      failed,
		"csv":         cfg.Sweep.Output.CSV,
	}).Info("Sweep completed")

	return nil
}

func resumeFromCheckpoint(trav *traversal.Traversal, dir, checksum string) error {
	logger := logging.GetLogger()

	path, err := results.LatestCheckpoint(dir)
	if err != nil {
		return fmt.Errorf("failed to locate checkpoint: %w", err)
	}
	if path == "" {
		logger.Info("No checkpoint artifact found, starting fresh")
		return nil
	}

	artifact, err := results.LoadCheckpoint(path)
	if err != nil {
		return err
	}
	if artifact.Metadata != nil && artifact.Metadata.ConfigChecksum != checksum {
		return fmt.Errorf("checkpoint %s was produced by a different experiment space (checksum %s, config has %s)",
			path, artifact.Metadata.ConfigChecksum, checksum)
	}

	logger.WithFields(logrus.Fields{
		"checkpoint":  path,
		"experiments": len(artifact.Results),
	}).Info("Resuming sweep from checkpoint")
	trav.Resume(artifact)
	return nil
}
