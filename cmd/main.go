package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"jail-bench/internal/bench"
	"jail-bench/internal/config"
	"jail-bench/internal/fixtures"
	"jail-bench/internal/host"
	"jail-bench/internal/launch"
	"jail-bench/internal/launcher"
	"jail-bench/internal/logging"
	"jail-bench/internal/metrics"
	"jail-bench/internal/tracer"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const Version = "1.0.0"

type JailBench struct {
	config        *config.BenchmarkConfig
	configContent string
	hostConfig    *host.HostConfig
	influxSink    *metrics.InfluxSink
	runID         string
	resultsRoot   string
	startTime     time.Time
	endTime       time.Time
}

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

func validateEnvironment() error {
	logger := logging.GetLogger()

	requiredVars := []string{
		"INFLUXDB_HOST",
		"INFLUXDB_USER",
		"INFLUXDB_TOKEN",
		"INFLUXDB_ORG",
		"INFLUXDB_BUCKET",
	}

	var missing []string
	for _, varName := range requiredVars {
		if os.Getenv(varName) == "" {
			missing = append(missing, varName)
		}
	}

	if len(missing) > 0 {
		logger.WithField("missing_vars", missing).Error("Missing required environment variables")
		return fmt.Errorf("missing required environment variables: %v. Please ensure your .env file contains these variables", missing)
	}

	logger.Debug("All required environment variables are present")
	return nil
}

func main() {
	logger := logging.GetLogger()

	loadEnvironment()

	var configFile string
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "jail-bench",
		Short: "Jailer startup benchmarking harness",
		Long:  "A harness for measuring isolated process startup under varying parallelism and mount-table load",
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
		Short: "Run a benchmark sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateEnvironment(); err != nil {
				return err
			}
			return runBenchmark(configFile)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a benchmark configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(configFile)
		},
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to benchmark configuration file")
	runCmd.MarkFlagRequired("config")

	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to benchmark configuration file")
	validateCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("Command execution failed")
	}
}

func validateConfig(configFile string) error {
	logger := logging.GetLogger()

	_, err := config.LoadConfig(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
		return err
	}
	logger.WithField("config_file", configFile).Info("Configuration is valid")
	return nil
}

func runBenchmark(configFile string) error {
	logger := logging.GetLogger()

	jb := &JailBench{}

	var err error
	jb.config, jb.configContent, err = config.LoadConfigWithContent(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Failed to load configuration")
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set log level from configuration
	if jb.config.Benchmark.LogLevel != "" {
		if err := logging.SetLogLevel(jb.config.Benchmark.LogLevel); err != nil {
			logger.WithField("log_level", jb.config.Benchmark.LogLevel).WithError(err).Warn("Invalid log level in config, using INFO")
			logging.SetLogLevel("info")
		}
	}

	jb.hostConfig, err = host.GetHostConfig()
	if err != nil {
		logger.WithError(err).Error("Failed to initialize host configuration")
		return err
	}

	jb.runID = uuid.NewString()[:8]
	jb.resultsRoot = filepath.Join(jb.config.Benchmark.ResultsDir, jb.runID)
	if err := os.MkdirAll(jb.resultsRoot, 0o755); err != nil {
		logger.WithField("results_dir", jb.resultsRoot).WithError(err).Error("Failed to create results directory")
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	jb.influxSink, err = metrics.NewInfluxSink(jb.config.Benchmark.Data.DB, jb.runID)
	if err != nil {
		logger.WithError(err).Error("Failed to create metrics sink")
		return fmt.Errorf("failed to create metrics sink: %w", err)
	}
	defer jb.influxSink.Close()

	logger.WithFields(logrus.Fields{
		"run_id": jb.runID,
		"name":   jb.config.Benchmark.Name,
	}).Info("Starting benchmark")

	jb.startTime = time.Now()
	if err := jb.executeSweep(); err != nil {
		logger.WithError(err).Error("Benchmark failed")
		return fmt.Errorf("benchmark failed: %w", err)
	}
	jb.endTime = time.Now()

	logger.WithField("duration", jb.endTime.Sub(jb.startTime)).Info("Benchmark completed successfully")
	return nil
}

// executeSweep runs one benchmark cell per (mounts, parallelism) pair.
func (jb *JailBench) executeSweep() error {
	logger := logging.GetLogger()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		logger.Info("Received interrupt signal, shutting down")
		cancel()
	}()

	for _, mounts := range jb.config.Benchmark.Mounts {
		for _, parallel := range jb.config.Benchmark.Parallelism {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := jb.executeCell(ctx, parallel, mounts); err != nil {
				return err
			}
		}
	}

	return nil
}

func (jb *JailBench) executeCell(ctx context.Context, parallel, mounts int) error {
	logger := logging.GetLogger()
	cfg := jb.config

	cellDir := filepath.Join(jb.resultsRoot, fmt.Sprintf("p%d-m%d", parallel, mounts))
	if err := os.MkdirAll(cellDir, 0o755); err != nil {
		return fmt.Errorf("failed to create cell directory: %w", err)
	}

	specs, err := launch.Build(cfg.Benchmark.BatchSize, cfg.Jailer.Binary, cfg.Jailer.ExecFile, launch.Options{
		ChrootBase: cfg.Jailer.ChrootBase,
		UID:        cfg.Jailer.UID,
		GID:        cfg.Jailer.GID,
		NewPIDNS:   cfg.Jailer.NewPIDNS,
		Daemonize:  cfg.Jailer.Daemonize,
	}, launch.JailerArgBuilder{})
	if err != nil {
		return fmt.Errorf("failed to build launch specs: %w", err)
	}

	fileSink := metrics.NewFileSink(cellDir)
	sink := metrics.NewMulti(jb.influxSink, fileSink)

	runner := bench.NewRunner(
		fixtures.NewManager(cfg.Benchmark.ScratchRoot),
		tracer.NewController(cfg.Tracer.Command, cfg.GetSettleDelay()),
		launcher.New(sink),
		sink,
		bench.Dimensions{
			Instance: jb.hostConfig.Hostname,
			CPUModel: jb.hostConfig.CPUModel,
			TestID:   cfg.Benchmark.TestID,
		},
	)

	summary, err := runner.Run(ctx, specs, parallel, mounts, filepath.Join(cellDir, "bpf.txt"))

	// Metadata is written even for failed cells so partial sweeps stay visible.
	if metaErr := jb.influxSink.WriteMetadata(&metrics.RunMetadata{
		RunID:           jb.runID,
		BenchmarkName:   cfg.Benchmark.Name,
		Description:     cfg.Benchmark.Description,
		TestID:          cfg.Benchmark.TestID,
		Hostname:        jb.hostConfig.Hostname,
		CPUModel:        jb.hostConfig.CPUModel,
		KernelVersion:   jb.hostConfig.KernelVersion,
		OSInfo:          jb.hostConfig.OSInfo,
		Parallel:        parallel,
		Mounts:          mounts,
		BatchSize:       cfg.Benchmark.BatchSize,
		Succeeded:       summary.Succeeded,
		Failed:          summary.Failed,
		FixtureWarnings: summary.FixtureWarnings,
		Started:         summary.Started,
		Finished:        summary.Finished,
		DriverVersion:   Version,
		ConfigFile:      jb.configContent,
	}); metaErr != nil {
		logger.WithError(metaErr).Warn("Failed to write run metadata")
	}

	if err != nil {
		return fmt.Errorf("cell parallel=%d mounts=%d: %w", parallel, mounts, err)
	}

	logger.WithFields(logrus.Fields{
		"parallel": parallel,
		"mounts":   mounts,
		"result":   summary.String(),
		"warnings": summary.FixtureWarnings,
	}).Info("Cell completed")

	return nil
}
