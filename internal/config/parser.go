package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"jail-bench/internal/logging"

	"gopkg.in/yaml.v3"
)

func LoadConfig(filepath string) (*BenchmarkConfig, error) {
	config, _, err := LoadConfigWithContent(filepath)
	return config, err
}

func LoadConfigWithContent(filepath string) (*BenchmarkConfig, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	originalContent := string(data)

	// Expand environment variables
	expanded := expandEnvVars(originalContent)

	var config BenchmarkConfig
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, "", err
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}

	return &config, originalContent, nil
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

func applyDefaults(config *BenchmarkConfig) {
	if config.Benchmark.TestID == "" {
		config.Benchmark.TestID = config.Benchmark.Name
	}
	if len(config.Benchmark.Parallelism) == 0 {
		config.Benchmark.Parallelism = []int{1}
	}
	if len(config.Benchmark.Mounts) == 0 {
		config.Benchmark.Mounts = []int{0}
	}
	if config.Benchmark.ResultsDir == "" {
		config.Benchmark.ResultsDir = "results"
	}
	if config.Benchmark.SettleSeconds == 0 {
		config.Benchmark.SettleSeconds = 1
	}
}

func validateConfig(config *BenchmarkConfig) error {
	if config.Benchmark.Name == "" {
		return fmt.Errorf("benchmark name is required")
	}

	if config.Benchmark.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be greater than 0")
	}

	for _, p := range config.Benchmark.Parallelism {
		if p < 1 {
			return fmt.Errorf("parallelism level %d: must be at least 1", p)
		}
		if p > config.Benchmark.BatchSize {
			return fmt.Errorf("parallelism level %d exceeds batch_size %d", p, config.Benchmark.BatchSize)
		}
	}

	for _, m := range config.Benchmark.Mounts {
		if m < 0 {
			return fmt.Errorf("mount count %d: must not be negative", m)
		}
	}

	if config.Benchmark.SettleSeconds < 0 {
		return fmt.Errorf("settle_seconds must not be negative")
	}

	// Validate database config
	db := config.Benchmark.Data.DB
	if db.Host == "" || db.Name == "" || db.User == "" || db.Password == "" || db.Org == "" {
		return fmt.Errorf("incomplete database configuration")
	}

	// Validate jailer config
	if config.Jailer.Binary == "" {
		return fmt.Errorf("jailer binary is required")
	}
	if config.Jailer.ExecFile == "" {
		return fmt.Errorf("jailer exec_file is required")
	}

	return nil
}
