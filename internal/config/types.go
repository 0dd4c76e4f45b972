package config

import (
	"time"
)

type BenchmarkConfig struct {
	Benchmark BenchmarkInfo `yaml:"benchmark"`
	Jailer    JailerConfig  `yaml:"jailer"`
	Tracer    TracerConfig  `yaml:"tracer"`
}

type BenchmarkInfo struct {
	Name          string     `yaml:"name"`
	Description   string     `yaml:"description"`
	LogLevel      string     `yaml:"log_level"`
	TestID        string     `yaml:"test_id"`
	BatchSize     int        `yaml:"batch_size"`
	Parallelism   []int      `yaml:"parallelism"`
	Mounts        []int      `yaml:"mounts"`
	ResultsDir    string     `yaml:"results_dir"`
	ScratchRoot   string     `yaml:"scratch_root,omitempty"`
	SettleSeconds int        `yaml:"settle_seconds"`
	Data          DataConfig `yaml:"data"`
}

type DataConfig struct {
	DB DatabaseConfig `yaml:"db"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Org      string `yaml:"org"`
}

// JailerConfig describes the external isolation binary under test and the
// parameters forwarded to it for every launch.
type JailerConfig struct {
	Binary     string `yaml:"binary"`
	ExecFile   string `yaml:"exec_file"`
	ChrootBase string `yaml:"chroot_base,omitempty"`
	UID        int    `yaml:"uid"`
	GID        int    `yaml:"gid"`
	NewPIDNS   bool   `yaml:"new_pid_ns"`
	Daemonize  bool   `yaml:"daemonize"`
}

// TracerConfig holds the command template of the whole-system tracer that
// runs alongside the workload. An empty command disables tracing.
type TracerConfig struct {
	Command []string `yaml:"command,omitempty"`
}

func (c *BenchmarkConfig) GetSettleDelay() time.Duration {
	return time.Duration(c.Benchmark.SettleSeconds) * time.Second
}
