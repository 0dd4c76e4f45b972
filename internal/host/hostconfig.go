package host

import (
	"os"
	"runtime"
	"strings"
	"sync"

	"jail-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

// HostConfig contains host system configuration information
// This is initialized once at startup and used throughout the application
type HostConfig struct {
	CPUVendor    string
	CPUModel     string
	TotalCores   int
	TotalThreads int

	Hostname      string
	OSInfo        string
	KernelVersion string
}

var (
	globalHostConfig *HostConfig
	hostConfigOnce   sync.Once
)

// GetHostConfig returns the global host configuration
// It initializes the configuration on first call
func GetHostConfig() (*HostConfig, error) {
	var err error
	hostConfigOnce.Do(func() {
		globalHostConfig, err = initializeHostConfig()
	})
	return globalHostConfig, err
}

func initializeHostConfig() (*HostConfig, error) {
	logger := logging.GetLogger()

	config := &HostConfig{}
	config.initSystemInfo()
	config.initCPUInfo()

	logger.WithFields(logrus.Fields{
		"hostname":    config.Hostname,
		"cpu_model":   config.CPUModel,
		"total_cores": config.TotalCores,
		"kernel":      config.KernelVersion,
	}).Info("Host configuration initialized")

	return config, nil
}

func (hc *HostConfig) initSystemInfo() {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	hc.Hostname = hostname

	hc.OSInfo = runtime.GOOS + "/" + runtime.GOARCH

	if data, err := os.ReadFile("/proc/version"); err == nil {
		parts := strings.Fields(string(data))
		if len(parts) >= 3 {
			hc.KernelVersion = parts[2]
		}
	}
	if hc.KernelVersion == "" {
		hc.KernelVersion = "unknown"
	}
}

func (hc *HostConfig) initCPUInfo() {
	if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
		lines := strings.Split(string(data), "\n")
		for _, line := range lines {
			if strings.HasPrefix(line, "vendor_id") {
				parts := strings.Split(line, ":")
				if len(parts) >= 2 && hc.CPUVendor == "" {
					hc.CPUVendor = strings.TrimSpace(parts[1])
				}
			} else if strings.HasPrefix(line, "model name") {
				parts := strings.Split(line, ":")
				if len(parts) >= 2 && hc.CPUModel == "" {
					hc.CPUModel = strings.TrimSpace(parts[1])
				}
			}
		}
	}

	if hc.CPUVendor == "" {
		hc.CPUVendor = "unknown"
	}
	if hc.CPUModel == "" {
		hc.CPUModel = "unknown"
	}

	hc.TotalCores = runtime.NumCPU()
	hc.TotalThreads = runtime.NumCPU()
}
