package metrics

import (
	"sync"
	"time"
)

// Sink accepts dimensioned scalar samples. Implementations must tolerate
// concurrent Record calls; samples are append-only.
type Sink interface {
	// SetDimensions replaces the dimension set applied to subsequent samples.
	SetDimensions(dims map[string]string)
	// Record appends one sample with the current dimension set.
	Record(name string, value float64, unit string) error
	// Flush makes all recorded samples visible to downstream consumers.
	Flush() error
}

// RunMetadata describes one completed benchmark run.
type RunMetadata struct {
	RunID           string    `json:"run_id"`
	BenchmarkName   string    `json:"benchmark_name"`
	Description     string    `json:"description"`
	TestID          string    `json:"test_id"`
	Hostname        string    `json:"hostname"`
	CPUModel        string    `json:"cpu_model"`
	KernelVersion   string    `json:"kernel_version"`
	OSInfo          string    `json:"os_info"`
	Parallel        int       `json:"parallel"`
	Mounts          int       `json:"mounts"`
	BatchSize       int       `json:"batch_size"`
	Succeeded       int       `json:"succeeded"`
	Failed          int       `json:"failed"`
	FixtureWarnings int       `json:"fixture_warnings"`
	Started         time.Time `json:"started"`
	Finished        time.Time `json:"finished"`
	DriverVersion   string    `json:"driver_version"`
	ConfigFile      string    `json:"config_file"`
}

// Multi fans every sample out to all child sinks.
type Multi struct {
	mu    sync.Mutex
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) SetDimensions(dims map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sinks {
		s.SetDimensions(dims)
	}
}

func (m *Multi) Record(name string, value float64, unit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Record(name, value, unit); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Multi) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
