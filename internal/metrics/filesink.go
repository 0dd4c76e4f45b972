package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type metricSeries struct {
	Unit   string    `json:"unit"`
	Values []float64 `json:"values"`
}

// FileSink accumulates samples in memory and stores them as metrics.json
// inside the results directory when flushed.
type FileSink struct {
	mu      sync.Mutex
	path    string
	metrics map[string]*metricSeries
	dims    map[string]string
}

func NewFileSink(resultsDir string) *FileSink {
	return &FileSink{
		path:    filepath.Join(resultsDir, "metrics.json"),
		metrics: make(map[string]*metricSeries),
		dims:    make(map[string]string),
	}
}

func (s *FileSink) SetDimensions(dims map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dims = make(map[string]string, len(dims))
	for k, v := range dims {
		s.dims[k] = v
	}
}

func (s *FileSink) Record(name string, value float64, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.metrics[name]
	if !ok {
		series = &metricSeries{Unit: unit}
		s.metrics[name] = series
	}
	series.Values = append(series.Values, value)
	return nil
}

func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(map[string]interface{}{
		"metrics":    s.metrics,
		"dimensions": s.dims,
	})
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to store metrics: %w", err)
	}
	return nil
}

// Count returns the number of samples recorded under the given metric name.
func (s *FileSink) Count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if series, ok := s.metrics[name]; ok {
		return len(series.Values)
	}
	return 0
}
