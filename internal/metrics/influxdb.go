package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jail-bench/internal/config"
	"jail-bench/internal/logging"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"
)

// InfluxSink writes one point per sample using the blocking write API.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	org      string
	runID    string

	mu   sync.Mutex
	dims map[string]string
}

func NewInfluxSink(cfg config.DatabaseConfig, runID string) (*InfluxSink, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(cfg.Host, cfg.Password)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", cfg.Host).WithError(err).Error("Failed to connect to InfluxDB")
		return nil, err
	}

	if health.Status != "pass" {
		message := ""
		if health.Message != nil {
			message = *health.Message
		}
		logger.WithFields(logrus.Fields{
			"host":    cfg.Host,
			"status":  health.Status,
			"message": message,
		}).Error("InfluxDB health check failed")
		return nil, fmt.Errorf("influxdb health check failed: status %s", health.Status)
	}

	writeAPI := client.WriteAPIBlocking(cfg.Org, cfg.Name)

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"bucket": cfg.Name,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxSink{
		client:   client,
		writeAPI: writeAPI,
		bucket:   cfg.Name,
		org:      cfg.Org,
		runID:    runID,
	}, nil
}

func (s *InfluxSink) SetDimensions(dims map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dims = make(map[string]string, len(dims))
	for k, v := range dims {
		s.dims[k] = v
	}
}

func (s *InfluxSink) Record(name string, value float64, unit string) error {
	s.mu.Lock()
	tags := map[string]string{
		"run_id": s.runID,
		"unit":   unit,
	}
	for k, v := range s.dims {
		tags[k] = v
	}
	s.mu.Unlock()

	point := influxdb2.NewPoint(name,
		tags,
		map[string]interface{}{"value": value},
		time.Now())

	return s.writeAPI.WritePoint(context.Background(), point)
}

func (s *InfluxSink) Flush() error {
	return s.writeAPI.Flush(context.Background())
}

// WriteMetadata stores one point describing the completed run.
func (s *InfluxSink) WriteMetadata(meta *RunMetadata) error {
	point := influxdb2.NewPoint("benchmark_meta",
		map[string]string{
			"run_id": meta.RunID,
		},
		map[string]interface{}{
			"benchmark_name":   meta.BenchmarkName,
			"description":      meta.Description,
			"test_id":          meta.TestID,
			"hostname":         meta.Hostname,
			"cpu_model":        meta.CPUModel,
			"kernel_version":   meta.KernelVersion,
			"os_info":          meta.OSInfo,
			"parallel":         meta.Parallel,
			"mounts":           meta.Mounts,
			"batch_size":       meta.BatchSize,
			"succeeded":        meta.Succeeded,
			"failed":           meta.Failed,
			"fixture_warnings": meta.FixtureWarnings,
			"started":          meta.Started.Format(time.RFC3339),
			"finished":         meta.Finished.Format(time.RFC3339),
			"duration_seconds": int64(meta.Finished.Sub(meta.Started).Seconds()),
			"driver_version":   meta.DriverVersion,
			"config_file":      meta.ConfigFile,
		},
		time.Now())

	return s.writeAPI.WritePoint(context.Background(), point)
}

func (s *InfluxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
