package bench

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"jail-bench/internal/launch"
	"jail-bench/internal/launcher"
	"jail-bench/internal/logging"
	"jail-bench/internal/metrics"

	"github.com/sirupsen/logrus"
)

// FixtureManager prepares and releases the mount fixtures of one run.
type FixtureManager interface {
	Setup(count int) error
	Teardown() int
}

// TraceController owns the trace sidecar of one run.
type TraceController interface {
	Start(ctx context.Context, outputPath string) error
	Stop() error
}

// BatchLauncher executes a batch of launch specs with bounded concurrency.
type BatchLauncher interface {
	Run(ctx context.Context, specs []launch.Spec, maxParallel int) (launcher.Result, error)
}

// Dimensions is the fixed dimension set attached to every sample of a run.
type Dimensions struct {
	Instance string
	CPUModel string
	TestID   string
}

// Summary is the user-visible outcome of one run.
type Summary struct {
	Succeeded       int
	Failed          int
	FixtureWarnings int
	Started         time.Time
	Finished        time.Time
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d succeeded", s.Succeeded, s.Succeeded+s.Failed)
}

// Runner sequences one benchmark run: fixtures up, tracer on, batch launched,
// tracer off, fixtures down. Tracer stop and fixture teardown execute on
// every exit path.
type Runner struct {
	Fixtures FixtureManager
	Tracer   TraceController
	Launcher BatchLauncher
	Sink     metrics.Sink
	Dims     Dimensions

	logger *logrus.Logger
}

func NewRunner(fixtures FixtureManager, tracer TraceController, l BatchLauncher, sink metrics.Sink, dims Dimensions) *Runner {
	return &Runner{
		Fixtures: fixtures,
		Tracer:   tracer,
		Launcher: l,
		Sink:     sink,
		Dims:     dims,
		logger:   logging.GetLogger(),
	}
}

// Run executes the batch at the given parallelism with the given number of
// mount fixtures and writes the trace to traceOut.
func (r *Runner) Run(ctx context.Context, specs []launch.Spec, parallel, mounts int, traceOut string) (summary Summary, err error) {
	summary.Started = time.Now()
	defer func() {
		summary.Finished = time.Now()
	}()

	r.Sink.SetDimensions(map[string]string{
		"instance":         r.Dims.Instance,
		"cpu_model":        r.Dims.CPUModel,
		"performance_test": r.Dims.TestID,
		"parallel":         strconv.Itoa(parallel),
		"mounts":           strconv.Itoa(mounts),
	})

	r.logger.WithFields(logrus.Fields{
		"batch":    len(specs),
		"parallel": parallel,
		"mounts":   mounts,
	}).Info("Starting run")

	if err := r.Fixtures.Setup(mounts); err != nil {
		return summary, fmt.Errorf("fixture setup failed: %w", err)
	}
	defer func() {
		summary.FixtureWarnings = r.Fixtures.Teardown()
	}()

	if err := r.Tracer.Start(ctx, traceOut); err != nil {
		return summary, fmt.Errorf("failed to start tracer: %w", err)
	}
	defer func() {
		if stopErr := r.Tracer.Stop(); stopErr != nil {
			r.logger.WithError(stopErr).Warn("Failed to stop tracer")
		}
	}()

	result, err := r.Launcher.Run(ctx, specs, parallel)
	if err != nil {
		return summary, fmt.Errorf("launch batch failed: %w", err)
	}

	summary.Succeeded = result.Completed
	summary.Failed = result.Failed

	if len(specs) > 0 && result.Completed == 0 {
		return summary, fmt.Errorf("run failed: 0/%d launches succeeded", len(specs))
	}

	if err := r.Sink.Flush(); err != nil {
		r.logger.WithError(err).Warn("Failed to flush metrics sink")
	}

	r.logger.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Run finished")

	return summary, nil
}
