package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"jail-bench/internal/launch"
	"jail-bench/internal/logging"
	"jail-bench/internal/metrics"

	"github.com/sirupsen/logrus"
)

const (
	metricName = "startup"
	metricUnit = "Microseconds"
)

// SetupError reports that the concurrency substrate itself could not be
// established. It is fatal to the whole run.
type SetupError struct {
	Reason string
}

func (e *SetupError) Error() string {
	return "launcher setup failed: " + e.Reason
}

// Failure records one launch that completed without producing a sample.
type Failure struct {
	SpecID string
	Reason string
}

// Result summarizes a batch. Completed+Failed always equals the batch size.
type Result struct {
	Completed int
	Failed    int
	Failures  []Failure
}

func (r Result) Total() int {
	return r.Completed + r.Failed
}

// execFunc runs one launch spec to completion and returns its stdout.
type execFunc func(ctx context.Context, spec launch.Spec) ([]byte, error)

func defaultExec(ctx context.Context, spec launch.Spec) ([]byte, error) {
	return exec.CommandContext(ctx, spec.Path, spec.Args...).Output()
}

// Launcher executes batches of launch specs with bounded concurrency and
// streams one timing sample per successful launch to the metrics sink.
type Launcher struct {
	sink   metrics.Sink
	run    execFunc
	logger *logrus.Logger
}

type Option func(*Launcher)

// WithExecFunc replaces the process execution step. Used by tests to
// instrument launches without spawning child processes.
func WithExecFunc(fn execFunc) Option {
	return func(l *Launcher) {
		l.run = fn
	}
}

func New(sink metrics.Sink, opts ...Option) *Launcher {
	l := &Launcher{
		sink:   sink,
		run:    defaultExec,
		logger: logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type outcome struct {
	specID     string
	durationUS int64
	err        error
}

// Run executes every spec, allowing at most maxParallel launches in flight.
// Individual launch errors are recorded in the result and never abort the
// remaining launches; Run itself fails only when the worker pool cannot be
// allocated. Samples reach the sink in completion order.
func (l *Launcher) Run(ctx context.Context, specs []launch.Spec, maxParallel int) (Result, error) {
	if maxParallel < 1 {
		return Result{}, &SetupError{Reason: fmt.Sprintf("max_parallel must be at least 1, got %d", maxParallel)}
	}

	l.logger.WithFields(logrus.Fields{
		"batch":        len(specs),
		"max_parallel": maxParallel,
	}).Info("Launching batch")

	tasks := make(chan launch.Spec)
	outcomes := make(chan outcome)

	var wg sync.WaitGroup
	for w := 0; w < maxParallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for spec := range tasks {
				outcomes <- l.launchOne(ctx, spec)
			}
		}()
	}

	// Feed in spec order; workers drain as slots free up. On cancellation
	// every unfed spec is reported as a failure so the batch accounting
	// still covers the whole batch.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(tasks)
		for i, spec := range specs {
			select {
			case tasks <- spec:
			case <-ctx.Done():
				for _, abandoned := range specs[i:] {
					outcomes <- outcome{specID: abandoned.ID, err: fmt.Errorf("launch abandoned: %w", ctx.Err())}
				}
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var result Result
	for out := range outcomes {
		if out.err != nil {
			result.Failed++
			result.Failures = append(result.Failures, Failure{SpecID: out.specID, Reason: out.err.Error()})
			l.logger.WithFields(logrus.Fields{
				"launch": out.specID,
			}).WithError(out.err).Warn("Launch failed")
			continue
		}

		result.Completed++
		if err := l.sink.Record(metricName, float64(out.durationUS), metricUnit); err != nil {
			l.logger.WithField("launch", out.specID).WithError(err).Warn("Failed to record sample")
		}
	}

	l.logger.WithFields(logrus.Fields{
		"completed": result.Completed,
		"failed":    result.Failed,
	}).Info("Batch finished")

	return result, nil
}

func (l *Launcher) launchOne(ctx context.Context, spec launch.Spec) outcome {
	stdout, err := l.run(ctx, spec)
	if err != nil {
		return outcome{specID: spec.ID, err: fmt.Errorf("launch exited with error: %w", err)}
	}

	duration, err := parseTimestamps(string(stdout))
	if err != nil {
		return outcome{specID: spec.ID, err: err}
	}

	return outcome{specID: spec.ID, durationUS: duration}
}

// parseTimestamps expects exactly two whitespace-separated integers on
// stdout, <end_timestamp> <start_timestamp>, in the same monotonic unit.
func parseTimestamps(stdout string) (int64, error) {
	fields := strings.Fields(stdout)
	if len(fields) != 2 {
		return 0, fmt.Errorf("malformed launch output: expected 2 timestamps, got %d fields", len(fields))
	}

	end, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed end timestamp %q: %w", fields[0], err)
	}
	start, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed start timestamp %q: %w", fields[1], err)
	}

	return end - start, nil
}
