package tracer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"jail-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

// Controller owns the lifetime of an external whole-system tracer running
// alongside the benchmark workload. Exactly one trace session is alive
// between Start and Stop; nesting is not supported.
//
// A fixed settle delay is applied after Start and before Stop. The tracer's
// attach point is probabilistic in timing, so the delay reduces, but does not
// eliminate, races between tracer attach/detach and the workload.
type Controller struct {
	command []string
	settle  time.Duration
	logger  *logrus.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	waitErr chan error
}

// NewController builds a controller for the given tracer command template.
// An empty command disables tracing; Start and Stop become no-ops.
func NewController(command []string, settle time.Duration) *Controller {
	return &Controller{
		command: command,
		settle:  settle,
		logger:  logging.GetLogger(),
	}
}

func (c *Controller) Enabled() bool {
	return len(c.command) > 0
}

// Start launches the tracer as a detached child writing to outputPath and
// returns once the launch has been issued and the settle delay has passed.
// It does not wait for the tracer's internal initialization.
func (c *Controller) Start(ctx context.Context, outputPath string) error {
	if !c.Enabled() {
		c.logger.Debug("Tracer disabled, skipping start")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return fmt.Errorf("trace session already running (pid %d)", c.cmd.Process.Pid)
	}

	args := append([]string{}, c.command[1:]...)
	if outputPath != "" {
		args = append(args, "-o", outputPath)
	}

	cmd := exec.Command(c.command[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start tracer: %w", err)
	}

	c.cmd = cmd
	c.waitErr = make(chan error, 1)
	go func() {
		c.waitErr <- cmd.Wait()
	}()

	c.logger.WithFields(logrus.Fields{
		"pid":    cmd.Process.Pid,
		"output": outputPath,
	}).Info("Tracer started")

	select {
	case <-time.After(c.settle):
	case <-ctx.Done():
		// Reap the child so a canceled run does not leak the tracer.
		c.cmd.Process.Signal(os.Interrupt)
		<-c.waitErr
		c.cmd = nil
		return ctx.Err()
	}

	return nil
}

// Stop waits the settle delay, sends the tracer a graceful-termination
// signal, and waits for it to exit and flush its output. A tracer that has
// already exited is non-fatal: the trace may be partial but the benchmark
// result is still valid.
func (c *Controller) Stop() error {
	if !c.Enabled() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil {
		return fmt.Errorf("no trace session running")
	}

	time.Sleep(c.settle)

	pid := c.cmd.Process.Pid

	select {
	case err := <-c.waitErr:
		c.logger.WithFields(logrus.Fields{
			"pid":  pid,
			"exit": err,
		}).Warn("Tracer exited before stop, trace output may be partial")
		c.cmd = nil
		return nil
	default:
	}

	if err := c.cmd.Process.Signal(os.Interrupt); err != nil {
		c.logger.WithField("pid", pid).WithError(err).Warn("Failed to signal tracer, it may have already exited")
	}

	if err := <-c.waitErr; err != nil {
		c.logger.WithField("pid", pid).WithError(err).Warn("Tracer exited with error")
	} else {
		c.logger.WithField("pid", pid).Info("Tracer stopped")
	}

	c.cmd = nil
	return nil
}
