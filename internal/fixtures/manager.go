package fixtures

import (
	"fmt"
	"os"
	"path/filepath"

	"jail-bench/internal/logging"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// SetupError reports a failed fixture setup. Partially created fixtures are
// cleaned up before it propagates.
type SetupError struct {
	Path string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("fixture setup failed at %s: %v", e.Path, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

type mounter interface {
	BindMount(path string) error
	Unmount(path string) error
}

type sysMounter struct{}

func (sysMounter) BindMount(path string) error {
	return unix.Mount(path, path, "", unix.MS_BIND, "")
}

func (sysMounter) Unmount(path string) error {
	return unix.Unmount(path, 0)
}

// Manager owns a set of self-bind-mounted directories used to grow the mount
// table during a benchmark run. It is touched only by the orchestrator.
type Manager struct {
	scratchRoot string
	mnt         mounter
	logger      *logrus.Logger

	root   string
	mounts []string
}

// NewManager returns a manager that creates its mount directories under
// scratchRoot. An empty scratchRoot uses the system temp directory.
func NewManager(scratchRoot string) *Manager {
	return &Manager{
		scratchRoot: scratchRoot,
		mnt:         sysMounter{},
		logger:      logging.GetLogger(),
	}
}

// Setup creates count uniquely named directories and bind-mounts each onto
// itself. The exact location does not matter, the mounts just need to exist.
func (m *Manager) Setup(count int) error {
	if m.root != "" {
		return fmt.Errorf("fixtures already set up under %s", m.root)
	}
	if count < 0 {
		return fmt.Errorf("fixture count must not be negative, got %d", count)
	}

	root, err := os.MkdirTemp(m.scratchRoot, "mounts-")
	if err != nil {
		return &SetupError{Path: m.scratchRoot, Err: err}
	}
	m.root = root

	for i := 0; i < count; i++ {
		path := filepath.Join(root, fmt.Sprintf("mount%d", i))
		if err := os.Mkdir(path, 0o755); err != nil {
			m.Teardown()
			return &SetupError{Path: path, Err: err}
		}
		if err := m.mnt.BindMount(path); err != nil {
			m.Teardown()
			return &SetupError{Path: path, Err: err}
		}
		m.mounts = append(m.mounts, path)
	}

	m.logger.WithFields(logrus.Fields{
		"count": count,
		"root":  root,
	}).Info("Mount fixtures created")

	return nil
}

// Teardown unmounts every fixture created by the matching Setup call and
// removes the scratch root. Unmount failures do not abort remaining unmounts;
// it returns the number of fixtures that failed to unmount.
func (m *Manager) Teardown() int {
	if m.root == "" {
		return 0
	}

	var failed []string
	for _, path := range m.mounts {
		if err := m.mnt.Unmount(path); err != nil {
			m.logger.WithField("path", path).WithError(err).Debug("Failed to unmount fixture")
			failed = append(failed, path)
		}
	}

	if len(failed) > 0 {
		m.logger.WithFields(logrus.Fields{
			"failed": len(failed),
			"total":  len(m.mounts),
			"paths":  failed,
		}).Warn("Some fixtures could not be unmounted")
	}

	if err := os.RemoveAll(m.root); err != nil {
		m.logger.WithField("root", m.root).WithError(err).Warn("Failed to remove fixture scratch root")
	}

	m.root = ""
	m.mounts = nil

	return len(failed)
}

// Count returns the number of live fixtures.
func (m *Manager) Count() int {
	return len(m.mounts)
}
