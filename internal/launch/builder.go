package launch

import (
	"fmt"

	"jail-bench/internal/logging"

	"github.com/sirupsen/logrus"
)

// Spec is one fully-specified command invocation for a simulated isolated
// process start. Specs are immutable and consumed exactly once.
type Spec struct {
	ID   string
	Path string
	Args []string
}

// Options carries the isolation parameters forwarded to the ArgBuilder.
type Options struct {
	ChrootBase string
	UID        int
	GID        int
	NewPIDNS   bool
	Daemonize  bool
}

// ArgBuilder turns an identity and an executable path into a ready-to-execute
// argument list. The isolation configuration itself lives behind this
// interface.
type ArgBuilder interface {
	BuildArgs(id string, execFile string, opts Options) ([]string, error)
}

// DuplicateIdentityError reports two launch specs in the same batch sharing
// an identity. This is a configuration error caught before any launch starts.
type DuplicateIdentityError struct {
	ID string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate launch identity %q in batch", e.ID)
}

// Build produces n launch specs with generated distinct identities,
// delegating the argument list construction to the given ArgBuilder.
func Build(n int, binary string, execFile string, opts Options, builder ArgBuilder) ([]Spec, error) {
	if n < 0 {
		return nil, fmt.Errorf("batch size must not be negative, got %d", n)
	}

	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("fakefc%d", i)
	}

	return BuildWithIdentities(ids, binary, execFile, opts, builder)
}

// BuildWithIdentities produces one launch spec per identity. Identities must
// be unique within the batch so the isolated runtime does not collide on
// shared state such as chroot directories or lock files.
func BuildWithIdentities(ids []string, binary string, execFile string, opts Options, builder ArgBuilder) ([]Spec, error) {
	logger := logging.GetLogger()

	specs := make([]Spec, 0, len(ids))
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			return nil, &DuplicateIdentityError{ID: id}
		}
		seen[id] = true
	}

	for _, id := range ids {
		args, err := builder.BuildArgs(id, execFile, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to build args for launch %s: %w", id, err)
		}

		specs = append(specs, Spec{
			ID:   id,
			Path: binary,
			Args: args,
		})
	}

	logger.WithFields(logrus.Fields{
		"count":  len(specs),
		"binary": binary,
	}).Debug("Launch specs built")

	return specs, nil
}
