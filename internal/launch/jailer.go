package launch

import (
	"strconv"
)

// JailerArgBuilder renders the command line of the external jailer binary.
// Every launch gets its own --id so chroot directories never collide.
type JailerArgBuilder struct{}

func (JailerArgBuilder) BuildArgs(id string, execFile string, opts Options) ([]string, error) {
	args := []string{
		"--id", id,
		"--exec-file", execFile,
		"--uid", strconv.Itoa(opts.UID),
		"--gid", strconv.Itoa(opts.GID),
	}

	if opts.ChrootBase != "" {
		args = append(args, "--chroot-base-dir", opts.ChrootBase)
	}
	if opts.NewPIDNS {
		args = append(args, "--new-pid-ns")
	}
	if opts.Daemonize {
		args = append(args, "--daemonize")
	}

	return args, nil
}
