// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExecFunc replaces the process image. syscall.Exec satisfies it; tests
// substitute a recorder.
type ExecFunc func(argv0 string, argv []string, envv []string) error

// Descriptor returns the descriptor number behind file without
// changing its blocking mode (File.Fd would force blocking).
func Descriptor(file *os.File) (int, error) {
	rawConn, err := file.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("descriptor for %s: %w", file.Name(), err)
	}
	descriptor := -1
	if err := rawConn.Control(func(fd uintptr) { descriptor = int(fd) }); err != nil {
		return -1, fmt.Errorf("descriptor for %s: %w", file.Name(), err)
	}
	return descriptor, nil
}

// Inherit clears close-on-exec on each file so the descriptor survives
// exec(2) at the same number.
func Inherit(files ...*os.File) error {
	for _, file := range files {
		rawConn, err := file.SyscallConn()
		if err != nil {
			return fmt.Errorf("inheriting %s: %w", file.Name(), err)
		}
		var fcntlErr error
		if err := rawConn.Control(func(fd uintptr) {
			_, fcntlErr = unix.FcntlInt(fd, unix.F_SETFD, 0)
		}); err != nil {
			return fmt.Errorf("inheriting %s: %w", file.Name(), err)
		}
		if fcntlErr != nil {
			return fmt.Errorf("clearing close-on-exec on %s: %w", file.Name(), fcntlErr)
		}
	}
	return nil
}

// Exec resolves argv[0] against PATH and replaces the current process
// with it. On success it does not return. If execFunc is nil,
// syscall.Exec is used.
func Exec(execFunc ExecFunc, argv []string, env []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("exec: empty command line")
	}
	if execFunc == nil {
		execFunc = syscall.Exec
	}

	binary, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("resolving %q: %w", argv[0], err)
	}

	if err := execFunc(binary, argv, env); err != nil {
		return fmt.Errorf("exec %s: %w", binary, err)
	}
	return nil
}
