//go:build !windows

package processstate

import (
	"errors"
	"os"
	"syscall"

	domainerrors "github.com/core-tools/hsu-devlauncher/pkg/errors"
)

// IsProcessRunning reports whether pid is present in the OS process table.
// A process owned by another user (EPERM) counts as running.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, domainerrors.NewValidationError("PID must be positive", nil).WithContext("pid", pid)
	}

	// FindProcess always succeeds on Unix, signal 0 does the existence check
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, err
	}

	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return false, nil
	case errors.Is(err, syscall.EPERM):
		return true, nil
	}
	return false, err
}
