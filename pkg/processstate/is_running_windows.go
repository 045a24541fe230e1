//go:build windows

package processstate

import (
	"errors"
	"syscall"

	domainerrors "github.com/core-tools/hsu-devlauncher/pkg/errors"
)

// Windows process status constants
const (
	STILL_ACTIVE                      = 259
	PROCESS_QUERY_LIMITED_INFORMATION = 0x1000

	errorInvalidParameter syscall.Errno = 87
)

// IsProcessRunning checks whether a Windows process is still running.
// A process we may not open (access denied) counts as running.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, domainerrors.NewValidationError("PID must be positive", nil).WithContext("pid", pid)
	}

	handle, err := syscall.OpenProcess(PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if errors.Is(err, errorInvalidParameter) {
			return false, nil
		}
		if errors.Is(err, syscall.ERROR_ACCESS_DENIED) {
			return true, nil
		}
		return false, err
	}
	defer syscall.CloseHandle(handle)

	var exitCode uint32
	if err := syscall.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false, err
	}

	return exitCode == STILL_ACTIVE, nil
}
