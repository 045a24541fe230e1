//go:build windows

package process

import (
	"errors"
	"os"
	"sync"
	"syscall"

	domainerrors "github.com/core-tools/hsu-devlauncher/pkg/errors"
)

// Windows console operation lock to prevent races between Ctrl+Break deliveries
var consoleOperationLock sync.Mutex

// sendTerminate delivers Ctrl+Break to the process group created with CREATE_NEW_PROCESS_GROUP.
// Processes we did not spawn have no such group, Terminate is then a no-op and the
// caller escalates to Kill after the grace period.
func sendTerminate(pid int, group bool) error {
	if !group {
		return nil
	}

	consoleOperationLock.Lock()
	defer consoleOperationLock.Unlock()

	dll, err := syscall.LoadDLL("kernel32.dll")
	if err != nil {
		return domainerrors.NewInternalError("failed to load kernel32.dll", err)
	}
	defer dll.Release()

	proc, err := dll.FindProc("GenerateConsoleCtrlEvent")
	if err != nil {
		return domainerrors.NewInternalError("GenerateConsoleCtrlEvent not available", err)
	}

	result, _, callErr := proc.Call(uintptr(syscall.CTRL_BREAK_EVENT), uintptr(pid))
	if result == 0 {
		return classifySignalError(pid, callErr)
	}
	return nil
}

// sendKill terminates the process with TerminateProcess
func sendKill(pid int, group bool) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return classifySignalError(pid, err)
	}
	defer proc.Release()

	if err := proc.Kill(); err != nil {
		return classifySignalError(pid, err)
	}
	return nil
}

func classifySignalError(pid int, err error) error {
	switch {
	case err == nil, errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.Errno(87)):
		return nil
	case errors.Is(err, syscall.ERROR_ACCESS_DENIED):
		return domainerrors.NewPermissionError("not permitted to signal process", err).WithContext("pid", pid)
	}
	return domainerrors.NewProcessError("failed to signal process", err).WithContext("pid", pid)
}
