//go:build !windows

package process

import (
	"errors"
	"syscall"

	domainerrors "github.com/core-tools/hsu-devlauncher/pkg/errors"
)

// sendTerminate sends SIGTERM to the process, or to its whole group when group is set
func sendTerminate(pid int, group bool) error {
	return sendSignal(pid, group, syscall.SIGTERM)
}

// sendKill sends SIGKILL to the process, or to its whole group when group is set
func sendKill(pid int, group bool) error {
	return sendSignal(pid, group, syscall.SIGKILL)
}

func sendSignal(pid int, group bool, sig syscall.Signal) error {
	if group {
		// Spawned children lead their own group (Setpgid), so -pid reaches the whole tree
		err := syscall.Kill(-pid, sig)
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.ESRCH) {
			return classifySignalError(pid, sig, err)
		}
		// No such group: fall through to the single process
	}

	if err := syscall.Kill(pid, sig); err != nil {
		return classifySignalError(pid, sig, err)
	}
	return nil
}

func classifySignalError(pid int, sig syscall.Signal, err error) error {
	switch {
	case errors.Is(err, syscall.ESRCH):
		return nil
	case errors.Is(err, syscall.EPERM):
		return domainerrors.NewPermissionError("not permitted to signal process", err).
			WithContext("pid", pid).WithContext("signal", sig.String())
	}
	return domainerrors.NewProcessError("failed to signal process", err).
		WithContext("pid", pid).WithContext("signal", sig.String())
}
