//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes configures Unix-specific process attributes
func setupProcessAttributes(cmd *exec.Cmd) {
	// On Unix, create a new process group that we can signal as a whole.
	// Sending SIGTERM to -pid then reaches launcher wrappers such as
	// "dotnet run" together with the server they start.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
