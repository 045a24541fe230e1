package process

import (
	"context"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/processstate"
)

// Signaller abstracts the OS calls needed to stop a process.
// Implementations must return nil when the target no longer exists.
type Signaller interface {
	Terminate(pid int, group bool) error
	Kill(pid int, group bool) error
	Alive(pid int) bool
}

// NewOSSignaller returns the platform Signaller
func NewOSSignaller() Signaller {
	return osSignaller{}
}

type osSignaller struct{}

func (osSignaller) Terminate(pid int, group bool) error {
	return sendTerminate(pid, group)
}

func (osSignaller) Kill(pid int, group bool) error {
	return sendKill(pid, group)
}

func (osSignaller) Alive(pid int) bool {
	return processstate.Exists(pid)
}

// StopOutcome describes how a process ended
type StopOutcome string

const (
	StopOutcomeAlreadyGone StopOutcome = "already_gone"
	StopOutcomeGraceful    StopOutcome = "graceful"
	StopOutcomeForced      StopOutcome = "forced"
)

// GracefulStopOptions bounds the graceful phase of GracefulStop
type GracefulStopOptions struct {
	// Signal the whole process group (only for processes we spawned)
	Group        bool
	GracePeriod  time.Duration
	PollInterval time.Duration
}

const (
	DefaultPollInterval = 100 * time.Millisecond
	forcedKillSettle    = 500 * time.Millisecond
)

// GracefulStop sends a termination signal, waits up to the grace period for the
// process to vanish and then kills it. A process that disappears at any point is
// a success. Permission errors are returned as they are.
func GracefulStop(ctx context.Context, signaller Signaller, pid int, options GracefulStopOptions) (StopOutcome, error) {
	if pid <= 0 {
		return "", errors.NewValidationError("PID must be positive", nil).WithContext("pid", pid)
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}

	if !signaller.Alive(pid) {
		return StopOutcomeAlreadyGone, nil
	}

	if err := signaller.Terminate(pid, options.Group); err != nil {
		return "", err
	}

	if waitGone(ctx, signaller, pid, options.GracePeriod, options.PollInterval) {
		return StopOutcomeGraceful, nil
	}

	if err := signaller.Kill(pid, options.Group); err != nil {
		return "", err
	}

	// The kill is not interruptible, give it a moment to be reflected in the process table
	waitGone(context.Background(), signaller, pid, forcedKillSettle, options.PollInterval)

	return StopOutcomeForced, nil
}

// waitGone polls until pid disappears, the timeout elapses or ctx is done
func waitGone(ctx context.Context, signaller Signaller, pid int, timeout, poll time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if !signaller.Alive(pid) {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return !signaller.Alive(pid)
		case <-ctx.Done():
			return !signaller.Alive(pid)
		}
	}
}
