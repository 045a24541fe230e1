package ports

import (
	"context"
	"os"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"
	"github.com/core-tools/hsu-devlauncher/pkg/metrics"
	"github.com/core-tools/hsu-devlauncher/pkg/process"
)

type ReconcilerConfig struct {
	GracePeriod  time.Duration
	PollInterval time.Duration
}

const DefaultReconcileGracePeriod = 3 * time.Second

// Reconciler frees a port by stopping whatever process currently owns it
type Reconciler struct {
	finder    OwnerFinder
	signaller process.Signaller
	config    ReconcilerConfig
	metrics   metrics.Collector
	logger    logging.Logger
	selfPID   int
}

func NewReconciler(finder OwnerFinder, signaller process.Signaller, config ReconcilerConfig, collector metrics.Collector, logger logging.Logger) *Reconciler {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultReconcileGracePeriod
	}
	if config.PollInterval <= 0 {
		config.PollInterval = process.DefaultPollInterval
	}
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	return &Reconciler{
		finder:    finder,
		signaller: signaller,
		config:    config,
		metrics:   collector,
		logger:    logger,
		selfPID:   os.Getpid(),
	}
}

// Reconcile terminates every process bound to port, gracefully first.
// It reports true when at least one owner was found and stopped.
// Any failure comes back as a port_reconcile warning for the caller to log;
// owners that could be stopped are stopped regardless.
func (r *Reconciler) Reconcile(ctx context.Context, port int) (bool, error) {
	if err := process.ValidatePort(port); err != nil {
		return false, err
	}

	owners, err := r.finder.Owners(ctx, port)
	if err != nil {
		r.logger.Warnf("Port owner lookup failed, port: %d, error: %v", port, err)
		return false, errors.NewPortReconcileWarning(port, err)
	}
	if len(owners) == 0 {
		r.logger.Debugf("Port is free, port: %d", port)
		return false, nil
	}

	freed := false
	failures := errors.NewErrorCollection()

	for _, owner := range owners {
		if owner.PID == r.selfPID {
			r.logger.Debugf("Skipping own process on port, port: %d", port)
			continue
		}
		if owner.PID <= 0 {
			r.logger.Warnf("Port owner could not be identified, port: %d", port)
			failures.Add(errors.NewPermissionError("port owner could not be identified", nil).WithContext("port", port))
			r.metrics.PortReconciled(metrics.OutcomeFailure)
			continue
		}

		r.logger.Infof("Stopping port owner, port: %d, PID: %d, name: '%s'", port, owner.PID, owner.Name)

		outcome, err := process.GracefulStop(ctx, r.signaller, owner.PID, process.GracefulStopOptions{
			Group:        false,
			GracePeriod:  r.config.GracePeriod,
			PollInterval: r.config.PollInterval,
		})
		if err != nil {
			r.logger.Warnf("Failed to stop port owner, port: %d, PID: %d, error: %v", port, owner.PID, err)
			failures.Add(err)
			r.metrics.PortReconciled(metrics.OutcomeFailure)
			continue
		}

		r.logger.Infof("Port owner stopped, port: %d, PID: %d, outcome: %s", port, owner.PID, outcome)
		r.metrics.PortReconciled(string(outcome))
		freed = true
	}

	if failures.HasErrors() {
		return freed, errors.NewPortReconcileWarning(port, failures.ToError())
	}
	return freed, nil
}

// ReconcileAll reconciles each port in turn and returns how many had owners
// that were stopped. Warnings of individual ports are collected.
func (r *Reconciler) ReconcileAll(ctx context.Context, ports []int) (int, error) {
	freedCount := 0
	warnings := errors.NewErrorCollection()

	for _, port := range ports {
		if ctx.Err() != nil {
			warnings.Add(errors.NewCancelledError("port cleanup cancelled", ctx.Err()))
			break
		}

		freed, err := r.Reconcile(ctx, port)
		if freed {
			freedCount++
		}
		if err != nil {
			warnings.Add(err)
		}
	}

	r.logger.Infof("Port cleanup done, ports: %d, freed: %d, warnings: %d", len(ports), freedCount, len(warnings.Errors))
	return freedCount, warnings.ToError()
}
