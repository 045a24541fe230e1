package terminator

import (
	"context"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/catalog"
	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"
	"github.com/core-tools/hsu-devlauncher/pkg/metrics"
	"github.com/core-tools/hsu-devlauncher/pkg/process"
	"github.com/core-tools/hsu-devlauncher/pkg/registry"
)

const DefaultGracePeriod = 2 * time.Second

type Config struct {
	// How long a terminated instance gets before it is killed
	GracePeriod time.Duration
}

// StopFailure pairs an instance with the error that kept it running
type StopFailure struct {
	Record registry.ProcessRecord
	Err    error
}

type StopResult struct {
	Stopped []registry.ProcessRecord
	Failed  []StopFailure
}

// Terminator stops registered instances and removes their registry entries
type Terminator struct {
	registry  *registry.Registry
	signaller process.Signaller
	config    Config
	metrics   metrics.Collector
	logger    logging.Logger
}

func New(reg *registry.Registry, signaller process.Signaller, config Config, collector metrics.Collector, logger logging.Logger) *Terminator {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	return &Terminator{
		registry:  reg,
		signaller: signaller,
		config:    config,
		metrics:   collector,
		logger:    logger,
	}
}

// Stop stops the listed ports of service, or every instance of it when no port
// is given. Entries of a different kind are never touched.
func (t *Terminator) Stop(ctx context.Context, service string, kind catalog.Kind, ports ...int) (StopResult, error) {
	entries, err := t.registry.Snapshot(ctx)
	if err != nil {
		return StopResult{}, err
	}

	var targets []registry.ProcessRecord
	if len(ports) == 0 {
		targets = entries.Match(service, kind)
	} else {
		selected := make(map[int]bool, len(ports))
		for _, port := range ports {
			if selected[port] {
				continue
			}
			selected[port] = true
			record, ok := entries[registry.Key(service, port)]
			if ok && record.Kind == kind {
				targets = append(targets, record)
			}
		}
	}

	if len(targets) == 0 {
		t.logger.Warnf("No running instances to stop, service: %s, kind: %s, ports: %v", service, kind, ports)
		return StopResult{}, errors.NewNotFoundError("no running instances matched", nil).
			WithContext("service", service).WithContext("kind", string(kind)).WithContext("ports", ports)
	}

	return t.stopRecords(ctx, service, targets)
}

// StopAll stops every registered instance. An empty registry is not an error.
func (t *Terminator) StopAll(ctx context.Context) (StopResult, error) {
	entries, err := t.registry.Snapshot(ctx)
	if err != nil {
		return StopResult{}, err
	}
	if len(entries) == 0 {
		t.logger.Infof("No running instances")
		return StopResult{}, nil
	}
	return t.stopRecords(ctx, "all services", entries.Records())
}

func (t *Terminator) stopRecords(ctx context.Context, label string, targets []registry.ProcessRecord) (StopResult, error) {
	var result StopResult
	failures := errors.NewErrorCollection()

	for _, record := range targets {
		if err := t.stopOne(ctx, record); err != nil {
			result.Failed = append(result.Failed, StopFailure{Record: record, Err: err})
			failures.Add(err)
			continue
		}
		result.Stopped = append(result.Stopped, record)
	}

	if len(result.Stopped) > 0 {
		if err := t.removeEntries(ctx, result.Stopped); err != nil {
			return result, err
		}
	}

	if failures.HasErrors() {
		t.logger.Errorf("Some instances could not be stopped, target: %s, stopped: %d, failed: %d",
			label, len(result.Stopped), len(result.Failed))
		return result, errors.NewPartialStopFailureError(label, len(result.Stopped), len(result.Failed), failures.ToError())
	}
	return result, nil
}

func (t *Terminator) stopOne(ctx context.Context, record registry.ProcessRecord) error {
	started := time.Now()
	key := record.Key()

	t.logger.Infof("Stopping instance, key: %s, PID: %d", key, record.PID)

	outcome, err := process.GracefulStop(ctx, t.signaller, record.PID, process.GracefulStopOptions{
		Group:       true,
		GracePeriod: t.config.GracePeriod,
	})
	if err != nil {
		t.logger.Errorf("Failed to stop instance, key: %s, PID: %d, error: %v", key, record.PID, err)
		t.metrics.StopCompleted(record.ServiceName, metrics.OutcomeFailure, time.Since(started))
		return err
	}

	t.logger.Infof("Instance stopped, key: %s, PID: %d, outcome: %s", key, record.PID, outcome)
	t.metrics.StopCompleted(record.ServiceName, string(outcome), time.Since(started))
	return nil
}

// removeEntries deletes the stopped entries unless they were replaced meanwhile
func (t *Terminator) removeEntries(ctx context.Context, stopped []registry.ProcessRecord) error {
	_, err := t.registry.Update(ctx, func(entries registry.Entries) error {
		for _, record := range stopped {
			key := record.Key()
			if current, ok := entries[key]; ok && current.PID == record.PID {
				delete(entries, key)
			}
		}
		return nil
	})
	if err != nil {
		t.logger.Errorf("Failed to remove stopped instances from registry, error: %v", err)
	}
	return err
}
