package monitoring

import (
	"context"

	"github.com/core-tools/hsu-devlauncher/pkg/logging"
	"github.com/core-tools/hsu-devlauncher/pkg/metrics"
	"github.com/core-tools/hsu-devlauncher/pkg/process"
	"github.com/core-tools/hsu-devlauncher/pkg/registry"
)

// ServiceStatus pairs a registry record with the OS view of its process
type ServiceStatus struct {
	Record registry.ProcessRecord
	Alive  bool

	// Only filled in by the poller when health probing is enabled
	Health *HealthCheckState
}

// Monitor compares the registry with the OS process table
type Monitor struct {
	registry  *registry.Registry
	signaller process.Signaller
	prober    Prober
	metrics   metrics.Collector
	logger    logging.Logger
}

func NewMonitor(reg *registry.Registry, signaller process.Signaller, prober Prober, collector metrics.Collector, logger logging.Logger) *Monitor {
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	return &Monitor{
		registry:  reg,
		signaller: signaller,
		prober:    prober,
		metrics:   collector,
		logger:    logger,
	}
}

// Status reports every registry entry with its PID liveness, ordered by key.
// It never modifies the registry.
func (m *Monitor) Status(ctx context.Context) ([]ServiceStatus, error) {
	entries, err := m.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]ServiceStatus, 0, len(entries))
	for _, record := range entries.Records() {
		statuses = append(statuses, ServiceStatus{
			Record: record,
			Alive:  m.signaller.Alive(record.PID),
		})
	}
	return statuses, nil
}

// Probe reports whether the instance answers its health endpoint with 2xx
func (m *Monitor) Probe(ctx context.Context, record registry.ProcessRecord) bool {
	return m.ProbeDetailed(ctx, record).Healthy
}

// ProbeDetailed is Probe with the status code and message kept
func (m *Monitor) ProbeDetailed(ctx context.Context, record registry.ProcessRecord) ProbeResult {
	result := m.prober.Probe(ctx, record.Port, record.HealthCheckPath)
	m.metrics.ProbeCompleted(record.ServiceName, result.Healthy, result.Duration)
	m.logger.Debugf("Health probe, key: %s, healthy: %v, message: %s", record.Key(), result.Healthy, result.Message)
	return result
}

// Prune removes the entries whose process no longer exists and returns them
func (m *Monitor) Prune(ctx context.Context) ([]registry.ProcessRecord, error) {
	var pruned []registry.ProcessRecord

	_, err := m.registry.Update(ctx, func(entries registry.Entries) error {
		pruned = pruned[:0]
		for _, key := range entries.Keys() {
			record := entries[key]
			if m.signaller.Alive(record.PID) {
				continue
			}
			delete(entries, key)
			pruned = append(pruned, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, record := range pruned {
		m.logger.Infof("Pruned stale registry entry, key: %s, PID: %d", record.Key(), record.PID)
	}
	return pruned, nil
}
