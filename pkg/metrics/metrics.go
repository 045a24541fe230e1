package metrics

import "time"

// Collector receives launcher lifecycle observations
type Collector interface {
	// LaunchCompleted records a start attempt and how long it took
	LaunchCompleted(service string, outcome string, duration time.Duration)

	// StopCompleted records the end of one instance stop
	StopCompleted(service string, outcome string, duration time.Duration)

	// PortReconciled records how a foreign port owner was handled
	PortReconciled(outcome string)

	// ProbeCompleted records a health probe result
	ProbeCompleted(service string, healthy bool, duration time.Duration)

	// InstancesObserved publishes the live and dead instance counts per service
	InstancesObserved(live map[string]int, dead map[string]int)
}

// NewNoopCollector returns a Collector that discards everything
func NewNoopCollector() Collector {
	return noopCollector{}
}

type noopCollector struct{}

func (noopCollector) LaunchCompleted(service string, outcome string, duration time.Duration) {}
func (noopCollector) StopCompleted(service string, outcome string, duration time.Duration)   {}
func (noopCollector) PortReconciled(outcome string)                                          {}
func (noopCollector) ProbeCompleted(service string, healthy bool, duration time.Duration)    {}
func (noopCollector) InstancesObserved(live map[string]int, dead map[string]int)             {}

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
