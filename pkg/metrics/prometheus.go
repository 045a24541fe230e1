package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements Collector using Prometheus metrics
type PrometheusCollector struct {
	launches       *prometheus.CounterVec
	launchDuration *prometheus.HistogramVec
	stops          *prometheus.CounterVec
	stopDuration   *prometheus.HistogramVec
	reconciled     *prometheus.CounterVec
	probes         *prometheus.CounterVec
	probeDuration  *prometheus.HistogramVec
	instances      *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewPrometheusCollector creates a collector with its own registry
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = "devlauncher"
	}

	pc := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
	}

	pc.launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Total number of service start attempts",
		},
		[]string{"service", "outcome"},
	)

	pc.launchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "launch_duration_seconds",
			Help:      "Duration of service start attempts, including port reconciliation and startup confirmation",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 30},
		},
		[]string{"service"},
	)

	pc.stops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stops_total",
			Help:      "Total number of instance stops by outcome",
		},
		[]string{"service", "outcome"},
	)

	pc.stopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stop_duration_seconds",
			Help:      "Duration of instance stops",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 3, 5},
		},
		[]string{"service"},
	)

	pc.reconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "port_owners_reconciled_total",
			Help:      "Total number of foreign port owners handled before a launch",
		},
		[]string{"outcome"},
	)

	pc.probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_probes_total",
			Help:      "Total number of HTTP health probes by result",
		},
		[]string{"service", "result"},
	)

	pc.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_probe_duration_seconds",
			Help:      "Duration of HTTP health probes",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	pc.instances = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_instances",
			Help:      "Registered instances per service and OS liveness",
		},
		[]string{"service", "state"},
	)

	pc.registry.MustRegister(
		pc.launches,
		pc.launchDuration,
		pc.stops,
		pc.stopDuration,
		pc.reconciled,
		pc.probes,
		pc.probeDuration,
		pc.instances,
	)

	return pc
}

func (pc *PrometheusCollector) LaunchCompleted(service string, outcome string, duration time.Duration) {
	pc.launches.WithLabelValues(service, outcome).Inc()
	pc.launchDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) StopCompleted(service string, outcome string, duration time.Duration) {
	pc.stops.WithLabelValues(service, outcome).Inc()
	pc.stopDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) PortReconciled(outcome string) {
	pc.reconciled.WithLabelValues(outcome).Inc()
}

func (pc *PrometheusCollector) ProbeCompleted(service string, healthy bool, duration time.Duration) {
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	pc.probes.WithLabelValues(service, result).Inc()
	pc.probeDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// InstancesObserved replaces the gauge content, services missing from both maps disappear
func (pc *PrometheusCollector) InstancesObserved(live map[string]int, dead map[string]int) {
	pc.instances.Reset()
	for service, count := range live {
		pc.instances.WithLabelValues(service, "live").Set(float64(count))
	}
	for service, count := range dead {
		pc.instances.WithLabelValues(service, "dead").Set(float64(count))
	}
}

// Registry exposes the underlying registry, mostly for tests
func (pc *PrometheusCollector) Registry() *prometheus.Registry {
	return pc.registry
}

// Handler serves the collected metrics in the Prometheus exposition format
func (pc *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{})
}
