package monitoring

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/logging"
)

const DefaultProbeTimeout = 5 * time.Second

type HealthCheckStatus string

const (
	HealthCheckStatusUnknown   HealthCheckStatus = "unknown"
	HealthCheckStatusHealthy   HealthCheckStatus = "healthy"
	HealthCheckStatusDegraded  HealthCheckStatus = "degraded"
	HealthCheckStatusUnhealthy HealthCheckStatus = "unhealthy"
)

// HealthCheckState tracks the probe history of one service instance
type HealthCheckState struct {
	Status               HealthCheckStatus
	LastCheck            time.Time
	Message              string
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
}

// ProbeResult is the outcome of one HTTP health probe
type ProbeResult struct {
	Healthy    bool
	StatusCode int
	Message    string
	Duration   time.Duration
}

// Prober checks the HTTP health endpoint of a local service
type Prober interface {
	Probe(ctx context.Context, port int, path string) ProbeResult
}

// HTTPProber issues GET http://localhost:{port}{path}. Any 2xx is healthy;
// refusals, timeouts and other statuses are unhealthy.
type HTTPProber struct {
	client *http.Client
	host   string
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProber{
		client: &http.Client{
			Timeout: timeout,
		},
		host: "localhost",
	}
}

func (p *HTTPProber) Probe(ctx context.Context, port int, path string) ProbeResult {
	started := time.Now()
	url := fmt.Sprintf("http://%s:%d%s", p.host, port, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeResult{Message: fmt.Sprintf("Failed to create HTTP request: %v", err), Duration: time.Since(started)}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeResult{Message: fmt.Sprintf("HTTP request failed: %v", err), Duration: time.Since(started)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	result := ProbeResult{StatusCode: resp.StatusCode, Duration: time.Since(started)}

	// Consider 2xx status codes as healthy
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Healthy = true
		result.Message = fmt.Sprintf("HTTP health check passed: %s", resp.Status)
		return result
	}

	result.Message = fmt.Sprintf("HTTP health check failed: %s", resp.Status)
	return result
}

// updateState folds one check result into state. The first failure degrades,
// the second makes the instance unhealthy.
func updateState(state *HealthCheckState, id string, isHealthy bool, message string, logger logging.Logger) {
	previousStatus := state.Status
	state.LastCheck = time.Now()

	if isHealthy {
		state.ConsecutiveSuccesses++
		state.ConsecutiveFailures = 0

		if state.Status != HealthCheckStatusHealthy {
			state.Status = HealthCheckStatusHealthy
			logger.Infof("Health check recovered, id: %s, previous: %s, consecutive_successes: %d",
				id, previousStatus, state.ConsecutiveSuccesses)
		} else {
			logger.Debugf("Health check passed, id: %s, consecutive_successes: %d",
				id, state.ConsecutiveSuccesses)
		}
	} else {
		state.ConsecutiveFailures++
		state.ConsecutiveSuccesses = 0

		var newStatus HealthCheckStatus
		if state.ConsecutiveFailures == 1 {
			newStatus = HealthCheckStatusDegraded
		} else {
			newStatus = HealthCheckStatusUnhealthy
		}

		if state.Status != newStatus {
			state.Status = newStatus
			logger.Warnf("Health check status changed, id: %s, status: %s->%s, consecutive_failures: %d, message: %s",
				id, previousStatus, newStatus, state.ConsecutiveFailures, message)
		} else {
			logger.Debugf("Health check failed, id: %s, status: %s, consecutive_failures: %d, message: %s",
				id, state.Status, state.ConsecutiveFailures, message)
		}
	}

	state.Message = message
}
