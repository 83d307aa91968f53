// Package exporter serves the reachability probe as a Prometheus endpoint.
// Each request to the probe handler runs one GET against the target and
// renders the outcome in exposition format.
package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/probekit/reachprobe/config"
	"github.com/probekit/reachprobe/probe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type probeResult struct {
	startTime  time.Time
	success    int
	statusCode int
	cached     int
}

var (
	metricReqInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "reachprobe",
		Name:      "http_requests_inflight",
		Help:      "Number of HTTP inflight requests.",
	})
	metricReqCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reachprobe",
		Name:      "http_requests_total",
		Help:      "Number of HTTP requests processed.",
	})
	metricReqDurationSeconds = promauto.NewSummary(prometheus.SummaryOpts{
		Namespace:  "reachprobe",
		Name:       "http_request_duration_seconds",
		Help:       "Latency of HTTP requests processed.",
		Objectives: map[float64]float64{0.25: 0.05, 0.5: 0.05, 0.75: 0.02, 0.9: 0.01, 0.99: 0.001, 1.0: 0.001},
	})
	metricTransportErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reachprobe",
		Name:      "probe_transport_errors_total",
		Help:      "Total number of probes that failed before a status code was observed.",
	})
)

// Handler runs the reachability probe against target and writes the result
// as Prometheus exposition text. The probe timeout and the cache behavior
// come from the configuration; the target is passed in by the caller and is
// always the fixed probe target in production.
func Handler(w http.ResponseWriter, r *http.Request, c *config.Config, logger *slog.Logger, client *http.Client, target string) {
	w.Header().Set("Content-Type", "text/plain")

	metricReqInflight.Inc()
	defer metricReqInflight.Dec()

	start := time.Now()

	output := handleProbe(r.Context(), c, logger, client, target)

	logger.Debug("Probe was run", slog.Duration("duration", time.Since(start)), slog.String("output", output))
	metricReqCount.Inc()
	metricReqDurationSeconds.Observe(time.Since(start).Seconds())
	fmt.Fprint(w, output)
}

func handleProbe(ctx context.Context, c *config.Config, logger *slog.Logger, client *http.Client, target string) string {
	result := probeResult{
		startTime:  time.Now(),
		success:    1,
		statusCode: 0,
		cached:     0,
	}

	// Check if the result of the probe is cached and not stale. If this is
	// the case the getCacheResult function will return a probeResult which we
	// can directly return.
	if cachedResult := getCacheResult(c, target, false); cachedResult != nil {
		cachedResult.startTime = result.startTime
		cachedResult.cached = 1

		logger.Debug("Using cached probe result", "target", target)
		return generateProbeMetrics(target, *cachedResult)
	}

	if c.Probe.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.Probe.Timeout*float64(time.Second)))
		defer cancel()
	}

	probeRes := probe.Run(ctx, client, target)
	result.statusCode = probeRes.StatusCode

	if probeRes.Err != nil {
		logger.Error("Probe failed", slog.String("target", target), slog.Any("error", probeRes.Err))
		metricTransportErrorsTotal.Inc()
	}

	if !probeRes.Success() {
		result.success = 0

		if c.Probe.Cache.UseExpiredCacheOnError {
			if cachedResult := getCacheResult(c, target, true); cachedResult != nil {
				cachedResult.startTime = result.startTime
				cachedResult.cached = 1

				logger.Debug("Using cached probe result", "target", target)
				return generateProbeMetrics(target, *cachedResult)
			}
		}

		if c.Probe.Cache.CacheOnError {
			setCacheResult(c, target, result)
		}

		return generateProbeMetrics(target, result)
	}

	setCacheResult(c, target, result)
	return generateProbeMetrics(target, result)
}

func generateProbeMetrics(target string, result probeResult) string {
	return `
# HELP probe_success Probe success (0 = failure, 1 = success).
# TYPE probe_success gauge
probe_success ` + fmt.Sprintf("%d", result.success) + `

# HELP probe_status_code HTTP status code returned by the target (0 when no status code was observed).
# TYPE probe_status_code gauge
probe_status_code{target="` + target + `"} ` + fmt.Sprintf("%d", result.statusCode) + `

# HELP probe_duration_seconds Probe duration, in seconds.
# TYPE probe_duration_seconds gauge
probe_duration_seconds ` + fmt.Sprintf("%f", time.Since(result.startTime).Seconds()) + `

# HELP probe_cached Probe result is returned from cache (0 = no, 1 = yes).
# TYPE probe_cached gauge
probe_cached ` + fmt.Sprintf("%d", result.cached) + `
`
}
