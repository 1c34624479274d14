package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cictl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by the artifact sink.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cictl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Artifact sink HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	sinkStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cictl",
			Subsystem: "sink",
			Name:      "artifacts_stored_total",
			Help:      "Artifacts written to sink storage.",
		},
		[]string{"node"},
	)
	sinkBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cictl",
			Subsystem: "sink",
			Name:      "artifact_bytes_total",
			Help:      "Artifact bytes written to sink storage.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, sinkStored, sinkBytes)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordSinkStore(node string, bytes int64) {
	RegisterMetrics()
	sinkStored.WithLabelValues(node).Inc()
	sinkBytes.WithLabelValues(node).Add(float64(bytes))
}

// UploadMetrics holds per-run upload counters. They live in their own registry
// because a CLI run pushes them once to a Pushgateway instead of being scraped.
type UploadMetrics struct {
	Registry  *prometheus.Registry
	Artifacts *prometheus.CounterVec
	Bytes     prometheus.Counter
	Attempts  prometheus.Counter
	Duration  prometheus.Gauge
	LastRun   prometheus.Gauge
}

func NewUploadMetrics() *UploadMetrics {
	m := &UploadMetrics{
		Registry: prometheus.NewRegistry(),
		Artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cictl",
			Subsystem: "upload",
			Name:      "artifacts_total",
			Help:      "Artifacts handled by the uploader, by outcome.",
		}, []string{"transport", "result"}),
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cictl",
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Artifact bytes sent.",
		}),
		Attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cictl",
			Subsystem: "upload",
			Name:      "attempts_total",
			Help:      "Upload requests attempted, including retries.",
		}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cictl",
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Wall time of the last upload run.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cictl",
			Subsystem: "upload",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last upload run finished.",
		}),
	}
	m.Registry.MustRegister(m.Artifacts, m.Bytes, m.Attempts, m.Duration, m.LastRun)
	return m
}

// Observe records one finished upload run.
func (m *UploadMetrics) Observe(transport string, artifacts int, ok bool, bytes int64, attempts int, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.Artifacts.WithLabelValues(transport, result).Add(float64(artifacts))
	if ok {
		m.Bytes.Add(float64(bytes))
	}
	m.Attempts.Add(float64(attempts))
	m.Duration.Set(d.Seconds())
	m.LastRun.SetToCurrentTime()
}
