package prune

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Secret outcomes and version results used as metric labels.
const (
	outcomeProcessed = "processed"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"

	resultKept     = "kept"
	resultInactive = "inactive"
	resultFailed   = "failed"
)

// Metrics records run counters in a private registry so they can be written
// to a node-exporter textfile at the end of the run. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	secretsTotal  *prometheus.CounterVec
	versionsTotal *prometheus.CounterVec
	runDuration   prometheus.Gauge
	lastRun       prometheus.Gauge
}

// NewMetrics creates and registers the run metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		secretsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gcp_secrets_disabler_secrets_total",
				Help: "Secrets seen by the last run, by outcome",
			},
			[]string{"outcome"},
		),
		versionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gcp_secrets_disabler_versions_total",
				Help: "Secret versions seen by the last run, by result",
			},
			[]string{"result", "dry_run"},
		),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gcp_secrets_disabler_run_duration_seconds",
			Help: "Wall time of the last run in seconds",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gcp_secrets_disabler_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
}

func (m *Metrics) recordSecret(outcome string) {
	if m == nil {
		return
	}
	m.secretsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordVersions(result string, dryRun bool, n int) {
	if m == nil || n == 0 {
		return
	}
	label := "false"
	if dryRun {
		label = "true"
	}
	m.versionsTotal.WithLabelValues(result, label).Add(float64(n))
}

func (m *Metrics) recordRun(started, finished time.Time) {
	if m == nil {
		return
	}
	m.runDuration.Set(finished.Sub(started).Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes all metrics in the Prometheus text format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
