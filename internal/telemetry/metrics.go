// Package telemetry records the metrics of one training run in a private
// Prometheus registry and writes them to a node exporter textfile.
package telemetry

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric.
const Namespace = "workertiers"

// Metrics holds the collectors of a single run. It is safe for concurrent use.
type Metrics struct {
	reg *prometheus.Registry

	runInfo       *prometheus.GaugeVec
	stageDuration *prometheus.GaugeVec
	stageFailures *prometheus.CounterVec
	workers       prometheus.Gauge
	records       prometheus.Gauge
	fallback      prometheus.Gauge
	clusterSize   *prometheus.GaugeVec
	inertia       prometheus.Gauge
	silhouette    prometheus.Gauge
	iterations    prometheus.Gauge
	verifySamples prometheus.Gauge
	mismatches    prometheus.Gauge
	maxRelError   prometheus.Gauge
	published     prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		runInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_info",
			Help:      "Identifies the training run that produced these metrics.",
		}, []string{"run_id"}),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "stage",
			Name:      "failures_total",
			Help:      "Pipeline stage failures by stage and error kind.",
		}, []string{"stage", "kind"}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "dataset",
			Name:      "workers",
			Help:      "Workers in the feature table after role exclusion.",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "dataset",
			Name:      "attendance_records",
			Help:      "Attendance records loaded from the source.",
		}),
		fallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "dataset",
			Name:      "fallback",
			Help:      "1 when the most recent records replaced an empty date range.",
		}),
		clusterSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "model",
			Name:      "cluster_workers",
			Help:      "Workers assigned to each cluster.",
		}, []string{"cluster", "label"}),
		inertia: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "model",
			Name:      "inertia",
			Help:      "Sum of squared standardized distances to the nearest centroid.",
		}),
		silhouette: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "model",
			Name:      "silhouette",
			Help:      "Mean silhouette coefficient of the fitted clustering.",
		}),
		iterations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "model",
			Name:      "iterations",
			Help:      "Lloyd iterations of the winning k-means restart.",
		}),
		verifySamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "export",
			Name:      "verify_samples",
			Help:      "Vectors compared between the engine and the exported graph.",
		}),
		mismatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "export",
			Name:      "verify_mismatches",
			Help:      "Vectors on which the exported graph disagreed with the engine.",
		}),
		maxRelError: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "export",
			Name:      "verify_max_relative_error",
			Help:      "Largest relative distance error between the engine and the graph.",
		}),
		published: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "publish",
			Name:      "workers",
			Help:      "Worker results written to the results store.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed every stage.",
		}),
	}

	m.reg.MustRegister(
		m.runInfo, m.stageDuration, m.stageFailures,
		m.workers, m.records, m.fallback,
		m.clusterSize, m.inertia, m.silhouette, m.iterations,
		m.verifySamples, m.mismatches, m.maxRelError,
		m.published, m.lastSuccess,
	)
	return m
}

// Registry returns the run registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// SetRun records the run id.
func (m *Metrics) SetRun(runID string) {
	m.runInfo.Reset()
	m.runInfo.WithLabelValues(runID).Set(1)
}

// ObserveStage records the duration of a stage and, when kind is not
// empty, a failure of that error kind.
func (m *Metrics) ObserveStage(stage string, d time.Duration, kind string) {
	m.stageDuration.WithLabelValues(stage).Set(d.Seconds())
	if kind != "" {
		m.stageFailures.WithLabelValues(stage, kind).Inc()
	}
}

// SetDataset records the size of the loaded data.
func (m *Metrics) SetDataset(workers, records int, fallback bool) {
	m.workers.Set(float64(workers))
	m.records.Set(float64(records))
	if fallback {
		m.fallback.Set(1)
	} else {
		m.fallback.Set(0)
	}
}

// SetModel records the fit quality.
func (m *Metrics) SetModel(inertia, silhouette float64, iterations int) {
	m.inertia.Set(inertia)
	m.silhouette.Set(silhouette)
	m.iterations.Set(float64(iterations))
}

// SetClusters records the number of workers per cluster.
func (m *Metrics) SetClusters(counts map[int]int, labels map[int]string) {
	m.clusterSize.Reset()
	for c, n := range counts {
		m.clusterSize.WithLabelValues(strconv.Itoa(c), labels[c]).Set(float64(n))
	}
}

// SetVerification records the export comparison.
func (m *Metrics) SetVerification(samples, mismatches int, maxRelError float64) {
	m.verifySamples.Set(float64(samples))
	m.mismatches.Set(float64(mismatches))
	m.maxRelError.Set(maxRelError)
}

// SetPublished records how many worker results were published.
func (m *Metrics) SetPublished(workers int) {
	m.published.Set(float64(workers))
}

// MarkSuccess records the completion time of a successful run.
func (m *Metrics) MarkSuccess(t time.Time) {
	m.lastSuccess.Set(float64(t.Unix()))
}

// WriteTextfile writes the registry in the text exposition format for the
// node exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
