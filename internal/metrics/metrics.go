// Package metrics writes the outcome of a run as a Prometheus textfile for
// the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "backupclean"

// Snapshot is the data exported after a run.
type Snapshot struct {
	Destination   string
	Copied        int
	CopyFailures  int
	InitialSize   int64
	FinalSize     int64
	BudgetBytes   int64
	Evicted       int
	EvictedBytes  int64
	EvictFailures int
	FinishedAt    time.Time
	RunDuration   time.Duration
}

type collector struct {
	registry      *prometheus.Registry
	copied        prometheus.Gauge
	copyFailures  prometheus.Gauge
	dirSize       *prometheus.GaugeVec
	budget        prometheus.Gauge
	evicted       prometheus.Gauge
	evictedBytes  prometheus.Gauge
	evictFailures prometheus.Gauge
	lastRun       prometheus.Gauge
	duration      prometheus.Gauge
}

func newCollector(destination string) *collector {
	labels := prometheus.Labels{"destination": destination}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	c := &collector{
		registry:     prometheus.NewRegistry(),
		copied:       gauge("copied_files", "Files copied by the last run."),
		copyFailures: gauge("copy_failures", "Files the last run failed to copy."),
		dirSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "directory_size_bytes",
			Help:        "Recursive size of the destination before and after eviction.",
			ConstLabels: labels,
		}, []string{"phase"}),
		budget:        gauge("budget_bytes", "Configured size budget of the destination."),
		evicted:       gauge("evicted_files", "Files deleted by the last run."),
		evictedBytes:  gauge("evicted_bytes", "Bytes freed by the last run."),
		evictFailures: gauge("eviction_failures", "Eviction candidates excluded after a failure."),
		lastRun:       gauge("last_run_timestamp_seconds", "Unix time the last run finished."),
		duration:      gauge("run_duration_seconds", "Wall time of the last run."),
	}
	c.registry.MustRegister(
		c.copied, c.copyFailures, c.dirSize, c.budget, c.evicted,
		c.evictedBytes, c.evictFailures, c.lastRun, c.duration,
	)
	return c
}

// WriteTextfile writes s to path in the Prometheus text format.
// The file is replaced atomically.
func WriteTextfile(path string, s Snapshot) error {
	c := newCollector(s.Destination)
	c.copied.Set(float64(s.Copied))
	c.copyFailures.Set(float64(s.CopyFailures))
	c.dirSize.WithLabelValues("initial").Set(float64(s.InitialSize))
	c.dirSize.WithLabelValues("final").Set(float64(s.FinalSize))
	c.budget.Set(float64(s.BudgetBytes))
	c.evicted.Set(float64(s.Evicted))
	c.evictedBytes.Set(float64(s.EvictedBytes))
	c.evictFailures.Set(float64(s.EvictFailures))
	c.lastRun.Set(float64(s.FinishedAt.Unix()))
	c.duration.Set(s.RunDuration.Seconds())

	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
