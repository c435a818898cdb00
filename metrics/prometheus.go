// Package metrics exposes scheduler and Docker counters in the Prometheus
// text exposition format, without pulling in a client library.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Collector holds registered metrics and renders them on demand.
type Collector struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
	running float64
}

// Metric represents a single metric with its type and values
type Metric struct {
	Name        string
	Type        string // counter, gauge, histogram
	Help        string
	Value       float64
	Histogram   *Histogram
	LastUpdated time.Time
}

// Histogram for tracking distributions
type Histogram struct {
	Count  int64
	Sum    float64
	Bucket map[float64]int64 // bucket threshold -> count
}

// NewCollector creates a collector with the default bootlab metrics
// registered.
func NewCollector() *Collector {
	c := &Collector{
		metrics: make(map[string]*Metric),
	}
	c.registerDefaults()
	return c
}

func (c *Collector) registerDefaults() {
	c.RegisterCounter("bootlab_jobs_total", "Total number of jobs executed")
	c.RegisterCounter("bootlab_jobs_failed_total", "Total number of failed jobs")
	c.RegisterGauge("bootlab_jobs_running", "Number of currently running jobs")
	c.RegisterHistogram("bootlab_job_duration_seconds", "Job execution duration in seconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300})

	c.RegisterGauge("bootlab_up", "Service status (1 = up, 0 = down)")

	c.RegisterCounter("bootlab_docker_operations_total", "Total Docker API operations")
	c.RegisterCounter("bootlab_docker_errors_total", "Total Docker API errors")

	c.RegisterCounter("bootlab_job_retries_total", "Total job retry attempts")
	c.RegisterCounter("bootlab_job_retry_success_total", "Total successful job retries")
	c.RegisterCounter("bootlab_job_retry_failed_total", "Total failed job retries")

	c.RegisterCounter("bootlab_tree_syncs_total", "Total boot tree syncs")
	c.RegisterCounter("bootlab_tree_sync_errors_total", "Total failed boot tree syncs")

	c.SetGauge("bootlab_up", 1)
	c.SetGauge("bootlab_jobs_running", 0)
}

// RegisterCounter registers a new counter metric
func (c *Collector) RegisterCounter(name, help string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics[name] = &Metric{
		Name:        name,
		Type:        "counter",
		Help:        help,
		LastUpdated: time.Now(),
	}
}

// RegisterGauge registers a new gauge metric
func (c *Collector) RegisterGauge(name, help string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics[name] = &Metric{
		Name:        name,
		Type:        "gauge",
		Help:        help,
		LastUpdated: time.Now(),
	}
}

// RegisterHistogram registers a new histogram metric
func (c *Collector) RegisterHistogram(name, help string, buckets []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hist := &Histogram{
		Bucket: make(map[float64]int64),
	}
	for _, b := range buckets {
		hist.Bucket[b] = 0
	}

	c.metrics[name] = &Metric{
		Name:        name,
		Type:        "histogram",
		Help:        help,
		Histogram:   hist,
		LastUpdated: time.Now(),
	}
}

// IncrementCounter increments a counter metric
func (c *Collector) IncrementCounter(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incrementLocked(name, value)
}

func (c *Collector) incrementLocked(name string, value float64) {
	if metric, exists := c.metrics[name]; exists && metric.Type == "counter" {
		metric.Value += value
		metric.LastUpdated = time.Now()
	}
}

// SetGauge sets a gauge metric value
func (c *Collector) SetGauge(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setGaugeLocked(name, value)
}

func (c *Collector) setGaugeLocked(name string, value float64) {
	if metric, exists := c.metrics[name]; exists && metric.Type == "gauge" {
		metric.Value = value
		metric.LastUpdated = time.Now()
	}
}

// ObserveHistogram records a value in a histogram
func (c *Collector) ObserveHistogram(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observeLocked(name, value)
}

func (c *Collector) observeLocked(name string, value float64) {
	if metric, exists := c.metrics[name]; exists && metric.Type == "histogram" {
		hist := metric.Histogram
		hist.Count++
		hist.Sum += value

		for bucket := range hist.Bucket {
			if value <= bucket {
				hist.Bucket[bucket]++
			}
		}

		metric.LastUpdated = time.Now()
	}
}

// RecordJobStart implements core.MetricsRecorder
func (c *Collector) RecordJobStart(jobName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.incrementLocked("bootlab_jobs_total", 1)
	c.running++
	c.setGaugeLocked("bootlab_jobs_running", c.running)
}

// RecordJobComplete implements core.MetricsRecorder
func (c *Collector) RecordJobComplete(jobName string, seconds float64, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observeLocked("bootlab_job_duration_seconds", seconds)
	if failed {
		c.incrementLocked("bootlab_jobs_failed_total", 1)
	}
	if c.running > 0 {
		c.running--
	}
	c.setGaugeLocked("bootlab_jobs_running", c.running)
}

// RecordJobRetry implements core.MetricsRecorder
func (c *Collector) RecordJobRetry(jobName string, attempt int, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.incrementLocked("bootlab_job_retries_total", 1)
	if success {
		c.incrementLocked("bootlab_job_retry_success_total", 1)
	} else {
		c.incrementLocked("bootlab_job_retry_failed_total", 1)
	}
}

// RecordDockerOperation implements core.MetricsRecorder
func (c *Collector) RecordDockerOperation(op string) {
	c.IncrementCounter("bootlab_docker_operations_total", 1)
}

// RecordDockerError implements core.MetricsRecorder
func (c *Collector) RecordDockerError(op string) {
	c.IncrementCounter("bootlab_docker_errors_total", 1)
}

// RecordTreeSync implements core.MetricsRecorder
func (c *Collector) RecordTreeSync(err error) {
	c.IncrementCounter("bootlab_tree_syncs_total", 1)
	if err != nil {
		c.IncrementCounter("bootlab_tree_sync_errors_total", 1)
	}
}

// Export formats metrics in Prometheus text format
func (c *Collector) Export() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.metrics))
	for name := range c.metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		metric := c.metrics[name]

		fmt.Fprintf(&b, "# HELP %s %s\n", metric.Name, metric.Help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", metric.Name, metric.Type)

		switch metric.Type {
		case "counter", "gauge":
			fmt.Fprintf(&b, "%s %f\n", metric.Name, metric.Value)

		case "histogram":
			if metric.Histogram != nil {
				buckets := make([]float64, 0, len(metric.Histogram.Bucket))
				for bucket := range metric.Histogram.Bucket {
					buckets = append(buckets, bucket)
				}
				sort.Float64s(buckets)
				for _, bucket := range buckets {
					fmt.Fprintf(&b, "%s_bucket{le=\"%g\"} %d\n", metric.Name, bucket, metric.Histogram.Bucket[bucket])
				}
				fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", metric.Name, metric.Histogram.Count)
				fmt.Fprintf(&b, "%s_count %d\n", metric.Name, metric.Histogram.Count)
				fmt.Fprintf(&b, "%s_sum %f\n", metric.Name, metric.Histogram.Sum)
			}
		}

		b.WriteString("\n")
	}

	return b.String()
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, c.Export())
	}
}
