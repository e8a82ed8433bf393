package worker

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the worker. A nil *Metrics is valid and records nothing.
type Metrics struct {
	duration  *prometheus.HistogramVec
	active    prometheus.Gauge
	jobsTotal *prometheus.CounterVec
}

// NewMetrics registers the worker collectors with reg, reusing collectors that
// are already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "imgmin_worker_duration_seconds",
		Help:    "Time taken to compress one image",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	if err := reg.Register(duration); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("failed to register duration metric: %w", err)
		}
		duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	m.duration = duration

	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "imgmin_worker_active",
		Help: "1 while the worker is compressing an image",
	})
	if err := reg.Register(active); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("failed to register active metric: %w", err)
		}
		active = are.ExistingCollector.(prometheus.Gauge)
	}
	m.active = active

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgmin_worker_jobs_total",
		Help: "Total number of compression requests by status",
	}, []string{"status"})
	if err := reg.Register(jobsTotal); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("failed to register jobs metric: %w", err)
		}
		jobsTotal = are.ExistingCollector.(*prometheus.CounterVec)
	}
	m.jobsTotal = jobsTotal

	return m, nil
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) finished() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *Metrics) observe(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(status).Observe(d.Seconds())
	m.jobsTotal.WithLabelValues(status).Inc()
}
