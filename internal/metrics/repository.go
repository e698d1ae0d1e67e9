package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Options configures the repository metrics collectors.
type Options struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
	Buckets    []float64
}

// RepositoryMetrics exposes Prometheus collectors for repository operations.
type RepositoryMetrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewRepositoryMetrics constructs collectors for repository operations and
// registers them with the provided registerer. Collectors that are already
// registered are reused.
func NewRepositoryMetrics(opts Options) (*RepositoryMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "revstore"
	}

	subsystem := opts.Subsystem
	if subsystem == "" {
		subsystem = "repository"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "operations_total",
		Help:      "Total number of repository operations partitioned by table, operation and outcome.",
	}, []string{"table", "op", "outcome"})

	if err := reg.Register(operations); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register operations collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing operations collector has unexpected type %T", already.ExistingCollector)
		}
		operations = existing
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "operation_duration_seconds",
		Help:      "Histogram of repository operation latencies in seconds partitioned by table and operation.",
		Buckets:   buckets,
	}, []string{"table", "op"})

	if err := reg.Register(duration); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register duration collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("existing duration collector has unexpected type %T", already.ExistingCollector)
		}
		duration = existing
	}

	return &RepositoryMetrics{Operations: operations, Duration: duration}, nil
}

// ObserveOperation records one finished repository operation.
func (m *RepositoryMetrics) ObserveOperation(table, op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Operations.WithLabelValues(table, op, outcome).Inc()
	m.Duration.WithLabelValues(table, op).Observe(elapsed.Seconds())
}
