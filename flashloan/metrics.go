package flashloan

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type coreMetrics struct {
	loans        prometheus.Counter
	withdrawals  prometheus.Counter
	volume       prometheus.Counter
	activeOps    prometheus.Gauge
	stateGauge   prometheus.Gauge
	latency      prometheus.Histogram
	successRate  prometheus.Gauge
	successCount prometheus.Counter
	totalCount   prometheus.Counter
	errors       *prometheus.CounterVec
}

func newCoreMetrics() *coreMetrics {
	return &coreMetrics{
		loans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashloan_loans_total",
			Help: "Number of completed flash loan units",
		}),
		withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashloan_withdrawals_total",
			Help: "Number of completed withdrawals",
		}),
		volume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashloan_volume_units",
			Help: "Total borrowed volume in smallest asset units",
		}),
		activeOps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flashloan_active_operations",
			Help: "Number of operations currently inside their atomic unit",
		}),
		stateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flashloan_state",
			Help: "Current core state",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flashloan_operation_latency_seconds",
			Help:    "Latency of flash loan operations",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		successRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flashloan_success_rate",
			Help: "Fraction of atomic units that committed",
		}),
		successCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashloan_success_count",
			Help: "Number of atomic units that committed",
		}),
		totalCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashloan_total_count",
			Help: "Number of atomic units attempted",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flashloan_errors_total",
			Help: "Number of failures by terminal cause",
		}, []string{"cause"}),
	}
}

func (m *coreMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.loans,
		m.withdrawals,
		m.volume,
		m.activeOps,
		m.stateGauge,
		m.latency,
		m.successRate,
		m.successCount,
		m.totalCount,
		m.errors,
	}
}

func (m *coreMetrics) fail(cause string) {
	m.errors.WithLabelValues(cause).Inc()
}

// observeSuccess records one finished unit and refreshes the success-rate
// gauge from the live counter values.
func (m *coreMetrics) observeSuccess(committed bool) {
	m.totalCount.Inc()
	if committed {
		m.successCount.Inc()
	}

	success := readCounter(m.successCount)
	total := readCounter(m.totalCount)
	if total > 0 {
		m.successRate.Set(success / total)
	}
}

// readCounter extracts the current value of a counter through its metric
// protobuf, the same way the scrape path sees it.
func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil || m.Counter == nil || m.Counter.Value == nil {
		return 0
	}
	return *m.Counter.Value
}
