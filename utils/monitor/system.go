package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// SystemMonitor samples runtime health of the host process while the
// strategy loop is running.
type SystemMonitor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	metrics struct {
		memUsage    prometheus.Gauge
		goroutines  prometheus.Gauge
		heapObjects prometheus.Gauge
		heapAlloc   prometheus.Gauge
		gcPause     prometheus.Gauge
	}
	wg sync.WaitGroup
}

// NewSystemMonitor starts a sampler that refreshes its gauges every second
// until Cleanup is called or ctx is cancelled.
func NewSystemMonitor(ctx context.Context, logger *zap.Logger) (*SystemMonitor, error) {
	ctx, cancel := context.WithCancel(ctx)
	m := &SystemMonitor{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	m.metrics.memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "host_memory_usage_percent",
		Help: "Allocated heap as a percentage of memory obtained from the OS",
	})
	m.metrics.goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "host_goroutines",
		Help: "Current number of goroutines",
	})
	m.metrics.heapObjects = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "host_heap_objects",
		Help: "Current number of heap objects",
	})
	m.metrics.heapAlloc = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "host_heap_alloc_bytes",
		Help: "Current heap allocation in bytes",
	})
	m.metrics.gcPause = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "host_gc_pause_milliseconds",
		Help: "Most recent GC pause duration",
	})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.monitor()
	}()

	return m, nil
}

// Collectors returns the monitor's gauges for registration with an exporter.
func (m *SystemMonitor) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.metrics.memUsage,
		m.metrics.goroutines,
		m.metrics.heapObjects,
		m.metrics.heapAlloc,
		m.metrics.gcPause,
	}
}

func (m *SystemMonitor) monitor() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *SystemMonitor) collect() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.metrics.memUsage.Set(memoryUsage(&memStats))
	m.metrics.goroutines.Set(float64(runtime.NumGoroutine()))
	m.metrics.heapObjects.Set(float64(memStats.HeapObjects))
	m.metrics.heapAlloc.Set(float64(memStats.HeapAlloc))
	m.metrics.gcPause.Set(lastGCPauseMillis(&memStats))
}

// Snapshot returns the current readings for log output.
func (m *SystemMonitor) Snapshot() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"mem_usage":    int64(memoryUsage(&memStats)),
		"goroutines":   int64(runtime.NumGoroutine()),
		"heap_objects": int64(memStats.HeapObjects),
		"heap_alloc":   int64(memStats.HeapAlloc),
		"gc_pause":     lastGCPauseMillis(&memStats),
	}
}

// Cleanup stops the sampler and waits for it to exit.
func (m *SystemMonitor) Cleanup() error {
	m.cancel()
	m.wg.Wait()
	return nil
}

func memoryUsage(memStats *runtime.MemStats) float64 {
	if memStats.Sys == 0 {
		return 0
	}
	return float64(memStats.Alloc) / float64(memStats.Sys) * 100
}

func lastGCPauseMillis(memStats *runtime.MemStats) float64 {
	return float64(memStats.PauseNs[(memStats.NumGC+255)%256]) / float64(time.Millisecond)
}
