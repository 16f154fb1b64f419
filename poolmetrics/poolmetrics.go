package poolmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/helioptic/kernelpool"
)

// Metrics exposes pool lifecycle events as Prometheus series. It
// implements the pool's Observer; attach it through Config.Observer.
type Metrics struct {
	loads          *prometheus.CounterVec
	loadFailures   *prometheus.CounterVec
	unloads        *prometheus.CounterVec
	unloadFailures *prometheus.CounterVec
	kernelsLoaded  prometheus.Gauge
}

var _ kernelpool.Observer = (*Metrics)(nil)
var _ prometheus.Collector = (*Metrics)(nil)

// New creates the metric set and registers it with reg when reg is not
// nil. Kernel paths become a label, which stays bounded because a pool
// manages a fixed kernel list.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernelpool",
			Name:      "loads_total",
			Help:      "Kernel loads completed successfully.",
		}, []string{"kernel"}),
		loadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernelpool",
			Name:      "load_failures_total",
			Help:      "Kernel loads rejected by the toolkit.",
		}, []string{"kernel"}),
		unloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernelpool",
			Name:      "unloads_total",
			Help:      "Kernel unloads completed successfully.",
		}, []string{"kernel"}),
		unloadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernelpool",
			Name:      "unload_failures_total",
			Help:      "Kernel unloads rejected by the toolkit.",
		}, []string{"kernel"}),
		kernelsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kernelpool",
			Name:      "kernels_loaded",
			Help:      "Kernels currently loaded through observed pools.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m)
	}
	return m
}

// OnKernelEvent updates the series for one pool event.
func (m *Metrics) OnKernelEvent(e kernelpool.Event) {
	switch e.Type {
	case kernelpool.EventLoaded:
		m.loads.WithLabelValues(e.Kernel).Inc()
		m.kernelsLoaded.Inc()
	case kernelpool.EventLoadFailed:
		m.loadFailures.WithLabelValues(e.Kernel).Inc()
	case kernelpool.EventUnloaded:
		m.unloads.WithLabelValues(e.Kernel).Inc()
		m.kernelsLoaded.Dec()
	case kernelpool.EventUnloadFailed:
		m.unloadFailures.WithLabelValues(e.Kernel).Inc()
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.loads.Describe(ch)
	m.loadFailures.Describe(ch)
	m.unloads.Describe(ch)
	m.unloadFailures.Describe(ch)
	m.kernelsLoaded.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.loads.Collect(ch)
	m.loadFailures.Collect(ch)
	m.unloads.Collect(ch)
	m.unloadFailures.Collect(ch)
	m.kernelsLoaded.Collect(ch)
}
