// Package metrics exposes dispatch and scheduler counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spotcheck"

const (
	ResultOK        = "ok"
	ResultTransport = "transport"
	ResultMalformed = "malformed"
	ResultError     = "error"
)

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	drained       *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	renders       *prometheus.CounterVec
	ticks         prometheus.CounterFunc
	ruleFires     prometheus.CounterFunc
	busy          prometheus.GaugeFunc
	posts         prometheus.CounterFunc
}

// Sources feeds read-only values owned by other components. Nil funcs are
// skipped.
type Sources struct {
	Ticks     func() uint64
	RuleFires func() uint64
	Busy      func() bool
	Posts     func() uint64
}

func New(src Sources) *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.cycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_cycles_total",
		Help:      "Dispatch loop iterations.",
	})
	m.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_cycle_seconds",
		Help:      "Wall time of one dispatch cycle including fetches and render.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	m.drained = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_drained_total",
		Help:      "Event kinds handled by the dispatch loop.",
	}, []string{"kind"})
	m.fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_total",
		Help:      "Remote fetches by data kind and result.",
	}, []string{"kind", "result"})
	m.renders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "renders_total",
		Help:      "Panel renders by mode.",
	}, []string{"mode"})

	m.reg.MustRegister(m.cycles, m.cycleDuration, m.drained, m.fetches, m.renders)
	m.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if src.Ticks != nil {
		m.ticks = prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Scheduler ticks evaluated.",
		}, func() float64 { return float64(src.Ticks()) })
		m.reg.MustRegister(m.ticks)
	}
	if src.RuleFires != nil {
		m.ruleFires = prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_rule_fires_total",
			Help:      "Rule firings across all rules.",
		}, func() float64 { return float64(src.RuleFires()) })
		m.reg.MustRegister(m.ruleFires)
	}
	if src.Busy != nil {
		m.busy = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_busy",
			Help:      "1 while any work holds the board busy.",
		}, func() float64 {
			if src.Busy() {
				return 1
			}
			return 0
		})
		m.reg.MustRegister(m.busy)
	}
	if src.Posts != nil {
		m.posts = prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_posted_total",
			Help:      "Accepted posts to the event channel.",
		}, func() float64 { return float64(src.Posts()) })
		m.reg.MustRegister(m.posts)
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) Drained(kind string) { m.drained.WithLabelValues(kind).Inc() }

func (m *Metrics) Fetch(kind, result string) { m.fetches.WithLabelValues(kind, result).Inc() }

func (m *Metrics) Render(full bool) {
	mode := "partial"
	if full {
		mode = "full"
	}
	m.renders.WithLabelValues(mode).Inc()
}
