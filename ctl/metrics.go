package ctl

import (
	"bytes"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics is the connection/fid/request counters exposed through the
// tree's "stats" file, grounded on
// runZeroInc-conniver/pkg/exporter/exporter.go's Describe/Collect
// Collector pattern. It is an independent prometheus.Registry, not the
// global default one, so embedding a 9P server into a larger process
// never collides with that process's own /metrics.
type Metrics struct {
	reg *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	activeConns   prometheus.Gauge
	activeFids    prometheus.Gauge

	connCount int64
	fidCount  int64
}

// NewMetrics constructs and registers the counter set.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mini9p",
			Name:      "requests_total",
			Help:      "Fcalls dispatched, by message type.",
		}, []string{"type"}),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mini9p",
			Name:      "active_connections",
			Help:      "Currently accepted connections.",
		}),
		activeFids: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mini9p",
			Name:      "active_fids",
			Help:      "Currently live fids across all connections.",
		}),
	}
	m.reg.MustRegister(m.requestsTotal, m.activeConns, m.activeFids)
	return m
}

// IncRequest records one dispatched fcall under the given lowercase
// operation name (e.g. "attach", "walk").
func (m *Metrics) IncRequest(msgType string) {
	m.requestsTotal.WithLabelValues(msgType).Inc()
}

// ConnOpened/ConnClosed track the connection gauge.
func (m *Metrics) ConnOpened() {
	atomic.AddInt64(&m.connCount, 1)
	m.activeConns.Set(float64(atomic.LoadInt64(&m.connCount)))
}

func (m *Metrics) ConnClosed() {
	atomic.AddInt64(&m.connCount, -1)
	m.activeConns.Set(float64(atomic.LoadInt64(&m.connCount)))
}

// FidOpened/FidClosed track the fid gauge.
func (m *Metrics) FidOpened() {
	atomic.AddInt64(&m.fidCount, 1)
	m.activeFids.Set(float64(atomic.LoadInt64(&m.fidCount)))
}

func (m *Metrics) FidClosed() {
	atomic.AddInt64(&m.fidCount, -1)
	m.activeFids.Set(float64(atomic.LoadInt64(&m.fidCount)))
}

// Render dumps every registered metric family as Prometheus text
// exposition format, the content of the tree's "stats" file. This
// reuses expfmt rather than hand-rolling the exposition grammar,
// matching how the rest of the ecosystem renders a Gatherer without a
// net/http handler attached to it.
func (m *Metrics) Render(interface{}) string {
	mfs, err := m.reg.Gather()
	if err != nil {
		return "# error gathering metrics: " + err.Error() + "\n"
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			buf.WriteString("# error encoding " + mf.GetName() + ": " + err.Error() + "\n")
		}
	}
	return buf.String()
}
