// Package metrics exports engine observations as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "updown"

// Collector implements ports.Metrics on a private registry.
type Collector struct {
	reg *prometheus.Registry

	ticks         prometheus.Counter
	decisions     *prometheus.CounterVec
	probability   prometheus.Gauge
	edge          *prometheus.GaugeVec
	volatility    prometheus.Gauge
	imbalance     prometheus.Gauge
	openPosition  prometheus.Gauge
	closed        *prometheus.CounterVec
	pnl           prometheus.Histogram
	queueDepth    prometheus.Gauge
	eventsWritten *prometheus.CounterVec
	configReloads *prometheus.CounterVec
	redemptions   *prometheus.CounterVec
	feedMessages  *prometheus.CounterVec
}

// NewCollector creates and registers all collectors, plus the Go runtime ones.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		reg: reg,
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Decision ticks evaluated",
		}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Gatekeeper outcomes by reason",
		}, []string{"outcome"}),
		probability: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probability_up",
			Help:      "Latest fair probability of the UP outcome",
		}),
		edge: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edge",
			Help:      "Latest net edge per side",
		}, []string{"side"}),
		volatility: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "volatility_per_minute",
			Help:      "Volatility estimate in USD per minute",
		}),
		imbalance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "order_book_imbalance",
			Help:      "Reference exchange bid/ask volume ratio",
		}),
		openPosition: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_position",
			Help:      "1 while a position is open",
		}),
		closed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_closed_total",
			Help:      "Closed positions by final status",
		}, []string{"status"}),
		pnl: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "realized_pnl_ratio",
			Help:      "Realized pnl per closed position, as a fraction of the stake",
			Buckets:   []float64{-1, -0.5, -0.35, -0.15, 0, 0.15, 0.5, 1, 2},
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "persistence_queue_depth",
			Help:      "Trade events waiting to be written",
		}),
		eventsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_written_total",
			Help:      "Trade events written to the log",
		}, []string{"result"}),
		configReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Runtime config reloads",
		}, []string{"result"}),
		redemptions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Relay redemptions submitted",
		}, []string{"result"}),
		feedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_messages_total",
			Help:      "Streaming feed messages by kind",
		}, []string{"kind"}),
	}
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Tick() { c.ticks.Inc() }
func (c *Collector) Decision(outcome string) { c.decisions.WithLabelValues(outcome).Inc() }
func (c *Collector) Probability(p float64) { c.probability.Set(p) }
func (c *Collector) Edge(side string, e float64) {
	c.edge.WithLabelValues(side).Set(e)
}
func (c *Collector) Volatility(perMin float64) { c.volatility.Set(perMin) }
func (c *Collector) Imbalance(obi float64) { c.imbalance.Set(obi) }

func (c *Collector) OpenPosition(open bool) {
	if open {
		c.openPosition.Set(1)
		return
	}
	c.openPosition.Set(0)
}

func (c *Collector) PositionClosed(status string, pnl float64) {
	c.closed.WithLabelValues(status).Inc()
	c.pnl.Observe(pnl)
}

func (c *Collector) QueueDepth(n int) { c.queueDepth.Set(float64(n)) }
func (c *Collector) EventWritten(ok bool) { c.eventsWritten.WithLabelValues(result(ok)).Inc() }
func (c *Collector) ConfigReload(ok bool) { c.configReloads.WithLabelValues(result(ok)).Inc() }
func (c *Collector) Redemption(ok bool) { c.redemptions.WithLabelValues(result(ok)).Inc() }
func (c *Collector) FeedMessage(kind string) { c.feedMessages.WithLabelValues(kind).Inc() }

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
