package status

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are purely observational counters/gauges; nothing in the
// decision path ever reads them back.
type Metrics struct {
	Ticks          prometheus.Counter
	TickErrors     prometheus.Counter
	Fills          prometheus.Counter
	RealizedPnl    prometheus.Gauge
	MidPrice       prometheus.Gauge
	ActiveOrders   prometheus.Gauge
	HaltEvents     prometheus.Counter
	ResetEvents    prometheus.Counter
}

// NewMetrics registers every gridbot metric against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridbot_ticks_total",
			Help: "Total number of orchestrator ticks executed.",
		}),
		TickErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridbot_tick_errors_total",
			Help: "Total number of ticks that absorbed an error.",
		}),
		Fills: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridbot_fills_total",
			Help: "Total number of grid level fills detected.",
		}),
		RealizedPnl: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridbot_realized_pnl",
			Help: "Cumulative realized PnL in quote currency.",
		}),
		MidPrice: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridbot_mid_price",
			Help: "Last observed mid price.",
		}),
		ActiveOrders: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridbot_active_orders",
			Help: "Number of currently active grid levels.",
		}),
		HaltEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridbot_halt_events_total",
			Help: "Total number of Halt risk verdicts.",
		}),
		ResetEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridbot_reset_events_total",
			Help: "Total number of ResetGrid risk verdicts or drift resets.",
		}),
	}
}
