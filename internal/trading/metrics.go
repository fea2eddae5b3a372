package trading

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxTradesOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papertrade_trades_opened_total",
			Help: "Trades opened",
		},
	)

	// Reasons are manual, stop_loss, target.
	mtxTradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrade_trades_closed_total",
			Help: "Trades closed split by exit reason",
		},
		[]string{"reason"},
	)

	mtxMonitorCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrade_monitor_cycles_total",
			Help: "Monitor cycles split by result",
		},
		[]string{"result"},
	)

	mtxActiveTrades = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "papertrade_active_trades",
			Help: "Trades currently tracked by the monitor",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxTradesOpened, mtxTradesClosed, mtxMonitorCycles, mtxActiveTrades)
}
