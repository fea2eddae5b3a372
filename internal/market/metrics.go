package market

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papertrade_price_resolutions_total",
			Help: "Successful price resolutions split by tier",
		},
		[]string{"tier"},
	)

	mtxResolutionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papertrade_price_resolution_failures_total",
			Help: "Resolutions where every tier was exhausted",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxResolutions, mtxResolutionFailures)
}
