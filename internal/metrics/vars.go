package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrderBookSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swap_order_book_size",
		Help: "Open orders in the current snapshot after expiry filtering",
	})

	OrderFeedErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swap_order_feed_errors_total",
		Help: "Order feed fetch failures",
	})

	QuotePrice = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swap_quote_price",
		Help: "Fee-adjusted price of the selected quote (buy units per sell unit)",
	})

	GasFeeNative = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swap_gas_fee_native",
		Help: "Estimated transaction fee in native units (0 when unavailable)",
	})

	GasEstimateErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swap_gas_estimate_errors_total",
		Help: "Gas estimation failures",
	})

	TxTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swap_tx_transitions_total",
		Help: "Transaction state machine transitions",
	}, []string{"state"})

	PriceFeedErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swap_price_feed_errors_total",
		Help: "USD price feed fetch failures",
	})
)

func init() {
	prometheus.MustRegister(
		OrderBookSize,
		OrderFeedErrors,
		QuotePrice,
		GasFeeNative,
		GasEstimateErrors,
		TxTransitions,
		PriceFeedErrors,
	)
}
