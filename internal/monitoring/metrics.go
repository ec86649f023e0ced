package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Lifecycle metrics
	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeguard_intents_total",
			Help: "Intents by terminal outcome",
		},
		[]string{"symbol", "outcome"},
	)

	guardFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeguard_guard_failures_total",
			Help: "Guard chain failures by guard name",
		},
		[]string{"guard"},
	)

	// Position metrics
	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeguard_open_positions",
			Help: "Number of currently open positions",
		},
	)

	stopAdjustmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeguard_stop_adjustments_total",
			Help: "Trailing stop adjustments",
		},
		[]string{"symbol"},
	)

	realizedPnL = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeguard_realized_pnl",
			Help:    "Distribution of realized PnL per closed position",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"symbol"},
	)

	// Policy metrics
	dailyLossPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeguard_daily_loss_percent",
			Help: "Realized daily loss as percent of starting capital",
		},
	)

	monthlyDrawdownPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeguard_monthly_drawdown_percent",
			Help: "Realized monthly drawdown as percent of starting capital",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeguard_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(intentsTotal)
	prometheus.MustRegister(guardFailuresTotal)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(stopAdjustmentsTotal)
	prometheus.MustRegister(realizedPnL)
	prometheus.MustRegister(dailyLossPercent)
	prometheus.MustRegister(monthlyDrawdownPercent)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordIntent records a terminal intent outcome.
func RecordIntent(symbol, outcome string) {
	intentsTotal.WithLabelValues(symbol, outcome).Inc()
}

// RecordGuardFailure records one failing guard.
func RecordGuardFailure(guard string) {
	guardFailuresTotal.WithLabelValues(guard).Inc()
}

// SetOpenPositions updates the open position gauge.
func SetOpenPositions(n int) {
	openPositions.Set(float64(n))
}

// RecordStopAdjustment records one trailing stop move.
func RecordStopAdjustment(symbol string) {
	stopAdjustmentsTotal.WithLabelValues(symbol).Inc()
}

// RecordClose records the realized result of a closed position.
func RecordClose(symbol string, pnl float64) {
	realizedPnL.WithLabelValues(symbol).Observe(pnl)
}

// SetPolicyLevels updates the loss gauges.
func SetPolicyLevels(daily, monthly float64) {
	dailyLossPercent.Set(daily)
	monthlyDrawdownPercent.Set(monthly)
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
