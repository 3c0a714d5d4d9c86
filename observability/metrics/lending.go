package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics tracks lending engine activity.
type LendingMetrics struct {
	operations   *prometheus.CounterVec
	liquidations *prometheus.CounterVec
	utilization  *prometheus.GaugeVec
	borrowRate   *prometheus.GaugeVec
	flashVolume  *prometheus.CounterVec
	reentries    prometheus.Counter
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the process-wide lending metrics registry.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of lending operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Count of successful liquidations by repay reserve.",
			}, []string{"reserve"}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lending",
				Subsystem: "reserve",
				Name:      "utilization_ratio",
				Help:      "Reserve utilisation observed at the last refresh.",
			}, []string{"reserve"}),
			borrowRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lending",
				Subsystem: "reserve",
				Name:      "borrow_rate_apr",
				Help:      "Reserve borrow APR observed at the last refresh.",
			}, []string{"reserve"}),
			flashVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "flash_loan",
				Name:      "volume_total",
				Help:      "Liquidity lent through repaid flash loans, in token base units.",
			}, []string{"reserve"}),
			reentries: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lending",
				Subsystem: "engine",
				Name:      "reentry_rejections_total",
				Help:      "Count of operations rejected because a reserve was already locked.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.liquidations,
			lendingRegistry.utilization,
			lendingRegistry.borrowRate,
			lendingRegistry.flashVolume,
			lendingRegistry.reentries,
		)
	})
	return lendingRegistry
}

func label(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}

// ObserveOperation records the outcome of one engine operation.
func (m *LendingMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(label(operation), outcome).Inc()
}

// ObserveLiquidation counts a completed liquidation against the repay reserve.
func (m *LendingMetrics) ObserveLiquidation(reserve string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(label(reserve)).Inc()
}

// SetReserveRates publishes the utilisation and APR of a refreshed reserve.
func (m *LendingMetrics) SetReserveRates(reserve string, utilization, borrowRate float64) {
	if m == nil {
		return
	}
	reserve = label(reserve)
	m.utilization.WithLabelValues(reserve).Set(utilization)
	m.borrowRate.WithLabelValues(reserve).Set(borrowRate)
}

// AddFlashLoanVolume adds a repaid flash loan amount.
func (m *LendingMetrics) AddFlashLoanVolume(reserve string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.flashVolume.WithLabelValues(label(reserve)).Add(amount)
}

// IncReentryRejected counts a reentrancy rejection.
func (m *LendingMetrics) IncReentryRejected() {
	if m == nil {
		return
	}
	m.reentries.Inc()
}
