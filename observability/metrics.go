package observability

import (
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "meritlend",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "meritlend",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "meritlend",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// PoolMetrics wraps collectors tracking the lending pool ledger.
type PoolMetrics struct {
	totalBorrowed  prometheus.Gauge
	totalLiquidity prometheus.Gauge
	utilization    prometheus.Gauge
	lenderAPY      prometheus.Gauge
	loanOutcomes   *prometheus.CounterVec
}

// Pool exposes the metrics registry for pool ledger health.
func Pool() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			totalBorrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "meritlend",
				Subsystem: "pool",
				Name:      "total_borrowed",
				Help:      "Outstanding principal across active loans in base units.",
			}),
			totalLiquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "meritlend",
				Subsystem: "pool",
				Name:      "total_liquidity",
				Help:      "Cumulative lender deposits recorded by the ledger in base units.",
			}),
			utilization: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "meritlend",
				Subsystem: "pool",
				Name:      "utilization_bps",
				Help:      "Outstanding principal relative to total pool value in basis points.",
			}),
			lenderAPY: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "meritlend",
				Subsystem: "pool",
				Name:      "lender_apy_percent",
				Help:      "Informational lender APY derived from the utilization band.",
			}),
			loanOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "meritlend",
				Subsystem: "pool",
				Name:      "loan_outcomes_total",
				Help:      "Count of loan lifecycle transitions segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			poolRegistry.totalBorrowed,
			poolRegistry.totalLiquidity,
			poolRegistry.utilization,
			poolRegistry.lenderAPY,
			poolRegistry.loanOutcomes,
		)
	})
	return poolRegistry
}

// RecordSnapshot updates the ledger gauges from a pool snapshot.
func (m *PoolMetrics) RecordSnapshot(totalBorrowed, totalLiquidity *big.Int, utilizationBps, apyPercent uint64) {
	if m == nil {
		return
	}
	m.totalBorrowed.Set(bigToFloat(totalBorrowed))
	m.totalLiquidity.Set(bigToFloat(totalLiquidity))
	m.utilization.Set(float64(utilizationBps))
	m.lenderAPY.Set(float64(apyPercent))
}

// RecordLoanOutcome increments the lifecycle counter. Outcomes should be
// stable strings such as "issued", "repaid" or "liquidated".
func (m *PoolMetrics) RecordLoanOutcome(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.loanOutcomes.WithLabelValues(outcome).Inc()
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
