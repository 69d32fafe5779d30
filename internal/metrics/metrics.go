// Package metrics exposes the Prometheus counters and gauges spec.md
// section 7 requires ("every recovered error increments a counter").
//
// Grounded on `chidi150c-coinbase/metrics.go` (flat package-level
// `prometheus.NewCounterVec`/`NewGauge` declarations with small
// labeled helper setters) and
// `svyatogor45-abitrage/internal/bot/metrics.go` (the `promauto`
// registration idiom, used here instead of the teacher's
// `prometheus.MustRegister` calls in `init()` since `promauto` is the
// more idiomatic form the corpus also reaches for and avoids an explicit
// init-order dependency).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecoveredErrors counts every error the epoch driver recovers from
	// locally, labeled by taxonomy member (spec.md section 7).
	RecoveredErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glftmm",
			Subsystem: "core",
			Name:      "recovered_errors_total",
			Help:      "Errors recovered locally by the epoch driver, by taxonomy member.",
		},
		[]string{"kind"},
	)

	// FillsTotal counts confirmed fills by side.
	FillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glftmm",
			Subsystem: "core",
			Name:      "fills_total",
			Help:      "Confirmed fills by side.",
		},
		[]string{"side"},
	)

	// WithdrawalsTotal counts risk-gate withdrawals by reason.
	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glftmm",
			Subsystem: "riskgate",
			Name:      "withdrawals_total",
			Help:      "Risk gate withdrawals, by reason.",
		},
		[]string{"reason"},
	)

	// Inventory is the current signed inventory in base units.
	Inventory = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "glftmm",
			Subsystem: "core",
			Name:      "inventory_base_units",
			Help:      "Current signed inventory in base-asset units.",
		},
	)

	// EquityUSD is the current mark-to-market equity.
	EquityUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "glftmm",
			Subsystem: "core",
			Name:      "equity_usd",
			Help:      "Current mark-to-market equity in quote currency.",
		},
	)

	// KappaStaleCount tracks the live kappa provider's consecutive
	// calibration-failure streak.
	KappaStaleCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "glftmm",
			Subsystem: "kappa",
			Name:      "stale_streak",
			Help:      "Consecutive live kappa calibration failures.",
		},
	)
)

// RecordRecoveredError increments the recovered-error counter for one
// taxonomy member.
func RecordRecoveredError(kind string) { RecoveredErrors.WithLabelValues(kind).Inc() }

// RecordFill increments the fills counter for one side.
func RecordFill(side string) { FillsTotal.WithLabelValues(side).Inc() }

// RecordWithdrawal increments the withdrawals counter for one reason.
func RecordWithdrawal(reason string) { WithdrawalsTotal.WithLabelValues(reason).Inc() }
