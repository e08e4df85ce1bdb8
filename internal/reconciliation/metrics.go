package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileEscrowMismatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "p2pescrow",
		Subsystem: "reconciliation",
		Name:      "escrow_mismatches",
		Help:      "Wallets whose locked balance differs from open trades in the last run.",
	})

	reconcileJournalMismatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "p2pescrow",
		Subsystem: "reconciliation",
		Name:      "journal_mismatches",
		Help:      "Assets whose wallet totals differ from the journal in the last run.",
	})

	reconcileLastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "p2pescrow",
		Subsystem: "reconciliation",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last completed reconciliation run.",
	})

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "p2pescrow",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "p2pescrow",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation check errors.",
	})
)

func init() {
	prometheus.MustRegister(
		reconcileEscrowMismatches,
		reconcileJournalMismatches,
		reconcileLastRun,
		reconcileDuration,
		reconcileErrors,
	)
}
