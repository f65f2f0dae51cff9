package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Words charged by pool (plan, purchased).
	WordsDeductedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "words_deducted_total",
		Help: "Words deducted from user balances, by source pool.",
	}, []string{"source"})

	DeductionsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deductions_rejected_total",
		Help: "Deductions refused for insufficient balance.",
	})

	GenerationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "generation_duration_seconds",
		Help:    "Duration of speech synthesis calls.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 60},
	})

	// Retention cleanup deletions by kind (history, blob, analytics, system_log).
	RetentionDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retention_deleted_total",
		Help: "Rows and blobs removed by the retention sweeper.",
	}, []string{"kind"})

	RetentionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "retention_failures_total",
		Help: "Per-item failures skipped by the retention sweeper.",
	})

	PaymentsReconciledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_reconciled_total",
		Help: "Payment verifications by gateway and outcome.",
	}, []string{"gateway", "outcome"})

	TwoFAAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twofa_attempts_total",
		Help: "Second-factor verification attempts by result.",
	}, []string{"result"})
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		WordsDeductedTotal,
		DeductionsRejectedTotal,
		GenerationDurationSeconds,
		RetentionDeletedTotal,
		RetentionFailuresTotal,
		PaymentsReconciledTotal,
		TwoFAAttemptsTotal,
	)
}
