package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics tracks the money and stock side effects operators alert on.
type LedgerMetrics struct {
	mirrorFailures *prometheus.CounterVec
	retractions    *prometheus.CounterVec
	inconsistent   prometheus.Counter
	payouts        *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics. A nil registerer yields a
// recorder that drops every observation.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		mirrorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_mirror_projection_failures_total",
			Help: "Expense mirror projections that failed after their payout committed.",
		}, []string{"source"}),
		retractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_mirror_retractions_total",
			Help: "Expense mirror retractions by outcome.",
		}, []string{"outcome"}),
		inconsistent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_inconsistent_positions_total",
			Help: "Stock positions that folded to a negative quantity.",
		}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_payouts_recorded_total",
			Help: "Settlement and commission payouts recorded.",
		}, []string{"source"}),
	}
	reg.MustRegister(m.mirrorFailures, m.retractions, m.inconsistent, m.payouts)
	return m
}

func (m *LedgerMetrics) IncMirrorFailure(source string) {
	if m == nil || m.mirrorFailures == nil {
		return
	}
	m.mirrorFailures.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncRetraction records a retraction outcome: removed, ambiguous, missing or failed.
func (m *LedgerMetrics) IncRetraction(outcome string) {
	if m == nil || m.retractions == nil {
		return
	}
	m.retractions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *LedgerMetrics) IncInconsistent() {
	if m == nil || m.inconsistent == nil {
		return
	}
	m.inconsistent.Inc()
}

func (m *LedgerMetrics) IncPayout(source string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(source)).Inc()
}
