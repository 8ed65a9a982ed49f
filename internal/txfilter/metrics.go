package txfilter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reqtx/internal/errs"
)

const (
	outcomeBegun          = "begun"
	outcomeBeginFailed    = "begin_failed"
	outcomeCommitted      = "committed"
	outcomeCommitFailed   = "commit_failed"
	outcomeRolledBack     = "rolled_back"
	outcomeRollbackFailed = "rollback_failed"

	// span-only outcome: the error path found no active transaction
	outcomeRollbackSkipped = "rollback_skipped"
)

// Metrics counts transaction outcomes. A nil *Metrics records nothing.
type Metrics struct {
	transactions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqtx_transactions_total",
				Help: "Request transactions by lifecycle outcome",
			},
			[]string{"outcome", "isolation_level"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reqtx_transaction_duration_seconds",
				Help:    "Time from transaction begin to commit or rollback",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"outcome"},
		),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.transactions, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, errs.Wrap(err, "register transaction metrics")
		}
	}
	return m, nil
}

func (m *Metrics) count(outcome string, isolation string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome, isolation).Inc()
}

func (m *Metrics) observe(outcome string, isolation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome, isolation).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
