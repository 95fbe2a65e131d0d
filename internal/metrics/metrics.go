package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
)

// Ledger
var (
	LedgerMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_mutations_total",
			Help: "Credit ledger mutations by transaction type and outcome",
		},
		[]string{"type", "outcome"},
	)
)

// Cost calculation
var (
	CostCalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cost_calculations_total",
			Help: "Cost calculations by cost mode and outcome",
		},
		[]string{"mode", "outcome"},
	)
)

// Credit monitor
var (
	CreditMonitorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_monitor_runs_total",
			Help: "Credit monitor sweeps by status",
		},
		[]string{"status"},
	)

	CreditMonitorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "credit_monitor_duration_seconds",
			Help:    "Duration of credit monitor sweeps",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

// Billing and webhooks
var (
	InvoiceGenerationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_generation_total",
			Help: "Monthly invoice generation attempts by outcome",
		},
		[]string{"outcome"},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// Message router
var (
	MessagesHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_handled_total",
			Help: "Queue messages handled by handler and outcome",
		},
		[]string{"handler", "outcome"},
	)

	MessagesPoisonedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_poisoned_total",
			Help: "Messages moved to the dead letter queue after exhausting retries",
		},
		[]string{"topic"},
	)
)

// Outcome maps an error to the success or failure label
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Handler exposes the default registry for scraping
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
