// Package metrics holds the billing core's Prometheus and OpenTelemetry
// instruments.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the identifying labels stamped onto every instrument.
type Config struct {
	ServiceName string
	Environment string
}

// BillingMetrics counts the decisions the billing core makes: eligibility
// gate failures, item transitions, budget blocks, and invoice operations.
type BillingMetrics struct {
	eligibilityFailures *prometheus.CounterVec
	itemTransitions     *prometheus.CounterVec
	budgetBlocks        *prometheus.CounterVec
	invoiceOperations   *prometheus.CounterVec
	invoiceLineItems    prometheus.Counter
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the process-wide billing metrics.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig returns the process-wide billing metrics, registering
// them on first use.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest clears the singleton between test registries.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "casebill"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	eligibilityFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "casebill_eligibility_failures_total",
			Help:        "Eligibility gate failures by reason.",
			ConstLabels: constLabels,
		},
		[]string{"reason"},
	)

	itemTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "casebill_billing_item_transitions_total",
			Help:        "Billing item lifecycle transitions by resulting status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	budgetBlocks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "casebill_budget_blocks_total",
			Help:        "Approvals blocked by a hard budget cap, by scope.",
			ConstLabels: constLabels,
		},
		[]string{"scope"},
	)

	invoiceOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "casebill_invoice_operations_total",
			Help:        "Invoice generate and void operations by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"operation", "outcome"},
	)

	invoiceLineItems := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "casebill_invoice_line_items_total",
			Help:        "Invoice line items materialized from approved billing items.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		eligibilityFailures,
		itemTransitions,
		budgetBlocks,
		invoiceOperations,
		invoiceLineItems,
	)

	return &BillingMetrics{
		eligibilityFailures: eligibilityFailures,
		itemTransitions:     itemTransitions,
		budgetBlocks:        budgetBlocks,
		invoiceOperations:   invoiceOperations,
		invoiceLineItems:    invoiceLineItems,
	}
}

// EligibilityFailure records one gate failure.
func (m *BillingMetrics) EligibilityFailure(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.eligibilityFailures.WithLabelValues(reason).Inc()
}

// ItemTransition records one lifecycle transition.
func (m *BillingMetrics) ItemTransition(status string) {
	if m == nil {
		return
	}
	m.itemTransitions.WithLabelValues(status).Inc()
}

// BudgetBlock records one hard-cap rejection.
func (m *BillingMetrics) BudgetBlock(scope string) {
	if m == nil {
		return
	}
	if scope == "" {
		scope = "case"
	}
	m.budgetBlocks.WithLabelValues(scope).Inc()
}

// InvoiceOperation records a generate or void outcome.
func (m *BillingMetrics) InvoiceOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.invoiceOperations.WithLabelValues(operation, outcome).Inc()
}

// InvoiceLines adds to the materialized line item count.
func (m *BillingMetrics) InvoiceLines(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invoiceLineItems.Add(float64(count))
}
