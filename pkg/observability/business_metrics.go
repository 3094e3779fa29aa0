package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Purchase outcome metrics
	purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_process_total",
		Help: "Total number of purchase process commands by final state",
	}, []string{
		"site_id",
		"command", // process, complete_threed
		"state",   // processed, pending, pending_third_party, blocked, aborted, error
	})

	purchaseProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "purchase_process_duration_seconds",
		Help: "End-to-end time of a purchase process command",
		// Cascades over several billers can take tens of seconds
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{
		"command",
		"state",
	})

	// Transaction attempt metrics
	transactionAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_transaction_attempts_total",
		Help: "Total number of transaction attempts against billers",
	}, []string{
		"biller",
		"payment_type", // cc, checks, ewallet
		"item_type",    // main, cross_sale
		"state",        // approved, declined, aborted, pending
		"rerouted",     // true when a bin routing fallback row was used
	})

	fraudBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_fraud_blocks_total",
		Help: "Purchases blocked by fraud advice",
	}, []string{
		"site_id",
		"reason", // blacklist, captcha
	})

	duplicateRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchase_duplicate_requests_total",
		Help: "Commands rejected because an attempt for the same session was in flight",
	})

	// Degraded collaborator calls (fail-open paths)
	degradedCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_degraded_calls_total",
		Help: "Collaborator failures absorbed with a safe default",
	}, []string{
		"collaborator", // fraud_advice, bin_routing, blacklist, idempotency_store
	})

	// Postback delivery metrics
	postbackDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postback_deliveries_total",
		Help: "Total postback delivery attempts",
	}, []string{
		"event_type",
		"status", // success, failed
	})

	postbackDeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postback_delivery_duration_seconds",
		Help:    "Time to deliver postback",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{
		"event_type",
	})

	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_events_published_total",
		Help: "Analytics events written to the broker",
	}, []string{
		"event_type",
		"status", // success, failed, dropped
	})
)

// RecordPurchase records the outcome of one purchase command
func RecordPurchase(siteID, command, state string, duration float64) {
	purchasesTotal.WithLabelValues(siteID, command, state).Inc()
	purchaseProcessingDuration.WithLabelValues(command, state).Observe(duration)
}

// RecordTransactionAttempt records one attempt against a biller
func RecordTransactionAttempt(biller, paymentType, itemType, state string, rerouted bool) {
	r := "false"
	if rerouted {
		r = "true"
	}
	transactionAttemptsTotal.WithLabelValues(biller, paymentType, itemType, state, r).Inc()
}

// RecordFraudBlock records a purchase stopped by fraud advice
func RecordFraudBlock(siteID, reason string) {
	fraudBlocksTotal.WithLabelValues(siteID, reason).Inc()
}

// RecordDuplicateRequest records a command rejected by the idempotency marker
func RecordDuplicateRequest() {
	duplicateRequestsTotal.Inc()
}

// RecordDegradedCall records a collaborator failure that was absorbed
func RecordDegradedCall(collaborator string) {
	degradedCallsTotal.WithLabelValues(collaborator).Inc()
}

// RecordPostbackDelivery records postback delivery
func RecordPostbackDelivery(eventType, status string, duration float64) {
	postbackDeliveriesTotal.WithLabelValues(eventType, status).Inc()
	postbackDeliveryDuration.WithLabelValues(eventType).Observe(duration)
}

// RecordEventPublished records an analytics event publish result
func RecordEventPublished(eventType, status string) {
	eventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}
