package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConfirmDuration tracks the latency of payment confirmations
	ConfirmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "aeonpay_payment_confirm_duration_seconds",
			Help: "Duration of payment confirmation requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"status"}, // success or failed
	)

	// RedemptionLegs counts voucher redemption legs by result
	RedemptionLegs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeonpay_voucher_redemption_legs_total",
			Help: "Voucher redemption legs processed, by result",
		},
		[]string{"result"}, // success or failed
	)

	// MandateExecutions counts mandate execution attempts by outcome
	MandateExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeonpay_mandate_executions_total",
			Help: "Mandate execution attempts, by outcome",
		},
		[]string{"outcome"}, // success, failed or cap_exceeded
	)

	// IdempotentReplays counts responses served from the idempotency store
	IdempotentReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aeonpay_idempotent_replays_total",
			Help: "Responses replayed from the idempotency store",
		},
	)
)

// RecordConfirmDuration records the duration of a payment confirmation
func RecordConfirmDuration(status string, duration float64) {
	ConfirmDuration.WithLabelValues(status).Observe(duration)
}

// RecordRedemptionLeg counts one redemption leg
func RecordRedemptionLeg(result string) {
	RedemptionLegs.WithLabelValues(result).Inc()
}

// RecordMandateExecution counts one execution attempt
func RecordMandateExecution(outcome string) {
	MandateExecutions.WithLabelValues(outcome).Inc()
}

// RecordIdempotentReplay counts one replayed response
func RecordIdempotentReplay() {
	IdempotentReplays.Inc()
}
