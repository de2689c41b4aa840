package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RelayPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_relay_published_total",
			Help: "Total number of relay rows published and confirmed by the broker.",
		},
		[]string{"relay"},
	)

	RelayPublishFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_relay_publish_failures_total",
			Help: "Total number of per-row publish failures left for retry.",
		},
		[]string{"relay"},
	)

	RelayCycleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_relay_cycle_errors_total",
			Help: "Total number of relay cycles rolled back by a storage error.",
		},
		[]string{"relay"},
	)

	RelayStaleRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_relay_stale_rows_total",
			Help: "Total number of leased rows older than the configured stale age.",
		},
		[]string{"relay"},
	)

	ConsumerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_consumer_messages_total",
			Help: "Total number of consumed messages by queue and outcome.",
		},
		[]string{"queue", "outcome"}, // acked, duplicate, requeued, dropped
	)

	PushDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_push_deliveries_total",
			Help: "Total number of push sink calls by status.",
		},
		[]string{"status"}, // sent, failed, duplicate
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		RelayPublishedTotal,
		RelayPublishFailuresTotal,
		RelayCycleErrorsTotal,
		RelayStaleRowsTotal,
		ConsumerMessagesTotal,
		PushDeliveriesTotal,
	)
}

// RecordRelayPublished increments the confirmed-publish counter for a relay.
func RecordRelayPublished(relay string, n int) {
	RelayPublishedTotal.WithLabelValues(relay).Add(float64(n))
}

// RecordRelayPublishFailure increments the per-row failure counter for a relay.
func RecordRelayPublishFailure(relay string) {
	RelayPublishFailuresTotal.WithLabelValues(relay).Inc()
}

// RecordRelayCycleError increments the rolled-back cycle counter for a relay.
func RecordRelayCycleError(relay string) {
	RelayCycleErrorsTotal.WithLabelValues(relay).Inc()
}

// RecordRelayStaleRow increments the stale-row counter for a relay.
func RecordRelayStaleRow(relay string) {
	RelayStaleRowsTotal.WithLabelValues(relay).Inc()
}

// RecordConsumerMessage increments the consumed-message counter for a queue.
func RecordConsumerMessage(queue, outcome string) {
	ConsumerMessagesTotal.WithLabelValues(queue, outcome).Inc()
}

// RecordPushDelivery increments the push sink counter for a status.
func RecordPushDelivery(status string) {
	PushDeliveriesTotal.WithLabelValues(status).Inc()
}
