package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the mutation pipeline.
type Metrics struct {
	MutationsDispatched  *prometheus.CounterVec
	HandlerFailures      *prometheus.CounterVec
	DispatchDuration     prometheus.Histogram
	NotificationsCreated prometheus.Counter
	NotificationsMerged  prometheus.Counter
	HistoryRowsWritten   prometheus.Counter
	DigestEmailsSent     prometheus.Counter
	DigestFailures       prometheus.Counter
}

// New creates and registers all pipeline metrics on the default registerer.
func New() *Metrics {
	return newWith(prometheus.DefaultRegisterer)
}

// NewForTest registers on a private registry so parallel tests do not
// collide on metric names.
func NewForTest() *Metrics {
	return newWith(prometheus.NewRegistry())
}

func newWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MutationsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linventaire_mutations_dispatched_total",
			Help: "Mutations dispatched through the trigger engine, by record type and operation.",
		}, []string{"record_type", "operation"}),
		HandlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linventaire_trigger_handler_failures_total",
			Help: "Trigger handler effects that returned an error, by handler name.",
		}, []string{"handler"}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "linventaire_dispatch_duration_seconds",
			Help:    "Wall time of a full top-level dispatch, nested writes included.",
			Buckets: prometheus.DefBuckets,
		}),
		NotificationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "linventaire_notifications_created_total",
			Help: "Notification rows inserted.",
		}),
		NotificationsMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "linventaire_notifications_merged_total",
			Help: "Notification events merged into an existing unread row.",
		}),
		HistoryRowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "linventaire_history_rows_total",
			Help: "Audit history snapshots written.",
		}),
		DigestEmailsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "linventaire_digest_emails_sent_total",
			Help: "Digest e-mails successfully handed to the sender.",
		}),
		DigestFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "linventaire_digest_failures_total",
			Help: "Digest batches whose compose or send failed. The batch is still cleared.",
		}),
	}
}
