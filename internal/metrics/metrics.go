package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	InvoicesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collections_invoices_stored_total",
		Help: "Invoices recorded in the local ledger.",
	})
	PaymentsMarked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collections_payments_marked_total",
		Help: "Invoices marked paid.",
	})
	RemindersSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collections_reminders_sent_total",
		Help: "Reminder sends recorded against the ledger.",
	})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collections_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(InvoicesStored, PaymentsMarked, RemindersSent, HTTPRequests)
}
