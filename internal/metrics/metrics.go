package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	ticketsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tombola",
		Subsystem: "ledger",
		Name:      "tickets",
		Help:      "Tickets currently in the ledger.",
	})

	participantsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tombola",
		Subsystem: "ledger",
		Name:      "participants",
		Help:      "Unique participants currently in the ledger.",
	})

	ledgerResets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tombola",
		Subsystem: "ledger",
		Name:      "resets_total",
		Help:      "Ledger resets by reason.",
	}, []string{"reason"})

	ticketsAdded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tombola",
		Subsystem: "ledger",
		Name:      "tickets_added_total",
		Help:      "Tickets added by source.",
	}, []string{"source"})

	skippedTickets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tombola",
		Subsystem: "ledger",
		Name:      "participant_skips_total",
		Help:      "Tickets left out of participant aggregation, by reason.",
	}, []string{"reason"})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tombola",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tombola",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"method", "path"})
)

func init() {
	Registry.MustRegister(
		ticketsTotal,
		participantsTotal,
		ledgerResets,
		ticketsAdded,
		skippedTickets,
		httpRequests,
		httpDuration,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordTicketAdded counts one ticket for source.
func RecordTicketAdded(source string, n int) {
	ticketsAdded.WithLabelValues(source).Add(float64(n))
}

// RecordSkippedTicket counts a ticket left out of participant aggregation.
func RecordSkippedTicket(reason string) {
	skippedTickets.WithLabelValues(reason).Inc()
}

// Notifier mirrors ledger events into gauges.
type Notifier struct{}

func (Notifier) TicketsUpdated(total int)      { ticketsTotal.Set(float64(total)) }
func (Notifier) ParticipantsUpdated(unique int) { participantsTotal.Set(float64(unique)) }

func (Notifier) ParticipantsReset(reason string) {
	ticketsTotal.Set(0)
	participantsTotal.Set(0)
	ledgerResets.WithLabelValues(reason).Inc()
}

// GinMiddleware records request counts and latency by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
