package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "strikedesk"

var (
	once sync.Once

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings placed with the booking service, by booking type.",
		},
		[]string{"booking_type"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Lifecycle transitions attempted, by target status and result.",
		},
		[]string{"status", "result"},
	)

	sweepCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_completed_total",
			Help:      "Active bookings completed by the expiry sweep.",
		},
	)

	lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "customer_lookups_total",
			Help:      "Customer lookups by resolved customer type.",
		},
		[]string{"result"},
	)

	availabilityFallback = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_fallback_total",
			Help:      "Availability fetches that failed and fell back to all-available.",
		},
	)

	serviceRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "service_request_duration_seconds",
			Help:      "Latency of booking service calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "outcome"},
	)

	reconciliation = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_records_total",
			Help:      "Partial failures recorded for manual reconciliation, by kind.",
		},
		[]string{"kind"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingsCreated,
			transitions,
			sweepCompleted,
			lookups,
			availabilityFallback,
			serviceRequests,
			reconciliation,
		)
	})
}

func AddBookingsCreated(bookingType string, n int) {
	bookingsCreated.WithLabelValues(bookingType).Add(float64(n))
}

func IncTransition(status, result string) {
	transitions.WithLabelValues(status, result).Inc()
}

func IncSweepCompleted() {
	sweepCompleted.Inc()
}

func IncLookup(result string) {
	lookups.WithLabelValues(result).Inc()
}

func IncAvailabilityFallback() {
	availabilityFallback.Inc()
}

func ObserveServiceRequest(endpoint, outcome string, seconds float64) {
	serviceRequests.WithLabelValues(endpoint, outcome).Observe(seconds)
}

func IncReconciliation(kind string) {
	reconciliation.WithLabelValues(kind).Inc()
}
