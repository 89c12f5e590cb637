package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_lock_operations_total",
			Help: "Seat lock engine operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	operationSeats = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seat_lock_operation_seats",
			Help:    "Number of seats targeted per engine operation",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		},
		[]string{"operation"},
	)

	sweptSeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seat_lock_swept_seats_total",
			Help: "Seats reverted to AVAILABLE by the expiry sweeper",
		},
	)
)

// Outcome labels recorded for engine operations.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// ObserveOperation records one engine operation with its outcome and the
// size of the targeted seat set.
func ObserveOperation(operation, outcome string, seats int) {
	lockOperations.WithLabelValues(operation, outcome).Inc()
	operationSeats.WithLabelValues(operation).Observe(float64(seats))
}

// AddSweptSeats records seats physically released by the sweeper.
func AddSweptSeats(n int) {
	sweptSeats.Add(float64(n))
}
