package engine

import (
	"context"
	"time"

	"github.com/tickethub/seat-reservation/internal/model"
	"github.com/tickethub/seat-reservation/internal/queue"
)

// SeatTx exposes the writes permitted while seat rows are held under
// row-level exclusive locks.  Implementations must keep the seat shape
// invariant: LOCKED rows carry holder and expiry, all other states carry
// neither, BOOKED rows carry a booking id.
type SeatTx interface {
	// SetLocked transitions the seats to LOCKED owned by holder until
	// expiresAt.  Also used to push the expiry of an existing lock.
	SetLocked(ctx context.Context, seatIDs []uint64, holder model.HolderID, expiresAt time.Time) error
	// SetAvailable reverts the seats to AVAILABLE and clears all lock and
	// booking fields.
	SetAvailable(ctx context.Context, seatIDs []uint64) error
	// SetBooked transitions the seats to BOOKED, clears the lock fields and
	// records the owning booking id.
	SetBooked(ctx context.Context, seatIDs []uint64, bookingID string) error
}

// SeatStore is the durable record of seat state.  All coordination between
// concurrent engine calls is pushed down to its transactional guarantees;
// the engine itself holds no shared mutable state.
type SeatStore interface {
	// WithSeats runs fn within a single transaction after acquiring
	// row-level exclusive locks (SELECT ... FOR UPDATE) on exactly the
	// given seat rows, in ascending id order so overlapping callers cannot
	// deadlock.  seats holds the freshly read rows, ascending by id;
	// requested ids with no row are simply absent.  A nil error from fn
	// commits, any error rolls back.  Lock-wait timeouts surface as
	// ErrTxTimeout.
	WithSeats(ctx context.Context, seatIDs []uint64, fn func(seats []model.Seat, tx SeatTx) error) error

	// ReadSeats returns the current rows for the given ids without taking
	// row locks.  Missing ids are absent from the result.
	ReadSeats(ctx context.Context, seatIDs []uint64) ([]model.Seat, error)

	// ExpiredSeatIDs returns up to limit ids of seats that are LOCKED with
	// an expiry at or before cutoff, ascending by id.
	ExpiredSeatIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)

	// SeatIDsByBooking returns the ids of seats currently BOOKED under the
	// given booking.
	SeatIDsByBooking(ctx context.Context, bookingID string) ([]uint64, error)
}

// Notifier receives seat status change events.  Delivery is fire and
// forget: the engine logs and swallows publish errors, and a failed
// notification never rolls back a committed transition.
type Notifier interface {
	PublishSeatStatus(ctx context.Context, ev queue.SeatStatusEvent) error
}

// AvailabilityCache invalidates cached availability views after committed
// transitions.  A nil cache disables invalidation.
type AvailabilityCache interface {
	InvalidateEvent(ctx context.Context, eventID uint64) error
}
