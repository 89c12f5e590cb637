package engine

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-reservation/internal/model"
	"github.com/tickethub/seat-reservation/internal/monitoring"
)

// ErrNoBooking is returned when a promotion is attempted without a booking
// id.
var ErrNoBooking = errors.New("booking id is required")

// ReservationPromoter converts a live hold into a permanent booking by
// transitioning the held seats to BOOKED.  It also provides the
// compensating release used when booking creation fails after the seats
// were already promoted.
type ReservationPromoter struct {
	logger *logrus.Logger
	store  SeatStore
	clock  Clock
	emit   emitter
}

// NewReservationPromoter wires a ReservationPromoter.  notifier and cache
// may be nil.
func NewReservationPromoter(logger *logrus.Logger, store SeatStore, clock Clock, notifier Notifier, cache AvailabilityCache) *ReservationPromoter {
	if clock == nil {
		clock = SystemClock()
	}
	return &ReservationPromoter{
		logger: logger,
		store:  store,
		clock:  clock,
		emit:   emitter{logger: logger, notifier: notifier, cache: cache},
	}
}

// ConfirmResult reports a successful promotion: the seats now BOOKED,
// returned with the prices they were promoted at so the caller can build
// the booking record without a second read.
type ConfirmResult struct {
	SeatIDs    []uint64
	Seats      []model.Seat
	TotalCents uint32
}

// ConfirmSeats atomically promotes every requested seat from LOCKED to
// BOOKED under bookingID.  Every seat must be live-locked by holder; if
// any check fails (lock expired, stolen, seat already booked) the whole
// promotion fails with a ConflictError and nothing is mutated.  A booking
// must never own a subset of seats the buyer did not actually hold.
func (p *ReservationPromoter) ConfirmSeats(ctx context.Context, seatIDs []uint64, holder model.HolderID, bookingID string) (*ConfirmResult, error) {
	if bookingID == "" {
		monitoring.ObserveOperation("confirm", monitoring.OutcomeError, len(seatIDs))
		return nil, ErrNoBooking
	}
	ids, err := normalizeRequest(seatIDs, holder)
	if err != nil {
		monitoring.ObserveOperation("confirm", monitoring.OutcomeError, len(seatIDs))
		return nil, err
	}

	var confirmed []model.Seat
	err = p.store.WithSeats(ctx, ids, func(seats []model.Seat, tx SeatTx) error {
		if missing := missingIDs(ids, seats); len(missing) > 0 {
			return &NotFoundError{SeatIDs: missing}
		}
		now := p.clock.Now()
		var lapsed []uint64
		for _, s := range seats {
			if !s.HeldBy(holder, now) {
				lapsed = append(lapsed, s.ID)
			}
		}
		if len(lapsed) > 0 {
			return &ConflictError{SeatIDs: lapsed}
		}
		if err := tx.SetBooked(ctx, ids, bookingID); err != nil {
			return err
		}
		confirmed = seats
		return nil
	})
	if err != nil {
		monitoring.ObserveOperation("confirm", outcomeFor(err), len(ids))
		return nil, err
	}

	var total uint32
	for _, s := range confirmed {
		total += s.PriceCents
	}
	p.emit.announce(ctx, confirmed, model.SeatBooked, holder, bookingID, p.clock.Now())
	monitoring.ObserveOperation("confirm", monitoring.OutcomeSuccess, len(ids))
	p.logger.WithFields(logrus.Fields{
		"holder":  holder,
		"booking": bookingID,
		"seats":   ids,
	}).Info("seats confirmed")
	return &ConfirmResult{SeatIDs: ids, Seats: confirmed, TotalCents: total}, nil
}

// ReleaseBookingSeats is the compensation for a failed booking creation:
// it reverts every seat BOOKED under bookingID back to AVAILABLE so a
// half-finished promotion cannot strand seats.  Seats already moved on
// (re-booked under another id) are left alone.  It is idempotent; a
// second call releases nothing.
func (p *ReservationPromoter) ReleaseBookingSeats(ctx context.Context, bookingID string) ([]uint64, error) {
	if bookingID == "" {
		return nil, ErrNoBooking
	}
	ids, err := p.store.SeatIDsByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var released []model.Seat
	err = p.store.WithSeats(ctx, ids, func(seats []model.Seat, tx SeatTx) error {
		var owned []uint64
		for _, s := range seats {
			if s.Status == model.SeatBooked && s.BookingID != nil && *s.BookingID == bookingID {
				owned = append(owned, s.ID)
				released = append(released, s)
			}
		}
		if len(owned) == 0 {
			return nil
		}
		return tx.SetAvailable(ctx, owned)
	})
	if err != nil {
		monitoring.ObserveOperation("compensate", outcomeFor(err), len(ids))
		return nil, err
	}

	out := make([]uint64, 0, len(released))
	for _, s := range released {
		out = append(out, s.ID)
	}
	if len(released) > 0 {
		p.emit.announce(ctx, released, model.SeatAvailable, "", "", p.clock.Now())
	}
	monitoring.ObserveOperation("compensate", monitoring.OutcomeSuccess, len(out))
	p.logger.WithFields(logrus.Fields{"booking": bookingID, "released": out}).
		Warn("booking seats released by compensation")
	return out, nil
}
