package model

import "time"

// SeatStatus enumerates the lifecycle states of a seat for an event.
// AVAILABLE seats can be locked, LOCKED seats are transiently held by one
// holder during checkout, BOOKED seats belong to a booking, and
// UNAVAILABLE seats have been disabled by admin tooling outside this
// service.  Only the engine transitions between AVAILABLE, LOCKED and
// BOOKED; UNAVAILABLE is read-only here.
type SeatStatus string

const (
	SeatAvailable   SeatStatus = "AVAILABLE"
	SeatLocked      SeatStatus = "LOCKED"
	SeatBooked      SeatStatus = "BOOKED"
	SeatUnavailable SeatStatus = "UNAVAILABLE"
)

// HolderID identifies whoever owns a seat lock.  It is opaque on purpose:
// the value may be an authenticated user id or an anonymous locker id
// minted by the HTTP layer, and ownership checks never care which.
type HolderID string

// Seat describes one sellable seat of an event together with its current
// lock state.  The lock fields (HolderID, LockExpiresAt) are set if and
// only if Status is LOCKED; BookingID is set if and only if Status is
// BOOKED.  The repository enforces this shape on every write.
//
// Fields:
//
//	ID            – primary key identifier.
//	EventID       – event this seat belongs to.
//	Section       – venue section label.
//	RowLabel      – letter or string designating the row.
//	SeatNumber    – number of the seat within the row.
//	PriceCents    – price in minor currency units.
//	Currency      – ISO currency code for the price.
//	Status        – current lifecycle state.
//	HolderID      – owner of the lock while LOCKED.
//	LockExpiresAt – absolute expiry of the lock while LOCKED.
//	BookingID     – booking owning this seat while BOOKED.
type Seat struct {
	ID            uint64
	EventID       uint64
	Section       string
	RowLabel      string
	SeatNumber    uint32
	PriceCents    uint32
	Currency      string
	Status        SeatStatus
	HolderID      *HolderID
	LockExpiresAt *time.Time
	BookingID     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LockExpired reports whether the seat carries a lock whose expiry has
// passed.  An expired lock is treated as logically released everywhere
// ("lazy expiry") even before the sweeper physically clears it.
func (s *Seat) LockExpired(now time.Time) bool {
	return s.Status == SeatLocked && s.LockExpiresAt != nil && !s.LockExpiresAt.After(now)
}

// HeldBy reports whether the seat is currently locked by holder with a
// live, unexpired lock.
func (s *Seat) HeldBy(holder HolderID, now time.Time) bool {
	return s.Status == SeatLocked && s.HolderID != nil && *s.HolderID == holder && !s.LockExpired(now)
}

// EffectiveStatus returns the status after applying lazy expiry: a LOCKED
// seat whose expiry has passed reads as AVAILABLE.
func (s *Seat) EffectiveStatus(now time.Time) SeatStatus {
	if s.LockExpired(now) {
		return SeatAvailable
	}
	return s.Status
}
