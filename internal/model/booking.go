package model

import "time"

// BookingStatus enumerates the states of a booking record.  Bookings are
// created CONFIRMED by the promotion flow; CANCELLED exists for the
// compensation path when downstream booking creation fails after seats
// were already marked BOOKED.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// BookingSeat is one seat owned by a booking, captured with the price the
// buyer actually paid at promotion time.
type BookingSeat struct {
	SeatID     uint64 `json:"seat_id"`
	RowLabel   string `json:"row_label"`
	SeatNumber uint32 `json:"seat_number"`
	PriceCents uint32 `json:"price_cents"`
}

// Booking is the permanent record a hold is promoted into.  Fields:
//
//	ID         – external booking identifier (UUID).
//	HolderID   – holder whose seats were promoted.
//	EventID    – event the seats belong to.
//	Status     – CONFIRMED or CANCELLED.
//	TotalCents – sum of seat prices in minor units.
//	Currency   – ISO currency code shared by the seats.
//	Seats      – the promoted seats.
type Booking struct {
	ID         string        `json:"id"`
	HolderID   HolderID      `json:"holder_id"`
	EventID    uint64        `json:"event_id"`
	Status     BookingStatus `json:"status"`
	TotalCents uint32        `json:"total_cents"`
	Currency   string        `json:"currency"`
	Seats      []BookingSeat `json:"seats"`
	CreatedAt  time.Time     `json:"created_at"`
}
