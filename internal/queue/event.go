// Package queue defines message payloads exchanged over the message broker
// and the background consumer that drains them.
package queue

// SeatStatusQueue is the durable queue seat status events are published to.
const SeatStatusQueue = "seat.status"

// SeatStatusEvent is emitted every time the engine commits a seat status
// transition.  Delivery is best effort: consumers must not be trusted to
// have seen every transition, and the engine never waits on them.
type SeatStatusEvent struct {
	EventID    uint64   `json:"event_id"`
	SeatIDs    []uint64 `json:"seat_ids"`
	Status     string   `json:"status"`
	HolderID   string   `json:"holder_id,omitempty"`
	BookingID  string   `json:"booking_id,omitempty"`
	OccurredAt string   `json:"occurred_at"`
}
