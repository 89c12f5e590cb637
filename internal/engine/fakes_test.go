package engine_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-reservation/internal/engine"
	"github.com/tickethub/seat-reservation/internal/model"
	"github.com/tickethub/seat-reservation/internal/queue"
)

// memStore is an in-memory SeatStore. A single mutex held for the whole
// WithSeats callback stands in for MySQL row locks: overlapping callers
// serialize, the first commit wins and later callers observe it.
type memStore struct {
	mu    sync.Mutex
	seats map[uint64]model.Seat

	// expiredQueue, when non-nil, overrides ExpiredSeatIDs batch by batch
	// so tests can feed the sweeper stale scan results.
	expiredQueue [][]uint64
}

func newMemStore(seats ...model.Seat) *memStore {
	s := &memStore{seats: make(map[uint64]model.Seat, len(seats))}
	for _, seat := range seats {
		s.seats[seat.ID] = seat
	}
	return s
}

func (s *memStore) WithSeats(ctx context.Context, seatIDs []uint64, fn func([]model.Seat, engine.SeatTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := append([]uint64(nil), seatIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]model.Seat, 0, len(ids))
	tx := &memTx{pending: make(map[uint64]model.Seat, len(ids))}
	for _, id := range ids {
		if seat, ok := s.seats[id]; ok {
			rows = append(rows, seat)
			tx.pending[id] = seat
		}
	}
	if err := fn(rows, tx); err != nil {
		return err
	}
	for id, seat := range tx.pending {
		s.seats[id] = seat
	}
	return nil
}

func (s *memStore) ReadSeats(ctx context.Context, seatIDs []uint64) ([]model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := append([]uint64(nil), seatIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	rows := make([]model.Seat, 0, len(ids))
	for _, id := range ids {
		if seat, ok := s.seats[id]; ok {
			rows = append(rows, seat)
		}
	}
	return rows, nil
}

func (s *memStore) ExpiredSeatIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiredQueue != nil {
		if len(s.expiredQueue) == 0 {
			return nil, nil
		}
		batch := s.expiredQueue[0]
		s.expiredQueue = s.expiredQueue[1:]
		return batch, nil
	}

	var ids []uint64
	for id, seat := range s.seats {
		if seat.Status == model.SeatLocked && seat.LockExpiresAt != nil && !seat.LockExpiresAt.After(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *memStore) SeatIDsByBooking(ctx context.Context, bookingID string) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uint64
	for id, seat := range s.seats {
		if seat.Status == model.SeatBooked && seat.BookingID != nil && *seat.BookingID == bookingID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// seat returns a copy of the stored row.
func (s *memStore) seat(id uint64) model.Seat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seats[id]
}

type memTx struct {
	pending map[uint64]model.Seat
}

func (t *memTx) SetLocked(ctx context.Context, seatIDs []uint64, holder model.HolderID, expiresAt time.Time) error {
	for _, id := range seatIDs {
		seat := t.pending[id]
		h := holder
		exp := expiresAt
		seat.Status = model.SeatLocked
		seat.HolderID = &h
		seat.LockExpiresAt = &exp
		seat.BookingID = nil
		t.pending[id] = seat
	}
	return nil
}

func (t *memTx) SetAvailable(ctx context.Context, seatIDs []uint64) error {
	for _, id := range seatIDs {
		seat := t.pending[id]
		seat.Status = model.SeatAvailable
		seat.HolderID = nil
		seat.LockExpiresAt = nil
		seat.BookingID = nil
		t.pending[id] = seat
	}
	return nil
}

func (t *memTx) SetBooked(ctx context.Context, seatIDs []uint64, bookingID string) error {
	for _, id := range seatIDs {
		seat := t.pending[id]
		b := bookingID
		seat.Status = model.SeatBooked
		seat.HolderID = nil
		seat.LockExpiresAt = nil
		seat.BookingID = &b
		t.pending[id] = seat
	}
	return nil
}

// fixedClock is a manually advanced Clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordNotifier captures published seat status events.
type recordNotifier struct {
	mu     sync.Mutex
	events []queue.SeatStatusEvent
}

func (n *recordNotifier) PublishSeatStatus(ctx context.Context, ev queue.SeatStatusEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordNotifier) published() []queue.SeatStatusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]queue.SeatStatusEvent(nil), n.events...)
}

// recordCache captures availability invalidations.
type recordCache struct {
	mu       sync.Mutex
	eventIDs []uint64
}

func (c *recordCache) InvalidateEvent(ctx context.Context, eventID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventIDs = append(c.eventIDs, eventID)
	return nil
}

func (c *recordCache) invalidated() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.eventIDs...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func availableSeat(id, eventID uint64, price uint32) model.Seat {
	return model.Seat{
		ID:         id,
		EventID:    eventID,
		Section:    "A",
		RowLabel:   "A",
		SeatNumber: uint32(id),
		PriceCents: price,
		Currency:   "USD",
		Status:     model.SeatAvailable,
	}
}

func lockedSeat(id, eventID uint64, holder model.HolderID, expiresAt time.Time) model.Seat {
	seat := availableSeat(id, eventID, 2500)
	seat.Status = model.SeatLocked
	seat.HolderID = &holder
	seat.LockExpiresAt = &expiresAt
	return seat
}

func bookedSeat(id, eventID uint64, bookingID string) model.Seat {
	seat := availableSeat(id, eventID, 2500)
	seat.Status = model.SeatBooked
	seat.BookingID = &bookingID
	return seat
}
