// Package engine implements the seat lock engine: transient, expiring seat
// locks with atomic all-or-nothing semantics, promotion of live holds into
// permanent bookings, and background expiry sweeping.  The engine owns
// every transition of seat status, holder and expiry; no other component
// writes those fields.
package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-reservation/internal/model"
	"github.com/tickethub/seat-reservation/internal/monitoring"
)

// LockPolicy bounds lock lifetimes.  The engine, not the caller, enforces
// the bounds so a client can never obtain an effectively permanent hold.
type LockPolicy struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
}

// DefaultLockPolicy mirrors the checkout flow defaults: five minute holds,
// never shorter than 30s, never longer than 30 minutes.
func DefaultLockPolicy() LockPolicy {
	return LockPolicy{
		DefaultTTL: 5 * time.Minute,
		MinTTL:     30 * time.Second,
		MaxTTL:     30 * time.Minute,
	}
}

// clamp normalizes a caller-supplied TTL: zero or negative selects the
// default, anything outside the bounds is clamped to them.
func (p LockPolicy) clamp(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if ttl < p.MinTTL {
		ttl = p.MinTTL
	}
	if ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}

// LockManager acquires, extends and releases seat locks.  Every public
// method runs as one atomic transaction against the SeatStore; concurrent
// calls targeting overlapping seats serialize on the store's row locks,
// so the first transaction wins deterministically and the rest observe
// the post-commit state.
type LockManager struct {
	logger *logrus.Logger
	store  SeatStore
	clock  Clock
	policy LockPolicy
	emit   emitter
}

// NewLockManager wires a LockManager.  notifier and cache may be nil;
// both are best-effort side channels.
func NewLockManager(logger *logrus.Logger, store SeatStore, clock Clock, policy LockPolicy, notifier Notifier, cache AvailabilityCache) *LockManager {
	if clock == nil {
		clock = SystemClock()
	}
	return &LockManager{
		logger: logger,
		store:  store,
		clock:  clock,
		policy: policy,
		emit:   emitter{logger: logger, notifier: notifier, cache: cache},
	}
}

// LockResult reports a successful lock or extend call: the seats now held
// and the shared absolute expiry of the hold.
type LockResult struct {
	SeatIDs   []uint64
	ExpiresAt time.Time
}

// SeatState is the read-only view CheckLocks reports per seat, with lazy
// expiry already applied.
type SeatState struct {
	Status    model.SeatStatus
	HolderID  *model.HolderID
	ExpiresAt *time.Time
}

// LockSeats atomically locks every requested seat for holder, or locks
// none of them.  A seat is eligible when it is AVAILABLE, when it carries
// an expired lock (lazy expiry), or when it is already live-locked by the
// same holder (re-locking refreshes the expiry instead of punishing a
// double submit).  If any seat is ineligible the whole request fails with
// a ConflictError naming the offending seats and no seat is touched.
func (m *LockManager) LockSeats(ctx context.Context, seatIDs []uint64, holder model.HolderID, ttl time.Duration) (*LockResult, error) {
	ids, err := normalizeRequest(seatIDs, holder)
	if err != nil {
		monitoring.ObserveOperation("lock", monitoring.OutcomeError, len(seatIDs))
		return nil, err
	}
	ttl = m.policy.clamp(ttl)

	var locked []model.Seat
	var expiresAt time.Time
	err = m.store.WithSeats(ctx, ids, func(seats []model.Seat, tx SeatTx) error {
		if missing := missingIDs(ids, seats); len(missing) > 0 {
			return &NotFoundError{SeatIDs: missing}
		}
		now := m.clock.Now()
		var conflicts []uint64
		for _, s := range seats {
			if !lockEligible(&s, holder, now) {
				conflicts = append(conflicts, s.ID)
			}
		}
		if len(conflicts) > 0 {
			return &ConflictError{SeatIDs: conflicts}
		}
		expiresAt = now.Add(ttl)
		if err := tx.SetLocked(ctx, ids, holder, expiresAt); err != nil {
			return err
		}
		locked = seats
		return nil
	})
	if err != nil {
		m.observe("lock", err, len(ids))
		return nil, err
	}

	m.emit.announce(ctx, locked, model.SeatLocked, holder, "", expiresAt)
	monitoring.ObserveOperation("lock", monitoring.OutcomeSuccess, len(ids))
	m.logger.WithFields(logrus.Fields{
		"holder":     holder,
		"seats":      ids,
		"expires_at": expiresAt,
	}).Info("seats locked")
	return &LockResult{SeatIDs: ids, ExpiresAt: expiresAt}, nil
}

// ReleaseSeats reverts to AVAILABLE every requested seat that is LOCKED
// and owned by holder, and silently skips the rest.  Skipping instead of
// failing keeps release idempotent: a second call, or a call racing the
// sweeper, simply releases nothing.  The released seat ids are returned.
func (m *LockManager) ReleaseSeats(ctx context.Context, seatIDs []uint64, holder model.HolderID) ([]uint64, error) {
	ids, err := normalizeRequest(seatIDs, holder)
	if err != nil {
		monitoring.ObserveOperation("release", monitoring.OutcomeError, len(seatIDs))
		return nil, err
	}

	var released []model.Seat
	err = m.store.WithSeats(ctx, ids, func(seats []model.Seat, tx SeatTx) error {
		var owned []uint64
		for _, s := range seats {
			// Expired own locks are released too; they are logically free
			// already and clearing them keeps the store tidy.
			if s.Status == model.SeatLocked && s.HolderID != nil && *s.HolderID == holder {
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
		m.observe("release", err, len(ids))
		return nil, err
	}

	out := make([]uint64, 0, len(released))
	for _, s := range released {
		out = append(out, s.ID)
	}
	if len(released) > 0 {
		m.emit.announce(ctx, released, model.SeatAvailable, "", "", m.clock.Now())
	}
	monitoring.ObserveOperation("release", monitoring.OutcomeSuccess, len(ids))
	m.logger.WithFields(logrus.Fields{"holder": holder, "released": out}).Info("seats released")
	return out, nil
}

// ExtendLock pushes the expiry of every requested seat to now+ttl.  Unlike
// release it is fail-fast: if any seat is not live-locked by holder
// (ownership violated, lock lapsed, or seat already booked), the whole
// call fails with a ConflictError so the client re-fetches seat state
// instead of silently extending a subset.
func (m *LockManager) ExtendLock(ctx context.Context, seatIDs []uint64, holder model.HolderID, ttl time.Duration) (*LockResult, error) {
	ids, err := normalizeRequest(seatIDs, holder)
	if err != nil {
		monitoring.ObserveOperation("extend", monitoring.OutcomeError, len(seatIDs))
		return nil, err
	}
	ttl = m.policy.clamp(ttl)

	var expiresAt time.Time
	err = m.store.WithSeats(ctx, ids, func(seats []model.Seat, tx SeatTx) error {
		if missing := missingIDs(ids, seats); len(missing) > 0 {
			return &NotFoundError{SeatIDs: missing}
		}
		now := m.clock.Now()
		var lapsed []uint64
		for _, s := range seats {
			if !s.HeldBy(holder, now) {
				lapsed = append(lapsed, s.ID)
			}
		}
		if len(lapsed) > 0 {
			return &ConflictError{SeatIDs: lapsed}
		}
		expiresAt = now.Add(ttl)
		return tx.SetLocked(ctx, ids, holder, expiresAt)
	})
	if err != nil {
		m.observe("extend", err, len(ids))
		return nil, err
	}

	// No announce: extending changes the expiry, not the status.
	monitoring.ObserveOperation("extend", monitoring.OutcomeSuccess, len(ids))
	m.logger.WithFields(logrus.Fields{
		"holder":     holder,
		"seats":      ids,
		"expires_at": expiresAt,
	}).Info("lock extended")
	return &LockResult{SeatIDs: ids, ExpiresAt: expiresAt}, nil
}

// CheckLocks reports the current state of the requested seats without side
// effects.  A logically expired lock is reported as AVAILABLE with no
// holder, matching what LockSeats would decide, even when the sweeper has
// not yet cleared the row.  Unknown seat ids are absent from the result.
func (m *LockManager) CheckLocks(ctx context.Context, seatIDs []uint64) (map[uint64]SeatState, error) {
	ids := dedupeSeatIDs(seatIDs)
	if len(ids) == 0 {
		return nil, ErrNoSeats
	}
	seats, err := m.store.ReadSeats(ctx, ids)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	states := make(map[uint64]SeatState, len(seats))
	for _, s := range seats {
		st := SeatState{Status: s.EffectiveStatus(now)}
		if st.Status == model.SeatLocked {
			st.HolderID = s.HolderID
			st.ExpiresAt = s.LockExpiresAt
		}
		states[s.ID] = st
	}
	return states, nil
}

// BulkCheckAvailability is a convenience wrapper over CheckLocks that maps
// each known seat id to whether it could be locked right now.
func (m *LockManager) BulkCheckAvailability(ctx context.Context, seatIDs []uint64) (map[uint64]bool, error) {
	states, err := m.CheckLocks(ctx, seatIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]bool, len(states))
	for id, st := range states {
		out[id] = st.Status == model.SeatAvailable
	}
	return out, nil
}

// observe maps an operation error onto a metrics outcome label.
func (m *LockManager) observe(op string, err error, seats int) {
	monitoring.ObserveOperation(op, outcomeFor(err), seats)
}

func outcomeFor(err error) string {
	var conflict *ConflictError
	var notFound *NotFoundError
	switch {
	case errors.As(err, &conflict):
		return monitoring.OutcomeConflict
	case errors.As(err, &notFound):
		return monitoring.OutcomeNotFound
	case errors.Is(err, ErrTxTimeout):
		return monitoring.OutcomeTimeout
	default:
		return monitoring.OutcomeError
	}
}

// lockEligible implements the LockSeats classification rule.
func lockEligible(s *model.Seat, holder model.HolderID, now time.Time) bool {
	switch s.Status {
	case model.SeatAvailable:
		return true
	case model.SeatLocked:
		return s.LockExpired(now) || (s.HolderID != nil && *s.HolderID == holder)
	default:
		return false
	}
}

// normalizeRequest validates the holder and returns the deduplicated,
// ascending seat id set shared by every mutating operation.
func normalizeRequest(seatIDs []uint64, holder model.HolderID) ([]uint64, error) {
	if holder == "" {
		return nil, ErrNoHolder
	}
	ids := dedupeSeatIDs(seatIDs)
	if len(ids) == 0 {
		return nil, ErrNoSeats
	}
	return ids, nil
}

// dedupeSeatIDs drops zero and duplicate ids and sorts ascending, the
// order the store takes row locks in.
func dedupeSeatIDs(seatIDs []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(seatIDs))
	ids := make([]uint64, 0, len(seatIDs))
	for _, id := range seatIDs {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// missingIDs returns the requested ids that have no corresponding row.
func missingIDs(ids []uint64, seats []model.Seat) []uint64 {
	if len(seats) == len(ids) {
		return nil
	}
	present := make(map[uint64]struct{}, len(seats))
	for _, s := range seats {
		present[s.ID] = struct{}{}
	}
	var missing []uint64
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
