package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-reservation/internal/model"
	"github.com/tickethub/seat-reservation/internal/monitoring"
)

// ExpirySweeper physically clears locks whose expiry has passed.  It is a
// safety net, not the primary expiry mechanism: LockSeats, ExtendLock and
// ConfirmSeats already treat expired locks as available, so correctness
// never depends on sweep timing.  Sweeping keeps the store tidy for
// listing and reporting and frees seats nobody re-requests.
type ExpirySweeper struct {
	logger    *logrus.Logger
	store     SeatStore
	clock     Clock
	batchSize int
	emit      emitter
}

// NewExpirySweeper wires an ExpirySweeper.  batchSize bounds the number of
// seat rows locked per transaction so a large backlog of expired holds
// never holds row locks for long; values below 1 fall back to 100.
func NewExpirySweeper(logger *logrus.Logger, store SeatStore, clock Clock, batchSize int, notifier Notifier, cache AvailabilityCache) *ExpirySweeper {
	if clock == nil {
		clock = SystemClock()
	}
	if batchSize < 1 {
		batchSize = 100
	}
	return &ExpirySweeper{
		logger:    logger,
		store:     store,
		clock:     clock,
		batchSize: batchSize,
		emit:      emitter{logger: logger, notifier: notifier, cache: cache},
	}
}

// SweepExpiredLocks reverts every seat with a lapsed lock to AVAILABLE, in
// batches, and returns the number of seats released.  Each batch re-reads
// its rows under row locks and re-checks expiry, so a seat re-locked or
// confirmed between the scan and the batch transaction is left alone.
func (s *ExpirySweeper) SweepExpiredLocks(ctx context.Context) (int, error) {
	total := 0
	for {
		cutoff := s.clock.Now()
		ids, err := s.store.ExpiredSeatIDs(ctx, cutoff, s.batchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			break
		}

		var swept []model.Seat
		err = s.store.WithSeats(ctx, ids, func(seats []model.Seat, tx SeatTx) error {
			var expired []uint64
			for _, seat := range seats {
				if seat.LockExpired(cutoff) {
					expired = append(expired, seat.ID)
					swept = append(swept, seat)
				}
			}
			if len(expired) == 0 {
				return nil
			}
			return tx.SetAvailable(ctx, expired)
		})
		if err != nil {
			return total, err
		}
		if len(swept) > 0 {
			s.emit.announce(ctx, swept, model.SeatAvailable, "", "", cutoff)
			monitoring.AddSweptSeats(len(swept))
			total += len(swept)
		}
		if len(ids) < s.batchSize {
			break
		}
	}
	if total > 0 {
		s.logger.WithField("released", total).Info("expired locks swept")
	}
	return total, nil
}

// Run invokes SweepExpiredLocks every interval until ctx is cancelled.
// The engine does not schedule itself; cmd/server starts this runner in
// place of an external cron.
func (s *ExpirySweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.WithField("interval", interval).Info("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepExpiredLocks(ctx); err != nil {
				s.logger.WithError(err).Error("sweep failed")
			}
		}
	}
}
