package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-reservation/internal/model"
	"github.com/tickethub/seat-reservation/internal/queue"
)

// emitter fans committed transitions out to the notifier and the
// availability cache.  Both targets are best effort; failures are logged
// and never surfaced to the caller, since the transition itself has
// already committed.
type emitter struct {
	logger   *logrus.Logger
	notifier Notifier
	cache    AvailabilityCache
}

// announce publishes one status event per affected event id and drops the
// cached availability view for those events.  seats must be the rows the
// transition was applied to.
func (e *emitter) announce(ctx context.Context, seats []model.Seat, status model.SeatStatus, holder model.HolderID, bookingID string, at time.Time) {
	byEvent := make(map[uint64][]uint64)
	for _, s := range seats {
		byEvent[s.EventID] = append(byEvent[s.EventID], s.ID)
	}
	for eventID, seatIDs := range byEvent {
		if e.notifier != nil {
			ev := queue.SeatStatusEvent{
				EventID:    eventID,
				SeatIDs:    seatIDs,
				Status:     string(status),
				HolderID:   string(holder),
				BookingID:  bookingID,
				OccurredAt: at.UTC().Format(time.RFC3339),
			}
			if err := e.notifier.PublishSeatStatus(ctx, ev); err != nil {
				e.logger.WithError(err).WithFields(logrus.Fields{
					"event_id": eventID,
					"status":   status,
				}).Warn("seat status event dropped")
			}
		}
		if e.cache != nil {
			if err := e.cache.InvalidateEvent(ctx, eventID); err != nil {
				e.logger.WithError(err).WithField("event_id", eventID).
					Warn("availability cache invalidation failed")
			}
		}
	}
}
