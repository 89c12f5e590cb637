package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-reservation/internal/cache"
	"github.com/tickethub/seat-reservation/internal/engine"
	"github.com/tickethub/seat-reservation/internal/repository"
)

// AvailabilityHandler serves the public seat map of an event.  Statuses
// are corrected for lazy expiry at render time, so a seat whose lock
// lapsed reads AVAILABLE even before the sweeper cleared it.  Responses
// are cached in Redis per event and invalidated by the engine on every
// committed transition.
type AvailabilityHandler struct {
	logger *logrus.Logger
	seats  *repository.SeatRepo
	clock  engine.Clock
	cache  *cache.Availability
}

// NewAvailabilityHandler constructs an AvailabilityHandler.  cache may be
// nil when Redis is unavailable.
func NewAvailabilityHandler(logger *logrus.Logger, seats *repository.SeatRepo, clock engine.Clock, avail *cache.Availability) *AvailabilityHandler {
	if clock == nil {
		clock = engine.SystemClock()
	}
	return &AvailabilityHandler{logger: logger, seats: seats, clock: clock, cache: avail}
}

type seatView struct {
	SeatID     uint64 `json:"seat_id"`
	Section    string `json:"section"`
	RowLabel   string `json:"row_label"`
	SeatNumber uint32 `json:"seat_number"`
	PriceCents uint32 `json:"price_cents"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
}

// GetEventSeats handles GET /v1/events/:id/seats.
func (h *AvailabilityHandler) GetEventSeats(c echo.Context) error {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx := c.Request().Context()

	if payload, ok := h.cache.Get(ctx, eventID); ok {
		return c.JSONBlob(http.StatusOK, payload)
	}

	seats, err := h.seats.ListByEvent(ctx, eventID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list event seats")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load seats"})
	}
	if len(seats) == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	}

	now := h.clock.Now()
	views := make([]seatView, 0, len(seats))
	for _, s := range seats {
		views = append(views, seatView{
			SeatID:     s.ID,
			Section:    s.Section,
			RowLabel:   s.RowLabel,
			SeatNumber: s.SeatNumber,
			PriceCents: s.PriceCents,
			Currency:   s.Currency,
			Status:     string(s.EffectiveStatus(now)),
		})
	}
	body := echo.Map{
		"event_id":     eventID,
		"generated_at": now.UTC().Format(time.RFC3339),
		"seats":        views,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to render seats"})
	}
	h.cache.Set(ctx, eventID, payload)
	return c.JSONBlob(http.StatusOK, payload)
}
