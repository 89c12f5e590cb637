// Package handler translates validated HTTP requests into engine calls
// and maps the engine's typed errors onto HTTP status codes: Conflict is
// a 409 (never a 500), unknown seats are a 404, retryable contention is a
// 503 with a Retry-After hint.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-reservation/internal/engine"
	"github.com/tickethub/seat-reservation/internal/middleware"
	"github.com/tickethub/seat-reservation/internal/model"
	"github.com/tickethub/seat-reservation/internal/repository"
)

// SeatLockHandler exposes the lock engine over HTTP.  The handler owns no
// transition logic; it binds requests, resolves the holder identity and
// defers every decision to the engine.
type SeatLockHandler struct {
	logger   *logrus.Logger
	manager  *engine.LockManager
	promoter *engine.ReservationPromoter
	bookings *repository.BookingRepo
}

// NewSeatLockHandler constructs a SeatLockHandler.  All dependencies must
// be non-nil.
func NewSeatLockHandler(logger *logrus.Logger, manager *engine.LockManager, promoter *engine.ReservationPromoter, bookings *repository.BookingRepo) *SeatLockHandler {
	if manager == nil || promoter == nil || bookings == nil {
		panic("nil dependency passed to NewSeatLockHandler")
	}
	return &SeatLockHandler{logger: logger, manager: manager, promoter: promoter, bookings: bookings}
}

type seatLockRequest struct {
	SeatIDs    []uint64 `json:"seat_ids"`
	TTLSeconds int      `json:"ttl_seconds"`
}

// LockSeats handles POST /v1/seats/lock.  It locks all requested seats
// for the caller or none of them, returning 201 with the shared expiry on
// success and 409 naming the unavailable seats on conflict.
func (h *SeatLockHandler) LockSeats(c echo.Context) error {
	holder := middleware.HolderFrom(c)
	var body seatLockRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	res, err := h.manager.LockSeats(c.Request().Context(), body.SeatIDs, holder, ttlFrom(body.TTLSeconds))
	if err != nil {
		return h.writeEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"locked":     res.SeatIDs,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
	})
}

// ReleaseSeats handles DELETE /v1/seats/lock.  Seats not held by the
// caller are silently skipped, so re-releasing after an expiry or a sweep
// returns 200 with an empty list rather than an error.
func (h *SeatLockHandler) ReleaseSeats(c echo.Context) error {
	holder := middleware.HolderFrom(c)
	var body seatLockRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	released, err := h.manager.ReleaseSeats(c.Request().Context(), body.SeatIDs, holder)
	if err != nil {
		return h.writeEngineError(c, err)
	}
	if released == nil {
		released = []uint64{}
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// ExtendLock handles PATCH /v1/seats/lock.  Unlike release this is
// all-or-nothing: a single lapsed or stolen seat fails the whole call so
// the client re-fetches state instead of holding a partial extension.
func (h *SeatLockHandler) ExtendLock(c echo.Context) error {
	holder := middleware.HolderFrom(c)
	var body seatLockRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	res, err := h.manager.ExtendLock(c.Request().Context(), body.SeatIDs, holder, ttlFrom(body.TTLSeconds))
	if err != nil {
		return h.writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"extended":   res.SeatIDs,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
	})
}

// ConfirmSeats handles POST /v1/seats/confirm.  It promotes the caller's
// live hold into a booking: seats flip to BOOKED under a freshly minted
// booking id, then the booking record is created.  If booking creation
// fails after promotion, the seats are released again through the
// compensation path so they are never stranded.
func (h *SeatLockHandler) ConfirmSeats(c echo.Context) error {
	holder := middleware.HolderFrom(c)
	var body seatLockRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()
	bookingID := uuid.NewString()

	res, err := h.promoter.ConfirmSeats(ctx, body.SeatIDs, holder, bookingID)
	if err != nil {
		return h.writeEngineError(c, err)
	}

	booking := &model.Booking{
		ID:         bookingID,
		HolderID:   holder,
		EventID:    res.Seats[0].EventID,
		Status:     model.BookingConfirmed,
		TotalCents: res.TotalCents,
		Currency:   res.Seats[0].Currency,
		Seats:      bookingSeats(res.Seats),
	}
	if err := h.bookings.Create(ctx, booking); err != nil {
		h.logger.WithError(err).WithField("booking", bookingID).
			Error("booking creation failed after promotion, compensating")
		// The client may have vanished already; the seats still have to be
		// freed, so compensation must not inherit the request's cancellation.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if _, relErr := h.promoter.ReleaseBookingSeats(relCtx, bookingID); relErr != nil {
			h.logger.WithError(relErr).WithField("booking", bookingID).
				Error("compensation failed, seats remain BOOKED")
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create booking"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"booking_id":  bookingID,
		"confirmed":   res.SeatIDs,
		"total_cents": res.TotalCents,
	})
}

type seatCheckRequest struct {
	SeatIDs []uint64 `json:"seat_ids"`
}

// CheckSeats handles POST /v1/seats/check.  It is read-only: each known
// seat is reported with its lazy-expiry-corrected status, and a summary
// availability flag per seat for clients that only need a boolean.
func (h *SeatLockHandler) CheckSeats(c echo.Context) error {
	var body seatCheckRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	states, err := h.manager.CheckLocks(c.Request().Context(), body.SeatIDs)
	if err != nil {
		return h.writeEngineError(c, err)
	}

	type seatStateView struct {
		SeatID    uint64  `json:"seat_id"`
		Status    string  `json:"status"`
		HolderID  *string `json:"holder_id,omitempty"`
		ExpiresAt *string `json:"expires_at,omitempty"`
		Available bool    `json:"available"`
	}
	items := make([]seatStateView, 0, len(states))
	for id, st := range states {
		v := seatStateView{
			SeatID:    id,
			Status:    string(st.Status),
			Available: st.Status == model.SeatAvailable,
		}
		if st.HolderID != nil {
			holder := string(*st.HolderID)
			v.HolderID = &holder
		}
		if st.ExpiresAt != nil {
			iso := st.ExpiresAt.UTC().Format(time.RFC3339)
			v.ExpiresAt = &iso
		}
		items = append(items, v)
	}
	return c.JSON(http.StatusOK, echo.Map{"seats": items})
}

// writeEngineError maps engine errors onto HTTP responses.
func (h *SeatLockHandler) writeEngineError(c echo.Context, err error) error {
	var conflict *engine.ConflictError
	var notFound *engine.NotFoundError
	switch {
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       "seats unavailable",
			"unavailable": conflict.SeatIDs,
		})
	case errors.As(err, &notFound):
		return c.JSON(http.StatusNotFound, echo.Map{
			"error":   "seats not found",
			"missing": notFound.SeatIDs,
		})
	case engine.IsRetryable(err):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "seats are contended, retry"})
	case errors.Is(err, engine.ErrNoSeats), errors.Is(err, engine.ErrNoHolder), errors.Is(err, engine.ErrNoBooking):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		h.logger.WithError(err).Error("seat lock operation failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func ttlFrom(seconds int) time.Duration {
	if seconds <= 0 {
		return 0 // engine applies the default policy TTL
	}
	return time.Duration(seconds) * time.Second
}

func bookingSeats(seats []model.Seat) []model.BookingSeat {
	out := make([]model.BookingSeat, 0, len(seats))
	for _, s := range seats {
		out = append(out, model.BookingSeat{
			SeatID:     s.ID,
			RowLabel:   s.RowLabel,
			SeatNumber: s.SeatNumber,
			PriceCents: s.PriceCents,
		})
	}
	return out
}
