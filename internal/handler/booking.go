package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-reservation/internal/middleware"
	"github.com/tickethub/seat-reservation/internal/repository"
)

// BookingHandler serves the booking read model created by the promotion
// flow.  Bookings are scoped to the holder that confirmed them; another
// holder asking for the same id gets a 403, never the record.
type BookingHandler struct {
	logger   *logrus.Logger
	bookings *repository.BookingRepo
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(logger *logrus.Logger, bookings *repository.BookingRepo) *BookingHandler {
	return &BookingHandler{logger: logger, bookings: bookings}
}

// GetBooking handles GET /v1/bookings/:id.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	holder := middleware.HolderFrom(c)
	bookingID := c.Param("id")
	if bookingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	booking, err := h.bookings.GetByID(c.Request().Context(), bookingID, holder)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		if errors.Is(err, repository.ErrForbidden) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
		h.logger.WithError(err).Error("failed to fetch booking")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch booking"})
	}
	return c.JSON(http.StatusOK, echo.Map{"item": booking})
}

// ListBookings handles GET /v1/my-bookings.  When the holder has no
// bookings it returns an empty array.
func (h *BookingHandler) ListBookings(c echo.Context) error {
	holder := middleware.HolderFrom(c)
	items, err := h.bookings.ListByHolder(c.Request().Context(), holder)
	if err != nil {
		h.logger.WithError(err).Error("failed to list bookings")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load bookings"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
