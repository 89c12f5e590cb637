// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tickethub/seat-reservation/internal/handler"
)

// RegisterRoutes registers the operational endpoints: health check for
// load balancers and the Prometheus scrape target.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterSeatLock registers the seat lock engine's API.  The availability
// view is public; every seat-mutating endpoint goes through the supplied
// middleware chain (holder identity resolution, then rate limiting), so
// anonymous buyers get a stable locker id before any lock is taken.
func RegisterSeatLock(e *echo.Echo, locks *handler.SeatLockHandler, avail *handler.AvailabilityHandler, bookings *handler.BookingHandler, mws ...echo.MiddlewareFunc) {
	e.GET("/v1/events/:id/seats", avail.GetEventSeats)

	g := e.Group("/v1", mws...)
	g.POST("/seats/lock", locks.LockSeats)
	g.DELETE("/seats/lock", locks.ReleaseSeats)
	g.PATCH("/seats/lock", locks.ExtendLock)
	g.POST("/seats/confirm", locks.ConfirmSeats)
	g.POST("/seats/check", locks.CheckSeats)
	g.GET("/bookings/:id", bookings.GetBooking)
	g.GET("/my-bookings", bookings.ListBookings)
}
