// Package repository implements persistence for seats and bookings on
// MySQL.  Sentinel errors defined here let handlers distinguish failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrBookingNotFound is returned when a booking id has no row. Handlers
// should translate this into an HTTP 404 response.
var ErrBookingNotFound = errors.New("booking not found")

// ErrForbidden is returned when the caller attempts to read a booking
// owned by a different holder. Handlers should translate this into an
// HTTP 403 response.
var ErrForbidden = errors.New("forbidden")
