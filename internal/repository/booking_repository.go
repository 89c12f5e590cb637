package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-reservation/internal/model"
)

// BookingRepo provides data access to the bookings and booking_seats
// tables.  Bookings are the permanent records holds are promoted into;
// the engine only references them, it never mutates them.
type BookingRepo struct {
	logger *logrus.Logger
	db     *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the provided database.
func NewBookingRepo(logger *logrus.Logger, db *sql.DB) *BookingRepo {
	return &BookingRepo{logger: logger, db: db}
}

// Create inserts a booking and its seats in one transaction.  The caller
// supplies the externally minted booking id; a duplicate id fails the
// insert and the caller is expected to compensate via the promoter.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const header = `INSERT INTO bookings (id, holder_id, event_id, status, total_cents, currency)
                    VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, header,
		b.ID, string(b.HolderID), b.EventID, string(b.Status), b.TotalCents, b.Currency,
	); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	if len(b.Seats) > 0 {
		query := `INSERT INTO booking_seats (booking_id, seat_id, price_cents) VALUES `
		args := make([]interface{}, 0, len(b.Seats)*3)
		for i, s := range b.Seats {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?)"
			args = append(args, b.ID, s.SeatID, s.PriceCents)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert booking seats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	committed = true
	return nil
}

// MarkCancelled flips a booking to CANCELLED.  Used by the compensation
// path; the seats themselves are released by the promoter.
func (r *BookingRepo) MarkCancelled(ctx context.Context, bookingID string) error {
	const q = `UPDATE bookings SET status = 'CANCELLED' WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, q, bookingID); err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	return nil
}

// GetByID returns a booking with its seats.  ErrBookingNotFound is
// returned when no such booking exists; ErrForbidden when it belongs to a
// different holder, so handlers never leak other buyers' bookings.
func (r *BookingRepo) GetByID(ctx context.Context, bookingID string, holder model.HolderID) (*model.Booking, error) {
	const q = `SELECT id, holder_id, event_id, status, total_cents, currency, created_at
               FROM bookings WHERE id = ?`
	var b model.Booking
	var holderCol string
	var status string
	err := r.db.QueryRowContext(ctx, q, bookingID).Scan(
		&b.ID, &holderCol, &b.EventID, &status, &b.TotalCents, &b.Currency, &b.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read booking: %w", err)
	}
	b.HolderID = model.HolderID(holderCol)
	b.Status = model.BookingStatus(status)
	if b.HolderID != holder {
		return nil, ErrForbidden
	}

	seats, err := r.seatsFor(ctx, []string{b.ID})
	if err != nil {
		return nil, err
	}
	b.Seats = seats[b.ID]
	if b.Seats == nil {
		b.Seats = []model.BookingSeat{}
	}
	return &b, nil
}

// ListByHolder returns all bookings of a holder, newest first, each with
// its seats populated in a single follow-up query.
func (r *BookingRepo) ListByHolder(ctx context.Context, holder model.HolderID) ([]model.Booking, error) {
	const q = `SELECT id, holder_id, event_id, status, total_cents, currency, created_at
               FROM bookings WHERE holder_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, string(holder))
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]model.Booking, 0)
	index := make(map[string]int)
	for rows.Next() {
		var b model.Booking
		var holderCol, status string
		if err := rows.Scan(&b.ID, &holderCol, &b.EventID, &status, &b.TotalCents, &b.Currency, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.HolderID = model.HolderID(holderCol)
		b.Status = model.BookingStatus(status)
		b.Seats = []model.BookingSeat{}
		index[b.ID] = len(bookings)
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return bookings, nil
	}

	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	seatMap, err := r.seatsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id, seats := range seatMap {
		bookings[index[id]].Seats = seats
	}
	return bookings, nil
}

// seatsFor loads the seats of multiple bookings in one query, joining the
// seats table for row labels so responses render without extra lookups.
func (r *BookingRepo) seatsFor(ctx context.Context, bookingIDs []string) (map[string][]model.BookingSeat, error) {
	marks := strings.TrimSuffix(strings.Repeat("?,", len(bookingIDs)), ",")
	query := `SELECT bs.booking_id, bs.seat_id, s.row_label, s.seat_number, bs.price_cents
              FROM booking_seats bs
              JOIN seats s ON s.id = bs.seat_id
              WHERE bs.booking_id IN (` + marks + `)
              ORDER BY bs.booking_id, s.row_label, s.seat_number`
	args := make([]interface{}, 0, len(bookingIDs))
	for _, id := range bookingIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("booking seats: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.BookingSeat)
	for rows.Next() {
		var bookingID string
		var seat model.BookingSeat
		if err := rows.Scan(&bookingID, &seat.SeatID, &seat.RowLabel, &seat.SeatNumber, &seat.PriceCents); err != nil {
			return nil, err
		}
		out[bookingID] = append(out[bookingID], seat)
	}
	return out, rows.Err()
}
