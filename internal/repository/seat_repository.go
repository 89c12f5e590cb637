package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-reservation/internal/engine"
	"github.com/tickethub/seat-reservation/internal/model"
)

// MySQL server error numbers classified as retryable contention: lock
// wait timeout and deadlock victim.  Both roll the transaction back with
// no partial mutation, so the caller may simply retry.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

const seatColumns = `id, event_id, section, row_label, seat_number, price_cents, currency,
       status, holder_id, lock_expires_at, booking_id, created_at, updated_at`

// SeatRepo provides data access to the seats table and implements the
// engine's SeatStore contract.  All timestamps are stored and compared in
// UTC; the DSN pins the session to UTC so DATETIME round-trips cleanly.
type SeatRepo struct {
	logger *logrus.Logger
	db     *sql.DB
}

// NewSeatRepo returns a SeatRepo bound to the provided database.
func NewSeatRepo(logger *logrus.Logger, db *sql.DB) *SeatRepo {
	return &SeatRepo{logger: logger, db: db}
}

// DB exposes the underlying handle for callers that need to open their
// own transactions (booking creation).
func (r *SeatRepo) DB() *sql.DB { return r.db }

// WithSeats implements engine.SeatStore.  It opens a transaction, reads
// the requested rows with SELECT ... FOR UPDATE in ascending id order so
// concurrent callers targeting overlapping sets serialize instead of
// deadlocking, runs fn, and commits when fn returns nil.  Lock-wait
// timeouts and deadlocks are surfaced as engine.ErrTxTimeout.
func (r *SeatRepo) WithSeats(ctx context.Context, seatIDs []uint64, fn func(seats []model.Seat, tx engine.SeatTx) error) error {
	if len(seatIDs) == 0 {
		return engine.ErrNoSeats
	}
	ids := append([]uint64(nil), seatIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seat transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	query := `SELECT ` + seatColumns + ` FROM seats WHERE id IN (` +
		placeholders(len(ids)) + `) ORDER BY id FOR UPDATE`
	rows, err := tx.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return r.classify(ctx, err, "lock seat rows")
	}
	seats, err := scanSeats(rows)
	if err != nil {
		return r.classify(ctx, err, "scan seat rows")
	}

	if err := fn(seats, &seatTx{tx: tx}); err != nil {
		return r.classify(ctx, err, "seat transaction")
	}
	if err := tx.Commit(); err != nil {
		return r.classify(ctx, err, "commit seat transaction")
	}
	committed = true
	return nil
}

// ReadSeats implements engine.SeatStore without taking row locks.
func (r *SeatRepo) ReadSeats(ctx context.Context, seatIDs []uint64) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + seatColumns + ` FROM seats WHERE id IN (` +
		placeholders(len(seatIDs)) + `) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, idArgs(seatIDs)...)
	if err != nil {
		return nil, fmt.Errorf("read seats: %w", err)
	}
	return scanSeats(rows)
}

// ListByEvent returns every seat of an event ordered by section, row and
// number, the order the availability view renders them in.
func (r *SeatRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Seat, error) {
	query := `SELECT ` + seatColumns + ` FROM seats WHERE event_id = ?
              ORDER BY section, row_label, seat_number`
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list seats by event: %w", err)
	}
	return scanSeats(rows)
}

// ExpiredSeatIDs implements engine.SeatStore.  The scan runs without row
// locks; the sweeper re-checks expiry under WithSeats before mutating.
func (r *SeatRepo) ExpiredSeatIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	const q = `SELECT id FROM seats
               WHERE status = 'LOCKED' AND lock_expires_at <= ?
               ORDER BY id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("scan expired locks: %w", err)
	}
	return scanIDs(rows)
}

// SeatIDsByBooking implements engine.SeatStore; used by the compensation
// path to find the seats a failed booking stranded.
func (r *SeatRepo) SeatIDsByBooking(ctx context.Context, bookingID string) ([]uint64, error) {
	const q = `SELECT id FROM seats WHERE status = 'BOOKED' AND booking_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, fmt.Errorf("seats by booking: %w", err)
	}
	return scanIDs(rows)
}

// classify wraps driver errors, mapping retryable contention onto
// engine.ErrTxTimeout.  Engine-typed errors pass through untouched so
// conflict and not-found semantics survive the repository boundary.
func (r *SeatRepo) classify(ctx context.Context, err error, op string) error {
	var conflict *engine.ConflictError
	var notFound *engine.NotFoundError
	if errors.As(err, &conflict) || errors.As(err, &notFound) {
		return err
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == mysqlErrLockWaitTimeout || me.Number == mysqlErrDeadlock) {
		r.logger.WithContext(ctx).WithError(err).Warn("seat row contention")
		return fmt.Errorf("%w: %v", engine.ErrTxTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", engine.ErrTxTimeout, err)
	}
	r.logger.WithContext(ctx).WithError(err).Error("seat repository failure")
	return fmt.Errorf("%s: %w", op, err)
}

// seatTx applies status transitions inside a WithSeats transaction.  Every
// write rewrites the full lock/booking field group so the seat shape
// invariant holds no matter which state the row was in before.
type seatTx struct {
	tx *sql.Tx
}

func (t *seatTx) SetLocked(ctx context.Context, seatIDs []uint64, holder model.HolderID, expiresAt time.Time) error {
	if len(seatIDs) == 0 {
		return nil
	}
	query := `UPDATE seats
              SET status = 'LOCKED', holder_id = ?, lock_expires_at = ?, booking_id = NULL,
                  updated_at = UTC_TIMESTAMP()
              WHERE id IN (` + placeholders(len(seatIDs)) + `)`
	args := append([]interface{}{string(holder), expiresAt.UTC()}, idArgs(seatIDs)...)
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

func (t *seatTx) SetAvailable(ctx context.Context, seatIDs []uint64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	query := `UPDATE seats
              SET status = 'AVAILABLE', holder_id = NULL, lock_expires_at = NULL, booking_id = NULL,
                  updated_at = UTC_TIMESTAMP()
              WHERE id IN (` + placeholders(len(seatIDs)) + `)`
	_, err := t.tx.ExecContext(ctx, query, idArgs(seatIDs)...)
	return err
}

func (t *seatTx) SetBooked(ctx context.Context, seatIDs []uint64, bookingID string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	query := `UPDATE seats
              SET status = 'BOOKED', holder_id = NULL, lock_expires_at = NULL, booking_id = ?,
                  updated_at = UTC_TIMESTAMP()
              WHERE id IN (` + placeholders(len(seatIDs)) + `)`
	args := append([]interface{}{bookingID}, idArgs(seatIDs)...)
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

func scanSeats(rows *sql.Rows) ([]model.Seat, error) {
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		var holder sql.NullString
		var expires sql.NullTime
		var booking sql.NullString
		if err := rows.Scan(
			&s.ID, &s.EventID, &s.Section, &s.RowLabel, &s.SeatNumber,
			&s.PriceCents, &s.Currency, &s.Status,
			&holder, &expires, &booking, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if holder.Valid {
			h := model.HolderID(holder.String)
			s.HolderID = &h
		}
		if expires.Valid {
			e := expires.Time.UTC()
			s.LockExpiresAt = &e
		}
		if booking.Valid {
			b := booking.String
			s.BookingID = &b
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]uint64, error) {
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []uint64) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
