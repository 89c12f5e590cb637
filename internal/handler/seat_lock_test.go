package handler_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickethub/seat-reservation/internal/engine"
	"github.com/tickethub/seat-reservation/internal/handler"
	"github.com/tickethub/seat-reservation/internal/middleware"
	"github.com/tickethub/seat-reservation/internal/model"
	"github.com/tickethub/seat-reservation/internal/repository"
)

// stubStore is a minimal in-memory SeatStore for exercising the HTTP
// layer; concurrency is covered by the engine tests.  withSeatsErr, when
// set, fails every transaction the way a contended database would, and a
// cancelled context fails the transaction the way database/sql does.
// afterTx runs after each committed transaction.
type stubStore struct {
	seats        map[uint64]model.Seat
	withSeatsErr error
	afterTx      func()
}

func newStubStore(seats ...model.Seat) *stubStore {
	s := &stubStore{seats: make(map[uint64]model.Seat, len(seats))}
	for _, seat := range seats {
		s.seats[seat.ID] = seat
	}
	return s
}

func (s *stubStore) WithSeats(ctx context.Context, seatIDs []uint64, fn func([]model.Seat, engine.SeatTx) error) error {
	if s.withSeatsErr != nil {
		return s.withSeatsErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rows, _ := s.ReadSeats(ctx, seatIDs)
	tx := &stubTx{store: s, pending: make(map[uint64]model.Seat, len(rows))}
	for _, r := range rows {
		tx.pending[r.ID] = r
	}
	if err := fn(rows, tx); err != nil {
		return err
	}
	for id, seat := range tx.pending {
		s.seats[id] = seat
	}
	if s.afterTx != nil {
		s.afterTx()
	}
	return nil
}

func (s *stubStore) ReadSeats(ctx context.Context, seatIDs []uint64) ([]model.Seat, error) {
	ids := append([]uint64(nil), seatIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	rows := make([]model.Seat, 0, len(ids))
	for _, id := range ids {
		if seat, ok := s.seats[id]; ok {
			rows = append(rows, seat)
		}
	}
	return rows, nil
}

func (s *stubStore) ExpiredSeatIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	return nil, nil
}

func (s *stubStore) SeatIDsByBooking(ctx context.Context, bookingID string) ([]uint64, error) {
	var ids []uint64
	for id, seat := range s.seats {
		if seat.Status == model.SeatBooked && seat.BookingID != nil && *seat.BookingID == bookingID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type stubTx struct {
	store   *stubStore
	pending map[uint64]model.Seat
}

func (t *stubTx) SetLocked(ctx context.Context, seatIDs []uint64, holder model.HolderID, expiresAt time.Time) error {
	for _, id := range seatIDs {
		seat := t.pending[id]
		h, exp := holder, expiresAt
		seat.Status = model.SeatLocked
		seat.HolderID = &h
		seat.LockExpiresAt = &exp
		seat.BookingID = nil
		t.pending[id] = seat
	}
	return nil
}

func (t *stubTx) SetAvailable(ctx context.Context, seatIDs []uint64) error {
	for _, id := range seatIDs {
		seat := t.pending[id]
		seat.Status = model.SeatAvailable
		seat.HolderID = nil
		seat.LockExpiresAt = nil
		seat.BookingID = nil
		t.pending[id] = seat
	}
	return nil
}

func (t *stubTx) SetBooked(ctx context.Context, seatIDs []uint64, bookingID string) error {
	for _, id := range seatIDs {
		seat := t.pending[id]
		b := bookingID
		seat.Status = model.SeatBooked
		seat.HolderID = nil
		seat.LockExpiresAt = nil
		seat.BookingID = &b
		t.pending[id] = seat
	}
	return nil
}

func availableSeat(id, eventID uint64) model.Seat {
	return model.Seat{
		ID:         id,
		EventID:    eventID,
		Section:    "A",
		RowLabel:   "A",
		SeatNumber: uint32(id),
		PriceCents: 2500,
		Currency:   "USD",
		Status:     model.SeatAvailable,
	}
}

func lockedSeat(id, eventID uint64, holder model.HolderID, expiresAt time.Time) model.Seat {
	seat := availableSeat(id, eventID)
	seat.Status = model.SeatLocked
	seat.HolderID = &holder
	seat.LockExpiresAt = &expiresAt
	return seat
}

func newTestHandler(store engine.SeatStore) *handler.SeatLockHandler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	manager := engine.NewLockManager(logger, store, nil, engine.DefaultLockPolicy(), nil, nil)
	promoter := engine.NewReservationPromoter(logger, store, nil, nil, nil)
	return handler.NewSeatLockHandler(logger, manager, promoter, repository.NewBookingRepo(logger, nil))
}

func doRequest(t *testing.T, h echo.HandlerFunc, method, body string, holder model.HolderID) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/v1/seats/lock", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if holder != "" {
		c.Set(middleware.HolderContextKey, holder)
	}
	require.NoError(t, h(c))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLockSeats_Created(t *testing.T) {
	store := newStubStore(availableSeat(1, 10), availableSeat(2, 10))
	h := newTestHandler(store)

	rec := doRequest(t, h.LockSeats, http.MethodPost, `{"seat_ids":[1,2]}`, "user:7")
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.ElementsMatch(t, []interface{}{float64(1), float64(2)}, body["locked"])
	assert.NotEmpty(t, body["expires_at"])
}

func TestLockSeats_ConflictNamesSeats(t *testing.T) {
	store := newStubStore(
		availableSeat(1, 10),
		lockedSeat(2, 10, "user:other", time.Now().UTC().Add(time.Minute)),
	)
	h := newTestHandler(store)

	rec := doRequest(t, h.LockSeats, http.MethodPost, `{"seat_ids":[1,2]}`, "user:7")
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, []interface{}{float64(2)}, body["unavailable"])

	// All-or-nothing: the eligible seat stayed untouched.
	assert.Equal(t, model.SeatAvailable, store.seats[1].Status)
}

func TestLockSeats_UnknownSeatIs404(t *testing.T) {
	store := newStubStore(availableSeat(1, 10))
	h := newTestHandler(store)

	rec := doRequest(t, h.LockSeats, http.MethodPost, `{"seat_ids":[1,99]}`, "user:7")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []interface{}{float64(99)}, decode(t, rec)["missing"])
}

func TestLockSeats_EmptyBodyIs400(t *testing.T) {
	h := newTestHandler(newStubStore())

	rec := doRequest(t, h.LockSeats, http.MethodPost, `{"seat_ids":[]}`, "user:7")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLockSeats_ContentionIs503(t *testing.T) {
	// A lock-wait timeout rolled the transaction back with no partial
	// mutation, so the client gets a retry hint, never a conflict.
	store := newStubStore(availableSeat(1, 10))
	store.withSeatsErr = engine.ErrTxTimeout
	h := newTestHandler(store)

	rec := doRequest(t, h.LockSeats, http.MethodPost, `{"seat_ids":[1]}`, "user:7")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, model.SeatAvailable, store.seats[1].Status)
}

func TestConfirmSeats_ContentionIs503(t *testing.T) {
	store := newStubStore(availableSeat(1, 10))
	store.withSeatsErr = engine.ErrTxTimeout
	h := newTestHandler(store)

	rec := doRequest(t, h.ConfirmSeats, http.MethodPost, `{"seat_ids":[1]}`, "user:7")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestReleaseSeats_AlwaysOK(t *testing.T) {
	store := newStubStore(availableSeat(1, 10))
	h := newTestHandler(store)

	// Nothing held: still a 200 with an empty list, not an error.
	rec := doRequest(t, h.ReleaseSeats, http.MethodDelete, `{"seat_ids":[1]}`, "user:7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, decode(t, rec)["released"])
}

func TestExtendLock_LapsedIsConflict(t *testing.T) {
	store := newStubStore(lockedSeat(1, 10, "user:7", time.Now().UTC().Add(-time.Minute)))
	h := newTestHandler(store)

	rec := doRequest(t, h.ExtendLock, http.MethodPatch, `{"seat_ids":[1]}`, "user:7")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConfirmSeats_WithoutHoldIsConflict(t *testing.T) {
	store := newStubStore(availableSeat(1, 10))
	h := newTestHandler(store)

	rec := doRequest(t, h.ConfirmSeats, http.MethodPost, `{"seat_ids":[1]}`, "user:7")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, []interface{}{float64(1)}, decode(t, rec)["unavailable"])
	assert.Equal(t, model.SeatAvailable, store.seats[1].Status)
}

func TestConfirmSeats_CompensatesAfterClientDisconnect(t *testing.T) {
	store := newStubStore(availableSeat(1, 10))
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	manager := engine.NewLockManager(logger, store, nil, engine.DefaultLockPolicy(), nil, nil)
	promoter := engine.NewReservationPromoter(logger, store, nil, nil, nil)

	// An unreachable database makes booking creation fail after the seats
	// were already promoted.
	db, err := sql.Open("mysql", "seats@tcp(127.0.0.1:1)/seats")
	require.NoError(t, err)
	defer db.Close()
	h := handler.NewSeatLockHandler(logger, manager, promoter, repository.NewBookingRepo(logger, db))

	_, err = manager.LockSeats(context.Background(), []uint64{1}, "user:7", 0)
	require.NoError(t, err)

	// The client disconnects the moment promotion commits; compensation
	// must still free the seats.
	reqCtx, disconnect := context.WithCancel(context.Background())
	defer disconnect()
	store.afterTx = func() {
		store.afterTx = nil
		disconnect()
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/seats/confirm", strings.NewReader(`{"seat_ids":[1]}`)).WithContext(reqCtx)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.HolderContextKey, model.HolderID("user:7"))
	require.NoError(t, h.ConfirmSeats(c))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, model.SeatAvailable, store.seats[1].Status)
	assert.Nil(t, store.seats[1].BookingID)
}

func TestCheckSeats_ReportsStates(t *testing.T) {
	store := newStubStore(
		availableSeat(1, 10),
		lockedSeat(2, 10, "user:7", time.Now().UTC().Add(time.Minute)),
	)
	h := newTestHandler(store)

	rec := doRequest(t, h.CheckSeats, http.MethodPost, `{"seat_ids":[1,2]}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	seats, ok := decode(t, rec)["seats"].([]interface{})
	require.True(t, ok)
	require.Len(t, seats, 2)

	byID := make(map[float64]map[string]interface{}, len(seats))
	for _, raw := range seats {
		item := raw.(map[string]interface{})
		byID[item["seat_id"].(float64)] = item
	}
	assert.Equal(t, true, byID[1]["available"])
	assert.Equal(t, string(model.SeatAvailable), byID[1]["status"])
	assert.Equal(t, false, byID[2]["available"])
	assert.Equal(t, string(model.SeatLocked), byID[2]["status"])
	assert.Equal(t, "user:7", byID[2]["holder_id"])
}
