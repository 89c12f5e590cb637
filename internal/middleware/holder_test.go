package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickethub/seat-reservation/internal/middleware"
	"github.com/tickethub/seat-reservation/internal/model"
)

const testSecret = "test-secret"

func resolveHolder(t *testing.T, decorate func(*http.Request)) (model.HolderID, *httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/seats/lock", nil)
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var holder model.HolderID
	mw := middleware.HolderIdentity(testSecret)
	err := mw(func(c echo.Context) error {
		holder = middleware.HolderFrom(c)
		return c.NoContent(http.StatusOK)
	})(c)
	return holder, rec, err
}

func signToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestHolderIdentity_AuthenticatedUser(t *testing.T) {
	holder, _, err := resolveHolder(t, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+signToken(t, "42"))
	})
	require.NoError(t, err)
	assert.Equal(t, model.HolderID("user:42"), holder)
}

func TestHolderIdentity_InvalidTokenRejected(t *testing.T) {
	_, rec, err := resolveHolder(t, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer not-a-token")
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHolderIdentity_ReusesLockerID(t *testing.T) {
	holder, rec, err := resolveHolder(t, func(req *http.Request) {
		req.Header.Set(middleware.LockerIDHeader, "abc-123")
	})
	require.NoError(t, err)
	assert.Equal(t, model.HolderID("guest:abc-123"), holder)
	assert.Equal(t, "abc-123", rec.Header().Get(middleware.LockerIDHeader))
}

func TestHolderIdentity_MintsLockerID(t *testing.T) {
	holder, rec, err := resolveHolder(t, nil)
	require.NoError(t, err)

	minted := rec.Header().Get(middleware.LockerIDHeader)
	require.NotEmpty(t, minted, "anonymous callers get a locker id to keep")
	assert.Equal(t, model.HolderID("guest:"+minted), holder)
}
