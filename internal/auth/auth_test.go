package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := FromContext(r.Context())
		w.Write([]byte(string(session.Role)))
	})
}

func TestMiddlewareValidToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT user_id, role FROM api_tokens`).
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role"}).AddRow("u-1", "admin"))

	h := Middleware(NewTokenStore(db), true)(okHandler())
	req := httptest.NewRequest("GET", "/api/campaigns", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "admin", rr.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddlewareMissingToken(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	h := Middleware(NewTokenStore(db), true)(okHandler())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/campaigns", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "missing bearer token")
}

func TestMiddlewareRevokedToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT user_id, role FROM api_tokens`).
		WithArgs("tok-revoked").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role"}))

	h := Middleware(NewTokenStore(db), true)(okHandler())
	req := httptest.NewRequest("GET", "/api/campaigns", nil)
	req.Header.Set("Authorization", "Bearer tok-revoked")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddlewareDisabledRunsAsAdmin(t *testing.T) {
	h := Middleware(nil, false)(okHandler())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/campaigns", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "admin", rr.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("POST", "/api/campaigns", nil)
	req = req.WithContext(WithSession(req.Context(), &Session{UserID: "u-1", Role: RoleViewer}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest("POST", "/api/campaigns", nil)
	req = req.WithContext(WithSession(req.Context(), &Session{UserID: "u-1", Role: RoleAdmin}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "bearer  tok-space ")
	assert.Equal(t, "tok-space", bearerToken(req))

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "", bearerToken(req))
}
