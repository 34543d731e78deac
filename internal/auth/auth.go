package auth

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"github.com/lumenmail/campaignd/internal/pkg/logger"
)

// Role controls what an API token may do. Viewers read, admins mutate.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

// Session is the authenticated identity attached to a request.
type Session struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Admin reports whether the session may perform mutating operations.
func (s *Session) Admin() bool { return s.Role == RoleAdmin }

type ctxKey struct{}

// FromContext returns the Session stored by the middleware, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}

// WithSession returns ctx carrying s. Exposed for handler tests.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// TokenStore resolves bearer tokens against the api_tokens table.
type TokenStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewTokenStore returns a store over db.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db, log: logger.Component("auth")}
}

// Lookup resolves a token to its session. Revoked and unknown tokens both
// come back as sql.ErrNoRows.
func (t *TokenStore) Lookup(ctx context.Context, token string) (*Session, error) {
	var s Session
	err := t.db.QueryRowContext(ctx, `
		SELECT user_id, role FROM api_tokens
		WHERE token = $1 AND revoked_at IS NULL`, token).Scan(&s.UserID, &s.Role)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Middleware authenticates requests with an Authorization: Bearer token.
// When enabled is false every request runs as a local admin, which keeps
// development setups tokenless.
func Middleware(store *TokenStore, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), &Session{UserID: "local", Role: RoleAdmin})))
				return
			}

			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			session, err := store.Lookup(r.Context(), token)
			if err == sql.ErrNoRows {
				unauthorized(w, "invalid token")
				return
			}
			if err != nil {
				store.log.Error("token lookup failed", "error", err.Error())
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// RequireAdmin rejects sessions without the admin role. Must run after
// Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := FromContext(r.Context())
		if !ok || !session.Admin() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"admin role required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
