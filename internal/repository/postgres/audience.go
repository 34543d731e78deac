package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
)

// AudienceUser is one addressable member of the mailing audience.
type AudienceUser struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	IsMarketingAllowed bool       `json:"is_marketing_allowed"`
	UnsubscribedAt     *time.Time `json:"unsubscribed_at,omitempty"`
	Tags               []string   `json:"tags"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Eligible reports whether queue builds may include this member.
func (u *AudienceUser) Eligible() bool {
	return u.IsMarketingAllowed && u.UnsubscribedAt == nil
}

// AudienceStore manages audience members and their tags.
type AudienceStore struct {
	db *sql.DB
}

// NewAudienceStore returns a store over db.
func NewAudienceStore(db *sql.DB) *AudienceStore { return &AudienceStore{db: db} }

const audienceColumns = `u.id, u.email, u.first_name, u.last_name,
	u.is_marketing_allowed, u.unsubscribed_at,
	COALESCE(array_agg(t.tag) FILTER (WHERE t.tag IS NOT NULL), '{}'),
	u.created_at`

func scanAudienceUser(row interface{ Scan(...interface{}) error }) (*AudienceUser, error) {
	var u AudienceUser
	var unsubAt sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName,
		&u.IsMarketingAllowed, &unsubAt, pq.Array(&u.Tags), &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if unsubAt.Valid {
		u.UnsubscribedAt = &unsubAt.Time
	}
	return &u, nil
}

// Create registers a new audience member.
func (s *AudienceStore) Create(ctx context.Context, email, firstName, lastName string, marketingAllowed bool) (*AudienceUser, error) {
	var u AudienceUser
	var unsubAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audience_users (email, first_name, last_name, is_marketing_allowed)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, first_name, last_name, is_marketing_allowed, unsubscribed_at, created_at`,
		strings.ToLower(strings.TrimSpace(email)), firstName, lastName, marketingAllowed).
		Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.IsMarketingAllowed, &unsubAt, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Tags = []string{}
	return &u, nil
}

// Get loads one member with their tags.
func (s *AudienceStore) Get(ctx context.Context, id string) (*AudienceUser, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+audienceColumns+`
		FROM audience_users u
		LEFT JOIN audience_tags t ON t.audience_user_id = u.id
		WHERE u.id = $1
		GROUP BY u.id`, id)
	u, err := scanAudienceUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

// List returns a page of members, newest first, plus the unpaged total.
func (s *AudienceStore) List(ctx context.Context, limit, offset int) ([]AudienceUser, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audience_users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+audienceColumns+`
		FROM audience_users u
		LEFT JOIN audience_tags t ON t.audience_user_id = u.id
		GROUP BY u.id
		ORDER BY u.created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []AudienceUser
	for rows.Next() {
		u, err := scanAudienceUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

// CountEligible reports how many members a queue build would include.
func (s *AudienceStore) CountEligible(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audience_users
		WHERE is_marketing_allowed = true AND unsubscribed_at IS NULL`).Scan(&n)
	return n, err
}

// AddTag attaches a tag. Adding an existing tag is a no-op.
func (s *AudienceStore) AddTag(ctx context.Context, userID, tag string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audience_tags (audience_user_id, tag) VALUES ($1, $2)
		ON CONFLICT (audience_user_id, tag) DO NOTHING`, userID, tag)
	return err
}

// RemoveTag detaches a tag.
func (s *AudienceStore) RemoveTag(ctx context.Context, userID, tag string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM audience_tags WHERE audience_user_id = $1 AND tag = $2`, userID, tag)
	return err
}

// Unsubscribe stamps a member out of all future sends. Idempotent; the
// first timestamp wins.
func (s *AudienceStore) Unsubscribe(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE audience_users
		SET unsubscribed_at = COALESCE(unsubscribed_at, NOW()), updated_at = NOW()
		WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
