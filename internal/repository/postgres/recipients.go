package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lumenmail/campaignd/internal/campaign"
)

// RecipientStore persists the per-campaign send queue.
type RecipientStore struct {
	db *sql.DB
}

// NewRecipientStore returns a store over db.
func NewRecipientStore(db *sql.DB) *RecipientStore { return &RecipientStore{db: db} }

const recipientColumns = `id, campaign_id, audience_user_id, email, first_name,
	status, tracking_id, last_error, sent_at, created_at`

func scanRecipient(row interface{ Scan(...interface{}) error }) (*campaign.Recipient, error) {
	var r campaign.Recipient
	var sentAt sql.NullTime
	err := row.Scan(&r.ID, &r.CampaignID, &r.AudienceUserID, &r.Email, &r.FirstName,
		&r.Status, &r.TrackingID, &r.LastError, &sentAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		r.SentAt = &sentAt.Time
	}
	return &r, nil
}

// BuildQueue snapshots every eligible audience member into the campaign's
// recipient queue and records the resulting queue size on the campaign.
// Inserts run in chunks and conflict-ignore on (campaign_id, audience_user_id),
// so a retried or concurrent build never duplicates a recipient. Returns the
// total number of queued recipients.
func (s *RecipientStore) BuildQueue(ctx context.Context, campaignID string, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = 1000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, first_name FROM audience_users
		WHERE is_marketing_allowed = true AND unsubscribed_at IS NULL
		ORDER BY created_at`)
	if err != nil {
		return 0, fmt.Errorf("select audience: %w", err)
	}
	defer rows.Close()

	type member struct{ id, email, firstName string }
	var members []member
	for rows.Next() {
		var m member
		if err := rows.Scan(&m.id, &m.email, &m.firstName); err != nil {
			return 0, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for start := 0; start < len(members); start += chunkSize {
		end := start + chunkSize
		if end > len(members) {
			end = len(members)
		}
		chunk := members[start:end]

		placeholders := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*5+1)
		args = append(args, campaignID)
		for _, m := range chunk {
			base := len(args)
			placeholders = append(placeholders,
				fmt.Sprintf("($1, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
			args = append(args, m.id, m.email, m.firstName, uuid.NewString())
		}

		query := `INSERT INTO campaign_recipients (campaign_id, audience_user_id, email, first_name, tracking_id) VALUES ` +
			strings.Join(placeholders, ", ") +
			` ON CONFLICT (campaign_id, audience_user_id) DO NOTHING`
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("insert recipients: %w", err)
		}
	}

	// Count what actually landed rather than trusting len(members); a
	// concurrent build may have inserted part of the set first.
	var total int
	err = s.db.QueryRowContext(ctx, `
		UPDATE campaigns SET total_recipients = sub.n, updated_at = NOW()
		FROM (SELECT COUNT(*) AS n FROM campaign_recipients WHERE campaign_id = $1) sub
		WHERE id = $1
		RETURNING sub.n`, campaignID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("record queue size: %w", err)
	}
	return total, nil
}

// ClaimPending returns the next batch of pending recipients, oldest first.
// The per-campaign send lock serializes drainers, so a plain read is safe.
func (s *RecipientStore) ClaimPending(ctx context.Context, campaignID string, limit int) ([]campaign.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recipientColumns+` FROM campaign_recipients
		WHERE campaign_id = $1 AND status = 'pending'
		ORDER BY created_at
		LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// MarkSent records a delivery and bumps the campaign counter. The status
// guard makes retried deliveries idempotent on the counter.
func (s *RecipientStore) MarkSent(ctx context.Context, recipientID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = 'sent', sent_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, recipientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE campaigns SET sent_count = sent_count + 1, updated_at = NOW()
		WHERE id = (SELECT campaign_id FROM campaign_recipients WHERE id = $1)`, recipientID); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkFailed records a permanent delivery failure.
func (s *RecipientStore) MarkFailed(ctx context.Context, recipientID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = 'failed', last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, recipientID, reason)
	return err
}

// PendingCount reports how many recipients still wait in the queue.
func (s *RecipientStore) PendingCount(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM campaign_recipients
		WHERE campaign_id = $1 AND status = 'pending'`, campaignID).Scan(&n)
	return n, err
}

// SentCount reports how many recipients left the queue successfully,
// including those that went on to open or click.
func (s *RecipientStore) SentCount(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM campaign_recipients
		WHERE campaign_id = $1 AND status IN ('sent', 'opened', 'clicked')`, campaignID).Scan(&n)
	return n, err
}

// ByTrackingID resolves a tracking token to its recipient.
func (s *RecipientStore) ByTrackingID(ctx context.Context, trackingID string) (*campaign.Recipient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recipientColumns+` FROM campaign_recipients WHERE tracking_id = $1`, trackingID)
	r, err := scanRecipient(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

// ListByCampaign returns a page of a campaign's queue for the admin view.
func (s *RecipientStore) ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]campaign.Recipient, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recipientColumns+` FROM campaign_recipients
		WHERE campaign_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`, campaignID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
