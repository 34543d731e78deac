package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lumenmail/campaignd/internal/campaign"
)

// EventStore appends engagement events and applies the matching recipient
// status promotion plus campaign counter bump in one transaction. The
// event log itself is append-only; repeat signals produce repeat rows
// while the counters only move on the first promotion.
type EventStore struct {
	db *sql.DB
}

// NewEventStore returns a store over db.
func NewEventStore(db *sql.DB) *EventStore { return &EventStore{db: db} }

// EventMeta carries the request attributes recorded with an event.
type EventMeta struct {
	DeviceType string
	Country    string
	UserAgent  string
}

func (m EventMeta) device() string {
	if m.DeviceType == "" {
		return "unknown"
	}
	return m.DeviceType
}

// RecordOpen logs an open for the recipient behind trackingID. The first
// open promotes the recipient from sent to opened and increments the
// campaign's unique open counter; later opens only append to the log.
func (s *EventStore) RecordOpen(ctx context.Context, trackingID string, meta EventMeta) error {
	return s.record(ctx, trackingID, campaign.EventOpen, "", meta, `
		UPDATE campaign_recipients SET status = 'opened', updated_at = NOW()
		WHERE id = $1 AND status = 'sent'`, "open_count")
}

// RecordClick logs a click. A click promotes sent or opened recipients to
// clicked; the campaign click counter moves only on that first promotion.
func (s *EventStore) RecordClick(ctx context.Context, trackingID, linkURL string, meta EventMeta) error {
	return s.record(ctx, trackingID, campaign.EventClick, linkURL, meta, `
		UPDATE campaign_recipients SET status = 'clicked', updated_at = NOW()
		WHERE id = $1 AND status IN ('sent', 'opened')`, "click_count")
}

// RecordBounce logs a bounce and terminally marks the recipient with the
// provider-reported reason.
func (s *EventStore) RecordBounce(ctx context.Context, trackingID, reason string, meta EventMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := recipientForUpdate(ctx, tx, trackingID)
	if err != nil {
		return err
	}

	if err := insertEvent(ctx, tx, r, campaign.EventBounce, "", meta); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE campaign_recipients SET status = 'bounced', last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'sent')`, r.ID, reason)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE campaigns SET bounce_count = bounce_count + 1, updated_at = NOW()
			WHERE id = $1`, r.CampaignID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordSpam logs a spam complaint. Repeat complaints from the same
// recipient append to the log; the campaign counter moves once.
func (s *EventStore) RecordSpam(ctx context.Context, trackingID string, meta EventMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := recipientForUpdate(ctx, tx, trackingID)
	if err != nil {
		return err
	}

	if err := insertEvent(ctx, tx, r, campaign.EventSpam, "", meta); err != nil {
		return err
	}
	// The event just inserted is counted, so = 1 means first complaint.
	if _, err := tx.ExecContext(ctx, `
		UPDATE campaigns SET spam_count = spam_count + 1, updated_at = NOW()
		WHERE id = $1 AND (SELECT COUNT(*) FROM campaign_events
			WHERE recipient_id = $2 AND event_type = 'spam') = 1`, r.CampaignID, r.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordUnsubscribe logs an unsubscribe and stamps the audience member so
// future queue builds skip them. The campaign counter moves only when the
// stamp is new; repeat visits to the unsubscribe link just append.
func (s *EventStore) RecordUnsubscribe(ctx context.Context, trackingID string, meta EventMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := recipientForUpdate(ctx, tx, trackingID)
	if err != nil {
		return err
	}

	if err := insertEvent(ctx, tx, r, campaign.EventUnsubscribe, "", meta); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE audience_users SET unsubscribed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND unsubscribed_at IS NULL`, r.AudienceUserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE campaigns SET unsubscribe_count = unsubscribe_count + 1, updated_at = NOW()
			WHERE id = $1`, r.CampaignID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// record is the shared open/click path: append the event, run the
// promotion update, and bump the counter only when the promotion actually
// changed a row.
func (s *EventStore) record(ctx context.Context, trackingID string, typ campaign.EventType,
	linkURL string, meta EventMeta, promotion, counter string) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := recipientForUpdate(ctx, tx, trackingID)
	if err != nil {
		return err
	}

	if err := insertEvent(ctx, tx, r, typ, linkURL, meta); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, promotion, r.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE campaigns SET %s = %s + 1, updated_at = NOW() WHERE id = $1`,
			counter, counter), r.CampaignID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func recipientForUpdate(ctx context.Context, tx *sql.Tx, trackingID string) (*campaign.Recipient, error) {
	var r campaign.Recipient
	err := tx.QueryRowContext(ctx, `
		SELECT id, campaign_id, audience_user_id, status FROM campaign_recipients
		WHERE tracking_id = $1
		FOR UPDATE`, trackingID).Scan(&r.ID, &r.CampaignID, &r.AudienceUserID, &r.Status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, r *campaign.Recipient,
	typ campaign.EventType, linkURL string, meta EventMeta) error {

	var link sql.NullString
	if linkURL != "" {
		link = sql.NullString{String: linkURL, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO campaign_events (campaign_id, recipient_id, event_type, link_url, device_type, country, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.CampaignID, r.ID, typ, link, meta.device(), meta.Country, meta.UserAgent)
	return err
}

const eventColumns = `id, campaign_id, COALESCE(recipient_id::text, ''), event_type,
	COALESCE(link_url, ''), device_type, country, user_agent, created_at`

func scanEvents(rows *sql.Rows) ([]campaign.Event, error) {
	defer rows.Close()
	var out []campaign.Event
	for rows.Next() {
		var e campaign.Event
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.RecipientID, &e.Type,
			&e.LinkURL, &e.DeviceType, &e.Country, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByCampaign returns a campaign's most recent events, capped by limit.
func (s *EventStore) ListByCampaign(ctx context.Context, campaignID string, limit int) ([]campaign.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM campaign_events
		WHERE campaign_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// ListRecent returns the most recent events across every campaign, capped
// by limit. Feeds the cross-campaign send-time recommendation.
func (s *EventStore) ListRecent(ctx context.Context, limit int) ([]campaign.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM campaign_events
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}
