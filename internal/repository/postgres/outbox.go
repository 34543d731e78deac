package postgres

import (
	"context"
	"database/sql"
	"time"
)

// DispatchRecord is one queued handoff from the admin API to the delivery
// worker. Records are written transactionally with the campaign status
// flip and stay queued until the worker acknowledges them.
type DispatchRecord struct {
	ID         string
	CampaignID string
	Kind       string
	Attempts   int
	LastError  string
	CreatedAt  time.Time
}

// OutboxStore drains and acknowledges dispatch records.
type OutboxStore struct {
	db *sql.DB
}

// NewOutboxStore returns a store over db.
func NewOutboxStore(db *sql.DB) *OutboxStore { return &OutboxStore{db: db} }

// Pending claims up to limit queued records, oldest first, bumping their
// attempt counts. SKIP LOCKED keeps concurrent reconcilers off the same
// rows.
func (s *OutboxStore) Pending(ctx context.Context, limit int) ([]DispatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE dispatch_outbox
		SET attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM dispatch_outbox
			WHERE status = 'queued'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, campaign_id, kind, attempts, last_error, created_at`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DispatchRecord
	for rows.Next() {
		var r DispatchRecord
		if err := rows.Scan(&r.ID, &r.CampaignID, &r.Kind, &r.Attempts, &r.LastError, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ack marks a record as handled.
func (s *OutboxStore) Ack(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dispatch_outbox
		SET status = 'acked', acked_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'queued'`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// RecordError notes a failed handling attempt; the record stays queued for
// the next reconciliation pass.
func (s *OutboxStore) RecordError(ctx context.Context, id, msg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dispatch_outbox SET last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, msg)
	return err
}
