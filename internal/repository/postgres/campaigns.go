package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/lumenmail/campaignd/internal/campaign"
)

// CampaignStore persists campaign records and runs the status-guarded
// transition updates. Guards live in the WHERE clause so two concurrent
// admins cannot both win a transition; the loser sees ErrConflict.
type CampaignStore struct {
	db *sql.DB
}

// NewCampaignStore returns a store over db.
func NewCampaignStore(db *sql.DB) *CampaignStore { return &CampaignStore{db: db} }

const campaignColumns = `id, name, subject, preheader, from_name, from_email,
	html_content, plain_content, include_tags, exclude_tags, status,
	total_recipients, sent_count, open_count, click_count, bounce_count,
	unsubscribe_count, spam_count,
	scheduled_at, started_at, completed_at, test_sent_at, COALESCE(test_sent_to, ''),
	created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*campaign.Campaign, error) {
	var c campaign.Campaign
	var scheduledAt, startedAt, completedAt, testSentAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.Name, &c.Subject, &c.Preheader, &c.FromName, &c.FromEmail,
		&c.HTMLContent, &c.PlainContent, pq.Array(&c.IncludeTags), pq.Array(&c.ExcludeTags), &c.Status,
		&c.TotalRecipients, &c.SentCount, &c.OpenCount, &c.ClickCount, &c.BounceCount,
		&c.UnsubscribeCount, &c.SpamCount,
		&scheduledAt, &startedAt, &completedAt, &testSentAt, &c.TestSentTo,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if scheduledAt.Valid {
		c.ScheduledAt = &scheduledAt.Time
	}
	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	if testSentAt.Valid {
		c.TestSentAt = &testSentAt.Time
	}
	return &c, nil
}

// Create inserts a new draft campaign.
func (s *CampaignStore) Create(ctx context.Context, in *campaign.Input) (*campaign.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO campaigns (name, subject, preheader, from_name, from_email,
			html_content, plain_content, include_tags, exclude_tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+campaignColumns,
		in.Name, in.Subject, in.Preheader, in.FromName, in.FromEmail,
		in.HTMLContent, in.PlainContent,
		pq.Array(sliceOrEmpty(in.IncludeTags)), pq.Array(sliceOrEmpty(in.ExcludeTags)))
	return scanCampaign(row)
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Get loads one campaign by id.
func (s *CampaignStore) Get(ctx context.Context, id string) (*campaign.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// ListFilter narrows List output.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// List returns a page of campaigns, newest first, plus the unpaged total.
func (s *CampaignStore) List(ctx context.Context, f ListFilter) ([]campaign.Campaign, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR subject ILIKE $%d)", len(args), len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM campaigns WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM campaigns WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		campaignColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []campaign.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// Update replaces campaign content. Only draft and scheduled campaigns are
// editable; anything further along returns ErrConflict. A test send is not
// invalidated by edits.
func (s *CampaignStore) Update(ctx context.Context, id string, in *campaign.Input) (*campaign.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE campaigns
		SET name = $2, subject = $3, preheader = $4, from_name = $5, from_email = $6,
			html_content = $7, plain_content = $8, include_tags = $9, exclude_tags = $10,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('draft', 'scheduled')
		RETURNING `+campaignColumns,
		id, in.Name, in.Subject, in.Preheader, in.FromName, in.FromEmail,
		in.HTMLContent, in.PlainContent,
		pq.Array(sliceOrEmpty(in.IncludeTags)), pq.Array(sliceOrEmpty(in.ExcludeTags)))
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, s.notFoundOrConflict(ctx, id)
	}
	return c, err
}

// Delete removes a draft campaign. Non-drafts are kept for history.
func (s *CampaignStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM campaigns WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.notFoundOrConflict(ctx, id)
	}
	return nil
}

// Duplicate copies a campaign's content into a fresh draft.
func (s *CampaignStore) Duplicate(ctx context.Context, id string) (*campaign.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO campaigns (name, subject, preheader, from_name, from_email,
			html_content, plain_content, include_tags, exclude_tags)
		SELECT name || ' (copy)', subject, preheader, from_name, from_email,
			html_content, plain_content, include_tags, exclude_tags
		FROM campaigns WHERE id = $1
		RETURNING `+campaignColumns, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// SetTestSent records a successful test send.
func (s *CampaignStore) SetTestSent(ctx context.Context, id, email string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET test_sent_at = NOW(), test_sent_to = $2, updated_at = NOW()
		WHERE id = $1`, id, email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Schedule moves a draft to scheduled at the given time.
func (s *CampaignStore) Schedule(ctx context.Context, id string, at time.Time) error {
	return s.guardedUpdate(ctx, id, `
		UPDATE campaigns SET status = 'scheduled', scheduled_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'draft'`, at)
}

// Unschedule reverts a scheduled campaign to draft.
func (s *CampaignStore) Unschedule(ctx context.Context, id string) error {
	return s.guardedUpdate(ctx, id, `
		UPDATE campaigns SET status = 'draft', scheduled_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`)
}

// Pause suspends delivery. The send pool stops claiming the moment the
// status flips; recipient rows are untouched.
func (s *CampaignStore) Pause(ctx context.Context, id string) error {
	return s.guardedUpdate(ctx, id, `
		UPDATE campaigns SET status = 'paused', updated_at = NOW()
		WHERE id = $1 AND status IN ('scheduled', 'sending')`)
}

// Resume puts a paused campaign back into delivery.
func (s *CampaignStore) Resume(ctx context.Context, id string) error {
	return s.guardedUpdate(ctx, id, `
		UPDATE campaigns SET status = 'sending', updated_at = NOW()
		WHERE id = $1 AND status = 'paused'`)
}

// Cancel terminally stops a campaign. Recipients already sent keep their
// status; pending rows are simply never claimed again.
func (s *CampaignStore) Cancel(ctx context.Context, id string) error {
	return s.guardedUpdate(ctx, id, `
		UPDATE campaigns SET status = 'cancelled', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('scheduled', 'sending', 'paused')`)
}

// StartSending flips a campaign into sending and enqueues the dispatch
// record in the same transaction, so the worker handoff cannot be lost
// between the status flip and the signal.
func (s *CampaignStore) StartSending(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sending', started_at = COALESCE(started_at, NOW()),
			scheduled_at = COALESCE(scheduled_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND status IN ('draft', 'scheduled')`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.notFoundOrConflict(ctx, id)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dispatch_outbox (campaign_id, kind) VALUES ($1, 'process_queue')`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Complete finishes a drained campaign. failedOut marks campaigns whose
// queue ended with only failures.
func (s *CampaignStore) Complete(ctx context.Context, id string, failedOut bool) error {
	status := "sent"
	if failedOut {
		status = "failed"
	}
	return s.guardedUpdate(ctx, id, `
		UPDATE campaigns SET status = '`+status+`', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'sending'`)
}

// SetTotalRecipients records the queue size after a build.
func (s *CampaignStore) SetTotalRecipients(ctx context.Context, id string, n int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET total_recipients = $2, updated_at = NOW() WHERE id = $1`, id, n)
	return err
}

// DueScheduled returns ids of scheduled campaigns whose time has come.
func (s *CampaignStore) DueScheduled(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM campaigns
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *CampaignStore) guardedUpdate(ctx context.Context, id, query string, extra ...interface{}) error {
	args := append([]interface{}{id}, extra...)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.notFoundOrConflict(ctx, id)
	}
	return nil
}

// notFoundOrConflict distinguishes a missing row from a guard miss.
func (s *CampaignStore) notFoundOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
