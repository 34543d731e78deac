package campaign

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinScheduleLeadMinutes is the minimum gap between now and a campaign's
// scheduled_at. Scheduling closer than this is rejected so the scheduler
// poll loop cannot miss the window.
const MinScheduleLeadMinutes = 5

// ErrTestSendRequired is returned when a campaign is scheduled or sent
// before a successful test send.
var ErrTestSendRequired = errors.New("campaign requires a test send before it can be sent")

// Campaign is the full campaign record as stored.
type Campaign struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Subject      string   `json:"subject"`
	Preheader    string   `json:"preheader"`
	FromName     string   `json:"from_name"`
	FromEmail    string   `json:"from_email"`
	HTMLContent  string   `json:"html_content"`
	PlainContent string   `json:"plain_content"`
	IncludeTags  []string `json:"include_tags"`
	ExcludeTags  []string `json:"exclude_tags"`

	Status Status `json:"status"`

	TotalRecipients  int `json:"total_recipients"`
	SentCount        int `json:"sent_count"`
	OpenCount        int `json:"open_count"`
	ClickCount       int `json:"click_count"`
	BounceCount      int `json:"bounce_count"`
	UnsubscribeCount int `json:"unsubscribe_count"`
	SpamCount        int `json:"spam_count"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	TestSentAt  *time.Time `json:"test_sent_at,omitempty"`
	TestSentTo  string     `json:"test_sent_to,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input is the create/update payload accepted by the admin API.
type Input struct {
	Name         string   `json:"name"`
	Subject      string   `json:"subject"`
	Preheader    string   `json:"preheader"`
	FromName     string   `json:"from_name"`
	FromEmail    string   `json:"from_email"`
	HTMLContent  string   `json:"html_content"`
	PlainContent string   `json:"plain_content"`
	IncludeTags  []string `json:"include_tags"`
	ExcludeTags  []string `json:"exclude_tags"`
}

// Validate checks an input payload for creation. Name is the only hard
// requirement at draft time; subject and content are enforced at send time.
func (in *Input) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("name is required")
	}
	if len(in.Name) > 255 {
		return errors.New("name must be 255 characters or less")
	}
	if in.FromEmail != "" && !strings.Contains(in.FromEmail, "@") {
		return fmt.Errorf("from_email %q is not a valid address", in.FromEmail)
	}
	return nil
}

// ValidateForSend checks that a campaign is complete enough to go out.
func (c *Campaign) ValidateForSend() error {
	if strings.TrimSpace(c.Subject) == "" {
		return errors.New("subject is required before sending")
	}
	if strings.TrimSpace(c.HTMLContent) == "" && strings.TrimSpace(c.PlainContent) == "" {
		return errors.New("campaign has no content")
	}
	if c.FromEmail == "" {
		return errors.New("from_email is required before sending")
	}
	if c.TestSentAt == nil {
		return ErrTestSendRequired
	}
	return nil
}

// ValidateSchedule checks a requested schedule time.
func ValidateSchedule(at time.Time, now time.Time) error {
	if at.Before(now.Add(MinScheduleLeadMinutes * time.Minute)) {
		return fmt.Errorf("scheduled_at must be at least %d minutes in the future", MinScheduleLeadMinutes)
	}
	return nil
}
