package campaign

import "time"

// RecipientStatus tracks a single recipient through delivery and engagement.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientOpened  RecipientStatus = "opened"
	RecipientClicked RecipientStatus = "clicked"
	RecipientBounced RecipientStatus = "bounced"
	RecipientFailed  RecipientStatus = "failed"
)

// Engaged reports whether the recipient opened or clicked.
func (s RecipientStatus) Engaged() bool {
	return s == RecipientOpened || s == RecipientClicked
}

// Recipient is one row of a campaign's send queue. Email and FirstName are
// snapshots from queue-build time and do not follow later audience edits.
type Recipient struct {
	ID             string          `json:"id"`
	CampaignID     string          `json:"campaign_id"`
	AudienceUserID string          `json:"audience_user_id"`
	Email          string          `json:"email"`
	FirstName      string          `json:"first_name"`
	Status         RecipientStatus `json:"status"`
	TrackingID     string          `json:"tracking_id"`
	LastError      string          `json:"last_error,omitempty"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// EventType classifies a tracking event.
type EventType string

const (
	EventOpen        EventType = "open"
	EventClick       EventType = "click"
	EventBounce      EventType = "bounce"
	EventUnsubscribe EventType = "unsubscribe"
	EventSpam        EventType = "spam"
)

// Event is one append-only engagement record. Repeat opens and clicks
// produce repeat rows; unique counts come from recipient status.
type Event struct {
	ID          string    `json:"id"`
	CampaignID  string    `json:"campaign_id"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Type        EventType `json:"event_type"`
	LinkURL     string    `json:"link_url,omitempty"`
	DeviceType  string    `json:"device_type"`
	Country     string    `json:"country,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
