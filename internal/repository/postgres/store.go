// Package postgres holds the SQL persistence layer. Each store wraps the
// shared *sql.DB and keeps its statements inline next to the method that
// runs them.
package postgres

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a status-guarded update matches no rows,
// meaning the record moved to a state where the operation is not allowed.
var ErrConflict = errors.New("conflicting state")

// Store bundles the per-table stores over one connection pool.
type Store struct {
	Campaigns  *CampaignStore
	Recipients *RecipientStore
	Events     *EventStore
	Audience   *AudienceStore
	Outbox     *OutboxStore
}

// NewStore wires every table store onto db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		Campaigns:  &CampaignStore{db: db},
		Recipients: &RecipientStore{db: db},
		Events:     &EventStore{db: db},
		Audience:   &AudienceStore{db: db},
		Outbox:     &OutboxStore{db: db},
	}
}
