package campaign

// Status is the campaign lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusPaused    Status = "paused"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// transitions lists every allowed status change. Anything absent is
// rejected; sent, cancelled, and failed are terminal.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusScheduled, StatusSending},
	StatusScheduled: {StatusSending, StatusPaused, StatusDraft, StatusCancelled},
	StatusSending:   {StatusPaused, StatusSent, StatusCancelled, StatusFailed},
	StatusPaused:    {StatusSending, StatusCancelled},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusSending, StatusPaused,
		StatusSent, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Editable reports whether campaign content may still change. Once a
// campaign is in flight or finished its content is frozen.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusScheduled
}
