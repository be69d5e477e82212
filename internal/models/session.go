package models

import "time"

// SessionStatus enumerates the booking state machine.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusConfirmed SessionStatus = "CONFIRMED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are permitted.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// Valid reports whether the value is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPending, SessionStatusConfirmed, SessionStatusCompleted, SessionStatusCancelled:
		return true
	}
	return false
}

// Session is a booked consultation referencing a slot, consultant and client.
// A session never owns its slot; exactly one non-cancelled session may
// reference a slot at a time.
type Session struct {
	ID                 string        `db:"id" json:"id"`
	SlotID             string        `db:"slot_id" json:"slot_id"`
	ConsultantID       string        `db:"consultant_id" json:"consultant_id"`
	ClientID           string        `db:"client_id" json:"client_id"`
	Status             SessionStatus `db:"status" json:"status"`
	Notes              string        `db:"notes" json:"notes"`
	ContactChannel     string        `db:"contact_channel" json:"contact_channel,omitempty"`
	CancelledBy        *UserRole     `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason *string       `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancellationFee    *int          `db:"cancellation_fee_percent" json:"cancellation_fee_percent,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`

	// SlotStart is joined from the slot row for policy evaluation and
	// list views; it is not a column of the sessions table.
	SlotStart time.Time `db:"slot_start" json:"slot_start,omitempty"`
	SlotEnd   time.Time `db:"slot_end" json:"slot_end,omitempty"`
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	ConsultantID string
	ClientID     string
	Status       SessionStatus
	From         time.Time
	To           time.Time
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
