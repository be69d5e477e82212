package models

import "time"

// SlotStatus enumerates the lifecycle of an availability slot.
type SlotStatus string

const (
	SlotStatusFree   SlotStatus = "FREE"
	SlotStatusHeld   SlotStatus = "HELD"
	SlotStatusBooked SlotStatus = "BOOKED"
)

// AvailabilitySlot is a published time interval a consultant offers.
// Version is a monotonic counter; every status change goes through a
// compare-and-set on (id, version) so concurrent reservations cannot
// both succeed.
type AvailabilitySlot struct {
	ID            string     `db:"id" json:"id"`
	ConsultantID  string     `db:"consultant_id" json:"consultant_id"`
	StartTime     time.Time  `db:"start_time" json:"start_time"`
	EndTime       time.Time  `db:"end_time" json:"end_time"`
	Status        SlotStatus `db:"status" json:"status"`
	Version       int64      `db:"version" json:"version"`
	HeldBy        *string    `db:"held_by" json:"held_by,omitempty"`
	HoldExpiresAt *time.Time `db:"hold_expires_at" json:"hold_expires_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Overlaps reports whether the slot's half-open interval [start, end)
// intersects the given range.
func (s AvailabilitySlot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}

// SlotFilter describes query params for listing availability.
type SlotFilter struct {
	ConsultantID string
	From         time.Time
	To           time.Time
	Page         int
	PageSize     int
}
