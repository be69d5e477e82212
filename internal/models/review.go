package models

import "time"

// Review is client feedback for a completed session. At most one review
// exists per session, enforced by a unique index on session_id.
type Review struct {
	ID             string    `db:"id" json:"id"`
	SessionID      string    `db:"session_id" json:"session_id"`
	ConsultantID   string    `db:"consultant_id" json:"consultant_id"`
	ClientID       string    `db:"client_id" json:"-"`
	Rating         int       `db:"rating" json:"rating"`
	Comment        string    `db:"comment" json:"comment"`
	IsAnonymous    bool      `db:"is_anonymous" json:"is_anonymous"`
	PrivateComment *string   `db:"private_comment" json:"private_comment,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// PublicView strips fields that must not leak to non-admin callers.
func (r Review) PublicView() Review {
	cp := r
	cp.PrivateComment = nil
	if cp.IsAnonymous {
		cp.ClientID = ""
	}
	return cp
}

// ReviewFilter describes query params for listing consultant reviews.
type ReviewFilter struct {
	ConsultantID string
	MinRating    int
	Page         int
	PageSize     int
}
