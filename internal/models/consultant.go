package models

import "time"

// Consultant is the public profile of a counseling provider.
type Consultant struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	FullName       string    `db:"full_name" json:"full_name"`
	Specialization string    `db:"specialization" json:"specialization"`
	Bio            string    `db:"bio" json:"bio"`
	HourlyRate     int64     `db:"hourly_rate" json:"hourly_rate"`
	RatingAverage  float64   `db:"rating_average" json:"rating_average"`
	RatingCount    int       `db:"rating_count" json:"rating_count"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ConsultantFilter captures filtering criteria for the directory listing.
type ConsultantFilter struct {
	Specialization string
	Active         *bool
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
