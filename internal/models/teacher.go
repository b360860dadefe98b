package models

import (
	"time"

	"github.com/lib/pq"
)

// Teacher represents a tutor listed in the marketplace.
type Teacher struct {
	ID         string         `db:"id" json:"id"`
	UserID     string         `db:"user_id" json:"user_id"`
	Email      string         `db:"email" json:"email"`
	FullName   string         `db:"full_name" json:"full_name"`
	Headline   *string        `db:"headline" json:"headline,omitempty"`
	Bio        *string        `db:"bio" json:"bio,omitempty"`
	Subjects   pq.StringArray `db:"subjects" json:"subjects"`
	HourlyRate float64        `db:"hourly_rate" json:"hourly_rate"`
	Active     bool           `db:"active" json:"active"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// TeacherFilter captures filtering options for discovering teachers.
type TeacherFilter struct {
	Search    string
	Subject   string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
