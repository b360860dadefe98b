package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/tutorlink-api/pkg/availability"
)

// TeacherAvailability stores a teacher's recurring weekly availability document.
// Windows maps day keys (sun..sat) to "HH:MM-HH:MM" specs interpreted in UTC.
type TeacherAvailability struct {
	ID        string         `db:"id" json:"id,omitempty"`
	TeacherID string         `db:"teacher_id" json:"teacher_id"`
	Windows   types.JSONText `db:"windows" json:"windows" swaggertype:"object"`
	Version   int            `db:"version" json:"version"`
	CreatedAt time.Time      `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// AvailabilityCheckResult is the answer to "can this teacher be booked at this time".
type AvailabilityCheckResult struct {
	TeacherID       string                `json:"teacher_id"`
	StartAt         time.Time             `json:"start_at"`
	DurationMinutes int                   `json:"duration_minutes"`
	Version         int                   `json:"availability_version"`
	Decision        availability.Decision `json:"decision"`
}
