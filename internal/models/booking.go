package models

import "time"

// BookingStatus is the lifecycle state of a booking request.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingAccepted  BookingStatus = "ACCEPTED"
	BookingRejected  BookingStatus = "REJECTED"
	BookingCancelled BookingStatus = "CANCELLED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:  {BookingAccepted, BookingRejected, BookingCancelled},
	BookingAccepted: {BookingCancelled},
}

// CanTransition reports whether a booking may move from s to next.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Holding reports whether the booking still occupies the teacher's time.
func (s BookingStatus) Holding() bool {
	return s == BookingPending || s == BookingAccepted
}

// Booking is a student's request for a session with a teacher.
type Booking struct {
	ID                  string        `db:"id" json:"id"`
	TeacherID           string        `db:"teacher_id" json:"teacher_id"`
	StudentID           string        `db:"student_id" json:"student_id"`
	Subject             string        `db:"subject" json:"subject"`
	StartAt             time.Time     `db:"start_at" json:"start_at"`
	EndAt               time.Time     `db:"end_at" json:"end_at"`
	DurationMinutes     int           `db:"duration_minutes" json:"duration_minutes"`
	Status              BookingStatus `db:"status" json:"status"`
	Note                *string       `db:"note" json:"note,omitempty"`
	AvailabilityVersion int           `db:"availability_version" json:"availability_version"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// BookingFilter describes query params for listing bookings.
type BookingFilter struct {
	TeacherID string
	StudentID string
	Status    BookingStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}
