package models

import "time"

// NotificationType names the event a notification reports.
type NotificationType string

const (
	NotificationBookingRequested NotificationType = "booking.requested"
	NotificationBookingAccepted  NotificationType = "booking.accepted"
	NotificationBookingRejected  NotificationType = "booking.rejected"
	NotificationBookingCancelled NotificationType = "booking.cancelled"
)

// Notification is an in-app message for a user.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Body      string           `db:"body" json:"body"`
	BookingID *string          `db:"booking_id" json:"booking_id,omitempty"`
	ReadAt    *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
