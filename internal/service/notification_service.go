package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorlink-api/internal/models"
	appErrors "github.com/noah-isme/tutorlink-api/pkg/errors"
	"github.com/noah-isme/tutorlink-api/pkg/jobs"
)

// NotificationJobType tags queue jobs carrying a notification to persist.
const NotificationJobType = "notification.deliver"

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, page, size int) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) (string, error)
}

// NotificationService fans booking events out to in-app notifications.
type NotificationService struct {
	repo   notificationRepository
	queue  jobEnqueuer
	logger *zap.Logger
}

// NewNotificationService constructs the service. Without a queue, notifications are written inline.
func NewNotificationService(repo notificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger}
}

// AttachQueue routes deliveries through a background queue whose handler is HandleJob.
func (s *NotificationService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// NotifyBooking informs a user about a booking event. Delivery failures are logged, never returned.
func (s *NotificationService) NotifyBooking(ctx context.Context, recipientID string, kind models.NotificationType, booking *models.Booking) {
	if s == nil || booking == nil || recipientID == "" {
		return
	}
	notification := buildBookingNotification(recipientID, kind, booking)

	if s.queue != nil {
		_, err := s.queue.Enqueue(ctx, jobs.Job{ID: notification.ID, Type: NotificationJobType, Payload: notification})
		if err == nil {
			return
		}
		s.logger.Warn("notification enqueue failed, delivering inline", zap.String("booking_id", booking.ID), zap.Error(err))
	}
	if err := s.repo.Create(ctx, &notification); err != nil {
		s.logger.Error("notification delivery failed", zap.String("booking_id", booking.ID), zap.String("type", string(kind)), zap.Error(err))
	}
}

// HandleJob persists a queued notification.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("dropping job with unexpected payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	if err := s.repo.Create(ctx, &notification); err != nil {
		return fmt.Errorf("deliver notification %s: %w", notification.ID, err)
	}
	s.logger.Debug("notification delivered", zap.String("notification_id", notification.ID), zap.String("user_id", notification.UserID))
	return nil
}

// List returns the caller's notifications.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, page, size int) ([]models.Notification, *models.Pagination, error) {
	items, total, err := s.repo.ListByUser(ctx, userID, unreadOnly, page, size)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkRead marks one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	ok, err := s.repo.MarkRead(ctx, userID, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notification")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

func buildBookingNotification(recipientID string, kind models.NotificationType, booking *models.Booking) models.Notification {
	when := booking.StartAt.UTC().Format("Mon 02 Jan 2006 15:04 MST")
	var title, body string
	switch kind {
	case models.NotificationBookingRequested:
		title = "New booking request"
		body = fmt.Sprintf("A student requested a %d-minute %s session on %s.", booking.DurationMinutes, booking.Subject, when)
	case models.NotificationBookingAccepted:
		title = "Booking accepted"
		body = fmt.Sprintf("Your %s session on %s was accepted.", booking.Subject, when)
	case models.NotificationBookingRejected:
		title = "Booking declined"
		body = fmt.Sprintf("Your %s session on %s was declined.", booking.Subject, when)
	case models.NotificationBookingCancelled:
		title = "Booking cancelled"
		body = fmt.Sprintf("The %s session on %s was cancelled.", booking.Subject, when)
	default:
		title = "Booking update"
		body = fmt.Sprintf("The %s session on %s changed.", booking.Subject, when)
	}
	bookingID := booking.ID
	return models.Notification{
		ID:        uuid.NewString(),
		UserID:    recipientID,
		Type:      kind,
		Title:     title,
		Body:      body,
		BookingID: &bookingID,
	}
}
