package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/pkg/availability"
	appErrors "github.com/noah-isme/tutorlink-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type bookingRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error
	ListHolding(ctx context.Context, exec sqlx.ExtContext, teacherID string, from, to time.Time) ([]models.Booking, error)
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
	UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus) (bool, error)
}

type availabilityLocker interface {
	GetForUpdate(ctx context.Context, exec sqlx.ExtContext, teacherID string) (*models.TeacherAvailability, error)
}

type bookingTeacherLookup interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
}

type slotDecider interface {
	Decide(teacherID string, stored *models.TeacherAvailability, start time.Time, durationMinutes int) availability.Decision
}

type bookingNotifier interface {
	NotifyBooking(ctx context.Context, recipientID string, kind models.NotificationType, booking *models.Booking)
}

type noopNotifier struct{}

func (noopNotifier) NotifyBooking(context.Context, string, models.NotificationType, *models.Booking) {}

// CreateBookingRequest is a student's request for a session.
type CreateBookingRequest struct {
	TeacherID       string    `json:"teacher_id" validate:"required"`
	Subject         string    `json:"subject" validate:"required,max=50"`
	StartAt         time.Time `json:"start_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
	Note            *string   `json:"note" validate:"omitempty,max=1000"`
}

// BookingConfig bounds booking requests.
type BookingConfig struct {
	MinDurationMinutes int
	MaxDurationMinutes int
}

// BookingService creates bookings against live availability and drives their lifecycle.
type BookingService struct {
	bookings     bookingRepository
	availability availabilityLocker
	teachers     bookingTeacherLookup
	decider      slotDecider
	notifier     bookingNotifier
	tx           txProvider
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	cfg          BookingConfig
	now          func() time.Time
}

// NewBookingService wires booking dependencies.
func NewBookingService(
	bookings bookingRepository,
	availabilityRepo availabilityLocker,
	teachers bookingTeacherLookup,
	decider slotDecider,
	notifier bookingNotifier,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg BookingConfig,
) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cfg.MinDurationMinutes <= 0 {
		cfg.MinDurationMinutes = 15
	}
	if cfg.MaxDurationMinutes < cfg.MinDurationMinutes {
		cfg.MaxDurationMinutes = 480
	}
	return &BookingService{
		bookings:     bookings,
		availability: availabilityRepo,
		teachers:     teachers,
		decider:      decider,
		notifier:     notifier,
		tx:           tx,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Create books a session after re-checking the teacher's availability inside a transaction
// that locks the availability row, so a concurrent availability edit cannot slip in between.
func (s *BookingService) Create(ctx context.Context, actor *models.JWTClaims, req CreateBookingRequest) (booking *models.Booking, err error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if verr := s.validator.Struct(req); verr != nil {
		return nil, appErrors.Wrap(verr, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	if req.DurationMinutes < s.cfg.MinDurationMinutes || req.DurationMinutes > s.cfg.MaxDurationMinutes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("duration_minutes must be between %d and %d", s.cfg.MinDurationMinutes, s.cfg.MaxDurationMinutes))
	}

	teacher, err := s.loadTeacher(ctx, req.TeacherID)
	if err != nil {
		return nil, err
	}
	if !teacher.Active {
		return nil, appErrors.Clone(appErrors.ErrTeacherInactive, "")
	}
	if teacher.UserID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot book a session with yourself")
	}
	subject := strings.ToLower(strings.TrimSpace(req.Subject))
	if len(teacher.Subjects) > 0 && !containsString(teacher.Subjects, subject) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("teacher does not offer %q", subject))
	}

	start := req.StartAt.UTC().Truncate(time.Minute)
	if !start.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_at must be in the future")
	}
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)

	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	txStarted := time.Now()
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stored, err := s.availability.GetForUpdate(ctx, tx, teacher.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock availability")
			return nil, err
		}
		stored = &models.TeacherAvailability{TeacherID: teacher.ID, Windows: types.JSONText(`{}`)}
		err = nil
	}

	decision := s.decider.Decide(teacher.ID, stored, start, req.DurationMinutes)
	if !decision.Available {
		err = appErrors.ErrSlotUnavailable.WithDetails(map[string]interface{}{
			"reason":  decision.Reason,
			"weekday": decision.Weekday,
		})
		return nil, err
	}

	holding, err := s.bookings.ListHolding(ctx, tx, teacher.ID, start, end)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing bookings")
		return nil, err
	}
	if clash := firstOverlap(holding, start, end); clash != nil {
		err = appErrors.ErrBookingConflict.WithDetails(map[string]interface{}{
			"conflict_start": clash.StartAt.UTC(),
			"conflict_end":   clash.EndAt.UTC(),
		})
		return nil, err
	}

	booking = &models.Booking{
		TeacherID:           teacher.ID,
		StudentID:           actor.UserID,
		Subject:             subject,
		StartAt:             start,
		EndAt:               end,
		DurationMinutes:     req.DurationMinutes,
		Status:              models.BookingPending,
		Note:                normalizeOptional(req.Note),
		AvailabilityVersion: stored.Version,
	}
	if err = s.bookings.Create(ctx, tx, booking); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit booking")
		return nil, err
	}

	s.metrics.ObserveDBQuery("booking_create_tx", time.Since(txStarted))
	s.metrics.RecordBooking(models.BookingPending)
	s.logger.Info("booking requested",
		zap.String("booking_id", booking.ID),
		zap.String("teacher_id", teacher.ID),
		zap.String("student_id", actor.UserID),
		zap.Time("start_at", start),
		zap.Int("duration_minutes", req.DurationMinutes),
		zap.Int("availability_version", stored.Version),
	)
	s.notifier.NotifyBooking(ctx, teacher.UserID, models.NotificationBookingRequested, booking)
	return booking, nil
}

// Get returns a booking visible to the caller.
func (s *BookingService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Booking, error) {
	booking, teacher, err := s.loadWithTeacher(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(booking.StudentID) && !actor.Owns(teacher.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "booking belongs to another user")
	}
	return booking, nil
}

// List returns bookings scoped to the caller's role. Admins may filter freely.
func (s *BookingService) List(ctx context.Context, actor *models.JWTClaims, filter models.BookingFilter) ([]models.Booking, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleTeacher:
		teacher, err := s.teachers.FindByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "teacher profile not found")
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
		}
		filter.TeacherID = teacher.ID
	default:
		filter.StudentID = actor.UserID
	}

	items, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Accept confirms a pending booking. Only the booked teacher (or an admin) may accept.
func (s *BookingService) Accept(ctx context.Context, actor *models.JWTClaims, id string) (*models.Booking, error) {
	return s.transition(ctx, actor, id, models.BookingAccepted)
}

// Reject declines a pending booking.
func (s *BookingService) Reject(ctx context.Context, actor *models.JWTClaims, id string) (*models.Booking, error) {
	return s.transition(ctx, actor, id, models.BookingRejected)
}

// Cancel withdraws a pending or accepted booking. Either participant may cancel.
func (s *BookingService) Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*models.Booking, error) {
	return s.transition(ctx, actor, id, models.BookingCancelled)
}

func (s *BookingService) transition(ctx context.Context, actor *models.JWTClaims, id string, to models.BookingStatus) (*models.Booking, error) {
	booking, teacher, err := s.loadWithTeacher(ctx, id)
	if err != nil {
		return nil, err
	}

	isTeacher := actor.Owns(teacher.UserID)
	isStudent := actor.Owns(booking.StudentID)
	switch to {
	case models.BookingAccepted, models.BookingRejected:
		if !isTeacher {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the teacher can respond to this booking")
		}
	default:
		if !isTeacher && !isStudent {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "booking belongs to another user")
		}
	}

	if !booking.Status.CanTransition(to) {
		return nil, appErrors.ErrInvalidTransition.WithDetails(map[string]interface{}{"from": booking.Status, "to": to})
	}
	if to == models.BookingAccepted && !booking.StartAt.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "booking start has already passed")
	}

	updated, err := s.bookings.UpdateStatus(ctx, booking.ID, booking.Status, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update booking")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "booking was modified by another request")
	}

	from := booking.Status
	booking.Status = to
	booking.UpdatedAt = s.now().UTC()
	s.metrics.RecordBooking(to)
	s.logger.Info("booking status changed",
		zap.String("booking_id", booking.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor_id", actor.UserID),
	)

	kind := notificationKind(to)
	switch {
	case actor.UserID == booking.StudentID:
		s.notifier.NotifyBooking(ctx, teacher.UserID, kind, booking)
	case actor.UserID == teacher.UserID:
		s.notifier.NotifyBooking(ctx, booking.StudentID, kind, booking)
	default:
		s.notifier.NotifyBooking(ctx, booking.StudentID, kind, booking)
		s.notifier.NotifyBooking(ctx, teacher.UserID, kind, booking)
	}
	return booking, nil
}

func (s *BookingService) loadWithTeacher(ctx context.Context, id string) (*models.Booking, *models.Teacher, error) {
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	teacher, err := s.loadTeacher(ctx, booking.TeacherID)
	if err != nil {
		return nil, nil, err
	}
	return booking, teacher, nil
}

func (s *BookingService) loadTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// firstOverlap returns the first holding booking sharing time with [start, end).
// Intervals are half-open, so back-to-back sessions do not clash.
func firstOverlap(bookings []models.Booking, start, end time.Time) *models.Booking {
	for i := range bookings {
		b := &bookings[i]
		if !b.Status.Holding() {
			continue
		}
		if start.Before(b.EndAt) && b.StartAt.Before(end) {
			return b
		}
	}
	return nil
}

func notificationKind(status models.BookingStatus) models.NotificationType {
	switch status {
	case models.BookingAccepted:
		return models.NotificationBookingAccepted
	case models.BookingRejected:
		return models.NotificationBookingRejected
	case models.BookingCancelled:
		return models.NotificationBookingCancelled
	default:
		return models.NotificationBookingRequested
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
