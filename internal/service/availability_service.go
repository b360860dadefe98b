package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/pkg/availability"
	appErrors "github.com/noah-isme/tutorlink-api/pkg/errors"
)

type availabilityRepository interface {
	GetByTeacher(ctx context.Context, teacherID string) (*models.TeacherAvailability, error)
	Upsert(ctx context.Context, av *models.TeacherAvailability) error
}

type teacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type snapshotCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, keys ...string)
}

// UpsertAvailabilityRequest replaces a teacher's weekly availability.
type UpsertAvailabilityRequest struct {
	Windows map[string][]string `json:"windows" validate:"required,dive,keys,oneof=sun mon tue wed thu fri sat,endkeys,max=48"`
}

// AvailabilityService stores weekly availability and answers booking-time availability checks.
type AvailabilityService struct {
	repo      availabilityRepository
	teachers  teacherReader
	cache     snapshotCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewAvailabilityService wires availability dependencies. cache may be nil.
func NewAvailabilityService(repo availabilityRepository, teachers teacherReader, cache snapshotCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		repo:      repo,
		teachers:  teachers,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
	}
}

// Get returns the stored availability for a teacher. Teachers without a document get an empty one.
func (s *AvailabilityService) Get(ctx context.Context, teacherID string) (*models.TeacherAvailability, error) {
	key := AvailabilityKey(teacherID)
	var cached models.TeacherAvailability
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	if _, err := s.loadTeacher(ctx, teacherID); err != nil {
		return nil, err
	}

	stored, err := s.repo.GetByTeacher(ctx, teacherID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
		}
		stored = &models.TeacherAvailability{TeacherID: teacherID, Windows: types.JSONText(`{}`)}
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, stored, s.cacheTTL)
	}
	return stored, nil
}

// Upsert validates and replaces the teacher's weekly availability.
func (s *AvailabilityService) Upsert(ctx context.Context, teacherID string, req UpsertAvailabilityRequest, actor *models.JWTClaims) (*models.TeacherAvailability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}

	weekly := availability.FromDays(req.Windows)
	if err := weekly.Validate(); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "availability contains invalid windows").
			WithDetails(map[string]interface{}{"windows": windowErrors(err)})
	}

	teacher, err := s.loadTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(teacher.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot modify another teacher's availability")
	}

	payload, err := json.Marshal(weekly.Canonical())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode availability")
	}

	record := &models.TeacherAvailability{TeacherID: teacherID, Windows: types.JSONText(payload)}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save availability")
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, AvailabilityKey(teacherID))
	}

	s.logger.Info("availability updated",
		zap.String("teacher_id", teacherID),
		zap.Int("version", record.Version),
		zap.Int("weekly_minutes", weekly.WeeklyMinutes()),
	)
	return record, nil
}

// Check decides whether the teacher can be booked for durationMinutes starting at start.
func (s *AvailabilityService) Check(ctx context.Context, teacherID string, start time.Time, durationMinutes int) (*models.AvailabilityCheckResult, error) {
	stored, err := s.Get(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	decision := s.Decide(teacherID, stored, start, durationMinutes)
	return &models.AvailabilityCheckResult{
		TeacherID:       teacherID,
		StartAt:         start.UTC(),
		DurationMinutes: durationMinutes,
		Version:         stored.Version,
		Decision:        decision,
	}, nil
}

// Decide runs the matcher against a stored snapshot and records what it saw.
func (s *AvailabilityService) Decide(teacherID string, stored *models.TeacherAvailability, start time.Time, durationMinutes int) availability.Decision {
	weekly, err := availability.Parse(stored.Windows)
	if err != nil {
		s.logger.Warn("stored availability is malformed", zap.String("teacher_id", teacherID), zap.Error(err))
	}

	decision := availability.Check(weekly, start, durationMinutes)
	for _, skipped := range decision.Skipped {
		s.logger.Warn("skipping malformed availability window",
			zap.String("teacher_id", teacherID),
			zap.String("day", skipped.Day),
			zap.Int("index", skipped.Index),
			zap.String("spec", skipped.Spec),
			zap.Error(skipped.Err),
		)
	}
	s.metrics.RecordAvailabilityDecision(decision.Reason, len(decision.Skipped))
	return decision
}

func (s *AvailabilityService) loadTeacher(ctx context.Context, teacherID string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

func windowErrors(err error) []availability.WindowError {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return nil
	}
	out := make([]availability.WindowError, 0, len(joined.Unwrap()))
	for _, e := range joined.Unwrap() {
		var we availability.WindowError
		if errors.As(e, &we) {
			out = append(out, we)
		}
	}
	return out
}
