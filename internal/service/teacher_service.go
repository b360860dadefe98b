package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorlink-api/internal/models"
	appErrors "github.com/noah-isme/tutorlink-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
}

// CreateTeacherRequest represents payload for listing a new teacher.
type CreateTeacherRequest struct {
	UserID     string   `json:"user_id" validate:"required"`
	Email      string   `json:"email" validate:"required,email"`
	FullName   string   `json:"full_name" validate:"required,max=200"`
	Headline   *string  `json:"headline" validate:"omitempty,max=200"`
	Bio        *string  `json:"bio" validate:"omitempty,max=2000"`
	Subjects   []string `json:"subjects" validate:"omitempty,max=20,dive,required,max=50"`
	HourlyRate float64  `json:"hourly_rate" validate:"gte=0"`
}

// UpdateTeacherRequest represents payload for updating a teacher profile.
type UpdateTeacherRequest struct {
	Email      string   `json:"email" validate:"required,email"`
	FullName   string   `json:"full_name" validate:"required,max=200"`
	Headline   *string  `json:"headline" validate:"omitempty,max=200"`
	Bio        *string  `json:"bio" validate:"omitempty,max=2000"`
	Subjects   []string `json:"subjects" validate:"omitempty,max=20,dive,required,max=50"`
	HourlyRate float64  `json:"hourly_rate" validate:"gte=0"`
	Active     *bool    `json:"active"`
}

// TeacherService orchestrates teacher discovery and profile management.
type TeacherService struct {
	repo      teacherRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, validator: validate, logger: logger}
}

// List returns teachers plus pagination data.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return teachers, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// ForUser resolves the teacher profile owned by a user account.
func (s *TeacherService) ForUser(ctx context.Context, userID string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create registers a new teacher profile.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	if err := s.ensureUniqueEmail(ctx, req.Email, ""); err != nil {
		return nil, err
	}

	teacher := &models.Teacher{
		UserID:     strings.TrimSpace(req.UserID),
		Email:      strings.TrimSpace(req.Email),
		FullName:   strings.TrimSpace(req.FullName),
		Headline:   normalizeOptional(req.Headline),
		Bio:        normalizeOptional(req.Bio),
		Subjects:   normalizeSubjects(req.Subjects),
		HourlyRate: req.HourlyRate,
		Active:     true,
	}

	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	s.logger.Info("teacher created", zap.String("teacher_id", teacher.ID), zap.String("user_id", teacher.UserID))
	return teacher, nil
}

// Update modifies a teacher profile. Only the owning user or an admin may update it.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest, actor *models.JWTClaims) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(teacher.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot modify another teacher's profile")
	}

	if err := s.ensureUniqueEmail(ctx, req.Email, id); err != nil {
		return nil, err
	}

	teacher.Email = strings.TrimSpace(req.Email)
	teacher.FullName = strings.TrimSpace(req.FullName)
	teacher.Headline = normalizeOptional(req.Headline)
	teacher.Bio = normalizeOptional(req.Bio)
	teacher.Subjects = normalizeSubjects(req.Subjects)
	teacher.HourlyRate = req.HourlyRate
	if req.Active != nil {
		teacher.Active = *req.Active
	}

	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

func (s *TeacherService) ensureUniqueEmail(ctx context.Context, email string, excludeID string) error {
	exists, err := s.repo.ExistsByEmail(ctx, strings.TrimSpace(email), excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	return nil
}

// normalizeSubjects lowercases, trims and de-duplicates subjects so ANY(subjects) filters match.
func normalizeSubjects(subjects []string) pq.StringArray {
	seen := make(map[string]struct{}, len(subjects))
	out := make(pq.StringArray, 0, len(subjects))
	for _, subject := range subjects {
		normalized := strings.ToLower(strings.TrimSpace(subject))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	return out
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
