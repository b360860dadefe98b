package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/tutorlink-api/internal/models"
)

const availabilityColumns = "id, teacher_id, windows, version, created_at, updated_at"

// AvailabilityRepository persists teacher weekly availability documents.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// GetByTeacher returns the stored availability for a teacher.
func (r *AvailabilityRepository) GetByTeacher(ctx context.Context, teacherID string) (*models.TeacherAvailability, error) {
	query := "SELECT " + availabilityColumns + " FROM teacher_availabilities WHERE teacher_id = $1"
	var av models.TeacherAvailability
	if err := r.db.GetContext(ctx, &av, query, teacherID); err != nil {
		return nil, err
	}
	return &av, nil
}

// GetForUpdate reads the availability row inside a transaction and locks it until commit.
func (r *AvailabilityRepository) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, teacherID string) (*models.TeacherAvailability, error) {
	query := "SELECT " + availabilityColumns + " FROM teacher_availabilities WHERE teacher_id = $1 FOR UPDATE"
	var av models.TeacherAvailability
	if err := sqlx.GetContext(ctx, r.exec(exec), &av, query, teacherID); err != nil {
		return nil, err
	}
	return &av, nil
}

// Upsert stores the document and bumps its version. The stored row is written back into av.
func (r *AvailabilityRepository) Upsert(ctx context.Context, av *models.TeacherAvailability) error {
	if av.ID == "" {
		av.ID = uuid.NewString()
	}
	if len(av.Windows) == 0 {
		av.Windows = types.JSONText(`{}`)
	}
	now := time.Now().UTC()

	const query = `INSERT INTO teacher_availabilities (id, teacher_id, windows, version, created_at, updated_at)
VALUES ($1, $2, $3, 1, $4, $4)
ON CONFLICT (teacher_id) DO UPDATE SET windows = EXCLUDED.windows, version = teacher_availabilities.version + 1, updated_at = EXCLUDED.updated_at
RETURNING ` + availabilityColumns
	if err := r.db.GetContext(ctx, av, query, av.ID, av.TeacherID, av.Windows, now); err != nil {
		return fmt.Errorf("upsert teacher availability: %w", err)
	}
	return nil
}

func (r *AvailabilityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}
