package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/pkg/availability"
	appErrors "github.com/noah-isme/tutorlink-api/pkg/errors"
)

type availabilityRepoStub struct {
	items    map[string]*models.TeacherAvailability
	getCalls int
	upserts  []*models.TeacherAvailability
}

func (s *availabilityRepoStub) GetByTeacher(ctx context.Context, teacherID string) (*models.TeacherAvailability, error) {
	s.getCalls++
	if av, ok := s.items[teacherID]; ok {
		cp := *av
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *availabilityRepoStub) Upsert(ctx context.Context, av *models.TeacherAvailability) error {
	existing := s.items[av.TeacherID]
	av.Version = 1
	if existing != nil {
		av.Version = existing.Version + 1
	}
	cp := *av
	s.items[av.TeacherID] = &cp
	s.upserts = append(s.upserts, av)
	return nil
}

func newAvailabilityFixture(t *testing.T, windows string) (*AvailabilityService, *availabilityRepoStub, *memoryCacheRepo, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	repo := &availabilityRepoStub{items: map[string]*models.TeacherAvailability{}}
	if windows != "" {
		repo.items["t1"] = &models.TeacherAvailability{ID: "a1", TeacherID: "t1", Windows: types.JSONText(windows), Version: 1}
	}
	teachers := newMockTeacherRepo(&models.Teacher{ID: "t1", UserID: "u1", Active: true})
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewAvailabilityService(repo, teachers, cache, NewMetricsService(), nil, zap.New(core), time.Minute)
	return svc, repo, cacheRepo, logs
}

func TestAvailabilityServiceCheckMatchesWindow(t *testing.T) {
	svc, _, _, _ := newAvailabilityFixture(t, `{"mon":["14:00-16:00"]}`)

	// 2024-01-01 is a Monday.
	result, err := svc.Check(context.Background(), "t1", time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC), 60)
	require.NoError(t, err)
	assert.True(t, result.Decision.Available)
	assert.Equal(t, availability.ReasonAvailable, result.Decision.Reason)
	assert.Equal(t, 1, result.Version)

	result, err = svc.Check(context.Background(), "t1", time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC), 60)
	require.NoError(t, err)
	assert.False(t, result.Decision.Available)
	assert.Equal(t, availability.ReasonNoMatchingWindow, result.Decision.Reason)
}

func TestAvailabilityServiceCheckLogsSkippedWindows(t *testing.T) {
	svc, _, _, logs := newAvailabilityFixture(t, `{"mon":["09:00-bad","14:00-16:00"]}`)

	result, err := svc.Check(context.Background(), "t1", time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	assert.True(t, result.Decision.Available)
	require.Len(t, result.Decision.Skipped, 1)

	entries := logs.FilterMessage("skipping malformed availability window").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "09:00-bad", entries[0].ContextMap()["spec"])

	snapshot := svc.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.SkippedWindows)
	assert.Equal(t, uint64(1), snapshot.AvailabilityDecisions[string(availability.ReasonAvailable)])
}

func TestAvailabilityServiceCheckMalformedDocument(t *testing.T) {
	svc, _, _, logs := newAvailabilityFixture(t, `null`)

	result, err := svc.Check(context.Background(), "t1", time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	assert.False(t, result.Decision.Available)
	assert.Equal(t, availability.ReasonInvalidAvailability, result.Decision.Reason)
	assert.Equal(t, 1, logs.FilterMessage("stored availability is malformed").Len())
}

func TestAvailabilityServiceGetUsesCache(t *testing.T) {
	svc, repo, _, _ := newAvailabilityFixture(t, `{"fri":["10:00-11:00"]}`)

	for i := 0; i < 3; i++ {
		av, err := svc.Get(context.Background(), "t1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"fri":["10:00-11:00"]}`, string(av.Windows))
	}
	assert.Equal(t, 1, repo.getCalls)
}

func TestAvailabilityServiceGetWithoutDocument(t *testing.T) {
	svc, _, _, _ := newAvailabilityFixture(t, "")

	av, err := svc.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(av.Windows))

	result, err := svc.Check(context.Background(), "t1", time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	assert.Equal(t, availability.ReasonNoDayAvailability, result.Decision.Reason)

	_, err = svc.Get(context.Background(), "unknown")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestAvailabilityServiceUpsert(t *testing.T) {
	svc, repo, cacheRepo, _ := newAvailabilityFixture(t, `{"mon":["09:00-10:00"]}`)
	owner := &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher}

	_, err := svc.Get(context.Background(), "t1")
	require.NoError(t, err)

	saved, err := svc.Upsert(context.Background(), "t1", UpsertAvailabilityRequest{Windows: map[string][]string{
		"tue": {" 13:00 - 15:00", "23:00-00:00"},
	}}, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)
	assert.JSONEq(t, `{"tue":["13:00-15:00","23:00-00:00"]}`, string(repo.items["t1"].Windows))
	assert.Contains(t, cacheRepo.deleted, AvailabilityKey("t1"))

	// 2024-01-02 is a Tuesday; the refreshed document is visible immediately.
	result, err := svc.Check(context.Background(), "t1", time.Date(2024, 1, 2, 23, 30, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	assert.True(t, result.Decision.Available)
}

func TestAvailabilityServiceUpsertRejectsInvalidInput(t *testing.T) {
	svc, repo, _, _ := newAvailabilityFixture(t, "")
	owner := &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher}

	_, err := svc.Upsert(context.Background(), "t1", UpsertAvailabilityRequest{Windows: map[string][]string{"monday": {"09:00-10:00"}}}, owner)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Upsert(context.Background(), "t1", UpsertAvailabilityRequest{Windows: map[string][]string{"mon": {"22:00-02:00", "9-10"}}}, owner)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	details, ok := appErr.Details["windows"].([]availability.WindowError)
	require.True(t, ok)
	assert.Len(t, details, 2)

	_, err = svc.Upsert(context.Background(), "t1", UpsertAvailabilityRequest{Windows: map[string][]string{"mon": {"09:00-10:00"}}},
		&models.JWTClaims{UserID: "u2", Role: models.RoleTeacher})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, repo.upserts)
}
