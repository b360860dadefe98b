package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/pkg/availability"
	appErrors "github.com/noah-isme/tutorlink-api/pkg/errors"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type bookingRepoStub struct {
	items     map[string]*models.Booking
	holding   []models.Booking
	created   []*models.Booking
	lastList  models.BookingFilter
	staleRows bool
}

func (s *bookingRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = "b-new"
	}
	s.created = append(s.created, booking)
	return nil
}

func (s *bookingRepoStub) ListHolding(ctx context.Context, exec sqlx.ExtContext, teacherID string, from, to time.Time) ([]models.Booking, error) {
	return s.holding, nil
}

func (s *bookingRepoStub) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	if b, ok := s.items[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *bookingRepoStub) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	s.lastList = filter
	return nil, 0, nil
}

func (s *bookingRepoStub) UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus) (bool, error) {
	if s.staleRows {
		return false, nil
	}
	s.items[id].Status = to
	return true, nil
}

type availabilityLockStub struct {
	stored *models.TeacherAvailability
}

func (s *availabilityLockStub) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, teacherID string) (*models.TeacherAvailability, error) {
	if s.stored == nil {
		return nil, sql.ErrNoRows
	}
	return s.stored, nil
}

type notification struct {
	recipient string
	kind      models.NotificationType
}

type notifierStub struct {
	sent []notification
}

func (n *notifierStub) NotifyBooking(ctx context.Context, recipientID string, kind models.NotificationType, booking *models.Booking) {
	n.sent = append(n.sent, notification{recipient: recipientID, kind: kind})
}

type bookingFixture struct {
	svc      *BookingService
	repo     *bookingRepoStub
	lock     *availabilityLockStub
	teachers *mockTeacherRepo
	notifier *notifierStub
	mock     sqlmock.Sqlmock
}

var (
	fixtureNow = time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	// 2030-01-07 is a Monday.
	mondayAt = func(hour, minute int) time.Time { return time.Date(2030, 1, 7, hour, minute, 0, 0, time.UTC) }
	student  = &models.JWTClaims{UserID: "s1", Role: models.RoleStudent}
	teacherU = &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher}
)

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	repo := &bookingRepoStub{items: map[string]*models.Booking{}}
	lock := &availabilityLockStub{stored: &models.TeacherAvailability{TeacherID: "t1", Windows: types.JSONText(`{"mon":["14:00-16:00"]}`), Version: 3}}
	teachers := newMockTeacherRepo(&models.Teacher{ID: "t1", UserID: "u1", Email: "t@example.com", Subjects: pq.StringArray{"math"}, Active: true})
	notifier := &notifierStub{}
	decider := NewAvailabilityService(nil, nil, nil, nil, nil, nil, 0)
	svc := NewBookingService(repo, lock, teachers, decider, notifier, tx, NewMetricsService(), nil, nil, BookingConfig{MinDurationMinutes: 15, MaxDurationMinutes: 480})
	svc.now = func() time.Time { return fixtureNow }
	return &bookingFixture{svc: svc, repo: repo, lock: lock, teachers: teachers, notifier: notifier, mock: mock}
}

func bookingRequest(start time.Time, minutes int) CreateBookingRequest {
	return CreateBookingRequest{TeacherID: "t1", Subject: "Math", StartAt: start, DurationMinutes: minutes}
}

func TestBookingServiceCreate(t *testing.T) {
	f := newBookingFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	booking, err := f.svc.Create(context.Background(), student, bookingRequest(mondayAt(14, 30).Add(42*time.Second), 60))
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, booking.Status)
	assert.Equal(t, mondayAt(14, 30), booking.StartAt)
	assert.Equal(t, mondayAt(15, 30), booking.EndAt)
	assert.Equal(t, "math", booking.Subject)
	assert.Equal(t, "s1", booking.StudentID)
	assert.Equal(t, 3, booking.AvailabilityVersion)
	assert.Equal(t, []notification{{recipient: "u1", kind: models.NotificationBookingRequested}}, f.notifier.sent)
	assert.Equal(t, uint64(1), f.svc.metrics.Snapshot().BookingsCreated)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBookingServiceCreateOutsideAvailability(t *testing.T) {
	f := newBookingFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), student, bookingRequest(mondayAt(15, 30), 60))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSlotUnavailable.Code, appErr.Code)
	assert.Equal(t, availability.ReasonNoMatchingWindow, appErr.Details["reason"])
	assert.Empty(t, f.repo.created)
	assert.Empty(t, f.notifier.sent)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBookingServiceCreateWithoutAvailabilityDocument(t *testing.T) {
	f := newBookingFixture(t)
	f.lock.stored = nil
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), student, bookingRequest(mondayAt(14, 0), 30))
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, availability.ReasonNoDayAvailability, appErr.Details["reason"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBookingServiceCreateConflicts(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.holding = []models.Booking{{ID: "b0", Status: models.BookingAccepted, StartAt: mondayAt(14, 0), EndAt: mondayAt(15, 0)}}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.Create(context.Background(), student, bookingRequest(mondayAt(14, 30), 60))
	assert.True(t, errors.Is(err, appErrors.ErrBookingConflict))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err = f.svc.Create(context.Background(), student, bookingRequest(mondayAt(15, 0), 60))
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBookingServiceCreateValidation(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.svc.Create(context.Background(), student, bookingRequest(mondayAt(14, 0), 10))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Create(context.Background(), student, bookingRequest(fixtureNow.Add(-time.Hour), 30))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req := bookingRequest(mondayAt(14, 0), 30)
	req.Subject = "chemistry"
	_, err = f.svc.Create(context.Background(), student, req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Create(context.Background(), teacherU, bookingRequest(mondayAt(14, 0), 30))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	f.teachers.items["t1"].Active = false
	_, err = f.svc.Create(context.Background(), student, bookingRequest(mondayAt(14, 0), 30))
	assert.True(t, errors.Is(err, appErrors.ErrTeacherInactive))

	_, err = f.svc.Create(context.Background(), nil, bookingRequest(mondayAt(14, 0), 30))
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBookingServiceTransitions(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.items["b1"] = &models.Booking{ID: "b1", TeacherID: "t1", StudentID: "s1", Status: models.BookingPending, StartAt: mondayAt(14, 0), EndAt: mondayAt(15, 0)}

	_, err := f.svc.Accept(context.Background(), student, "b1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	booking, err := f.svc.Accept(context.Background(), teacherU, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, booking.Status)

	_, err = f.svc.Reject(context.Background(), teacherU, "b1")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = f.svc.Cancel(context.Background(), &models.JWTClaims{UserID: "s9", Role: models.RoleStudent}, "b1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	booking, err = f.svc.Cancel(context.Background(), student, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, booking.Status)

	assert.Equal(t, []notification{
		{recipient: "s1", kind: models.NotificationBookingAccepted},
		{recipient: "u1", kind: models.NotificationBookingCancelled},
	}, f.notifier.sent)

	_, err = f.svc.Cancel(context.Background(), student, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestBookingServiceTransitionRace(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.items["b1"] = &models.Booking{ID: "b1", TeacherID: "t1", StudentID: "s1", Status: models.BookingPending, StartAt: mondayAt(14, 0)}
	f.repo.staleRows = true

	_, err := f.svc.Accept(context.Background(), teacherU, "b1")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	assert.Empty(t, f.notifier.sent)
}

func TestBookingServiceAcceptPastBooking(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.items["b1"] = &models.Booking{ID: "b1", TeacherID: "t1", StudentID: "s1", Status: models.BookingPending, StartAt: fixtureNow.Add(-time.Hour)}

	_, err := f.svc.Accept(context.Background(), teacherU, "b1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestBookingServiceListScopesByRole(t *testing.T) {
	f := newBookingFixture(t)

	_, _, err := f.svc.List(context.Background(), student, models.BookingFilter{StudentID: "someone-else", TeacherID: "t9"})
	require.NoError(t, err)
	assert.Equal(t, "s1", f.repo.lastList.StudentID)

	_, _, err = f.svc.List(context.Background(), teacherU, models.BookingFilter{TeacherID: "t9"})
	require.NoError(t, err)
	assert.Equal(t, "t1", f.repo.lastList.TeacherID)

	_, _, err = f.svc.List(context.Background(), &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}, models.BookingFilter{TeacherID: "t9"})
	require.NoError(t, err)
	assert.Equal(t, "t9", f.repo.lastList.TeacherID)

	_, _, err = f.svc.List(context.Background(), &models.JWTClaims{UserID: "u-none", Role: models.RoleTeacher}, models.BookingFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestBookingServiceGetVisibility(t *testing.T) {
	f := newBookingFixture(t)
	f.repo.items["b1"] = &models.Booking{ID: "b1", TeacherID: "t1", StudentID: "s1", Status: models.BookingPending}

	_, err := f.svc.Get(context.Background(), student, "b1")
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), teacherU, "b1")
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), &models.JWTClaims{UserID: "x", Role: models.RoleStudent}, "b1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
