package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorlink-api/internal/middleware"
	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/service"
	appErrors "github.com/noah-isme/tutorlink-api/pkg/errors"
)

type teacherServiceMock struct {
	lastFilter models.TeacherFilter
	lastActor  *models.JWTClaims
	updateErr  error
}

func (m *teacherServiceMock) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.Teacher{{ID: "t-1", FullName: "Ada"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (m *teacherServiceMock) Get(ctx context.Context, id string) (*models.Teacher, error) {
	if id == "missing" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return &models.Teacher{ID: id}, nil
}

func (m *teacherServiceMock) Create(ctx context.Context, req service.CreateTeacherRequest) (*models.Teacher, error) {
	return &models.Teacher{ID: "t-new", FullName: req.FullName, Email: req.Email}, nil
}

func (m *teacherServiceMock) Update(ctx context.Context, id string, req service.UpdateTeacherRequest, actor *models.JWTClaims) (*models.Teacher, error) {
	m.lastActor = actor
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &models.Teacher{ID: id}, nil
}

func TestTeacherHandlerListParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &teacherServiceMock{}
	handler := NewTeacherHandler(svc)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/teachers?subject=Math&active=true&page=2&limit=5&sort=hourly_rate&order=asc", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Math", svc.lastFilter.Subject)
	require.NotNil(t, svc.lastFilter.Active)
	assert.True(t, *svc.lastFilter.Active)
	assert.Equal(t, 2, svc.lastFilter.Page)
	assert.Equal(t, 5, svc.lastFilter.PageSize)
	assert.Equal(t, "hourly_rate", svc.lastFilter.SortBy)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestTeacherHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTeacherHandler(&teacherServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/teachers/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTeacherHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTeacherHandler(&teacherServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/teachers", bytes.NewReader([]byte(`{`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTeacherHandlerUpdatePassesActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &teacherServiceMock{updateErr: appErrors.Clone(appErrors.ErrForbidden, "cannot edit another teacher")}
	handler := NewTeacherHandler(svc)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.UpdateTeacherRequest{FullName: "Ada L", Email: "ada@example.com"})
	req, _ := http.NewRequest(http.MethodPut, "/teachers/t-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "t-1"}}
	claims := &models.JWTClaims{UserID: "u-9", Role: models.RoleTeacher}
	c.Set(middleware.ContextUserKey, claims)

	handler.Update(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Same(t, claims, svc.lastActor)
}
