package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorlink-api/internal/middleware"
	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/service"
	appErrors "github.com/noah-isme/tutorlink-api/pkg/errors"
	"github.com/noah-isme/tutorlink-api/pkg/response"
)

type availabilityService interface {
	Get(ctx context.Context, teacherID string) (*models.TeacherAvailability, error)
	Upsert(ctx context.Context, teacherID string, req service.UpsertAvailabilityRequest, actor *models.JWTClaims) (*models.TeacherAvailability, error)
	Check(ctx context.Context, teacherID string, start time.Time, durationMinutes int) (*models.AvailabilityCheckResult, error)
}

// AvailabilityHandler exposes weekly availability and availability checks.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(svc availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Get godoc
// @Summary Get teacher weekly availability
// @Description Windows are "HH:MM-HH:MM" ranges in UTC keyed by sun..sat.
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
func (h *AvailabilityHandler) Get(c *gin.Context) {
	av, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, av, nil)
}

// Upsert godoc
// @Summary Replace teacher weekly availability
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body service.UpsertAvailabilityRequest true "Weekly windows"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /teachers/{id}/availability [put]
func (h *AvailabilityHandler) Upsert(c *gin.Context) {
	var req service.UpsertAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	av, err := h.service.Upsert(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, av, nil)
}

// Check godoc
// @Summary Check whether a teacher can be booked
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param start query string true "Requested start (RFC3339)"
// @Param duration query int true "Duration in minutes"
// @Success 200 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /teachers/{id}/availability/check [get]
func (h *AvailabilityHandler) Check(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(c.Query("start")))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "start must be an RFC3339 timestamp"))
		return
	}
	duration, err := strconv.Atoi(strings.TrimSpace(c.Query("duration")))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "duration must be an integer number of minutes"))
		return
	}

	result, err := h.service.Check(c.Request.Context(), c.Param("id"), start, duration)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "availability_version", result.Version)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}
