package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/internal/service"
	appErrors "github.com/noah-isme/tutorlink-api/pkg/errors"
	"github.com/noah-isme/tutorlink-api/pkg/export"
	"github.com/noah-isme/tutorlink-api/pkg/response"
)

type bookingService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req service.CreateBookingRequest) (*models.Booking, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Booking, error)
	List(ctx context.Context, actor *models.JWTClaims, filter models.BookingFilter) ([]models.Booking, *models.Pagination, error)
	Accept(ctx context.Context, actor *models.JWTClaims, id string) (*models.Booking, error)
	Reject(ctx context.Context, actor *models.JWTClaims, id string) (*models.Booking, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, id string) (*models.Booking, error)
}

type bookingExporter interface {
	Export(ctx context.Context, actor *models.JWTClaims, filter models.BookingFilter, format export.Format) (*service.ExportFile, error)
}

// BookingHandler exposes booking endpoints.
type BookingHandler struct {
	service  bookingService
	exporter bookingExporter
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(svc bookingService, exporter bookingExporter) *BookingHandler {
	return &BookingHandler{service: svc, exporter: exporter}
}

// Create godoc
// @Summary Request a booking
// @Description The slot must fit one of the teacher's availability windows and not overlap an existing booking.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body service.CreateBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}
	booking, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// List godoc
// @Summary List bookings visible to the caller
// @Tags Bookings
// @Produce json
// @Param status query string false "PENDING, ACCEPTED, REJECTED or CANCELLED"
// @Param teacher_id query string false "Teacher filter (admin only)"
// @Param from query string false "Start at or after (RFC3339)"
// @Param to query string false "Start before (RFC3339)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	filter, err := bookingFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.Page, filter.PageSize = pageParams(c)

	bookings, pagination, err := h.service.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, pagination)
}

// Export godoc
// @Summary Download the caller's booking schedule
// @Tags Bookings
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param status query string false "PENDING, ACCEPTED, REJECTED or CANCELLED"
// @Param from query string false "Start at or after (RFC3339)"
// @Param to query string false "Start before (RFC3339)"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /bookings/export [get]
func (h *BookingHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(c.Query("format"))))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "format must be csv or pdf"))
		return
	}
	filter, err := bookingFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	file, err := h.exporter.Export(c.Request.Context(), claimsFromContext(c), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("X-Export-Rows", strconv.Itoa(file.Rows))
	if file.Truncated {
		c.Header("X-Export-Truncated", "true")
	}
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// Get godoc
// @Summary Get booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Accept godoc
// @Summary Accept a pending booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id}/accept [post]
func (h *BookingHandler) Accept(c *gin.Context) {
	h.respondTransition(c, h.service.Accept)
}

// Reject godoc
// @Summary Reject a pending booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id}/reject [post]
func (h *BookingHandler) Reject(c *gin.Context) {
	h.respondTransition(c, h.service.Reject)
}

// Cancel godoc
// @Summary Cancel a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	h.respondTransition(c, h.service.Cancel)
}

func (h *BookingHandler) respondTransition(c *gin.Context, fn func(context.Context, *models.JWTClaims, string) (*models.Booking, error)) {
	booking, err := fn(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

func bookingFilterFromQuery(c *gin.Context) (models.BookingFilter, error) {
	filter := models.BookingFilter{
		TeacherID: strings.TrimSpace(c.Query("teacher_id")),
		StudentID: strings.TrimSpace(c.Query("student_id")),
		Status:    models.BookingStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
	}
	var err error
	if filter.From, err = optionalTimeQuery(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = optionalTimeQuery(c, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}
