package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorlink-api/internal/models"
	appErrors "github.com/noah-isme/tutorlink-api/pkg/errors"
	"github.com/noah-isme/tutorlink-api/pkg/export"
)

const (
	exportPageSize = 100
	maxExportRows  = 2000
)

type bookingLister interface {
	List(ctx context.Context, actor *models.JWTClaims, filter models.BookingFilter) ([]models.Booking, *models.Pagination, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(table export.Table) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
	Truncated   bool
}

// BookingExportService renders the caller's booking schedule as CSV or PDF.
type BookingExportService struct {
	bookings bookingLister
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewBookingExportService constructs a BookingExportService.
func NewBookingExportService(bookings bookingLister, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *BookingExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &BookingExportService{bookings: bookings, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Export collects every booking visible to actor that matches filter, up to maxExportRows,
// and renders it in the requested format.
func (s *BookingExportService) Export(ctx context.Context, actor *models.JWTClaims, filter models.BookingFilter, format export.Format) (*ExportFile, error) {
	rows, truncated, err := s.collect(ctx, actor, filter)
	if err != nil {
		return nil, err
	}

	table := bookingTable(rows)
	var payload []byte
	switch format {
	case export.FormatCSV:
		payload, err = s.csv.Render(table)
	case export.FormatPDF:
		payload, err = s.pdf.Render(table)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	if truncated {
		s.logger.Warn("booking export truncated", zap.String("user_id", actor.UserID), zap.Int("rows", len(rows)))
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("bookings_%s.%s", s.now().UTC().Format("20060102_150405"), format),
		ContentType: format.ContentType(),
		Data:        payload,
		Rows:        len(rows),
		Truncated:   truncated,
	}, nil
}

func (s *BookingExportService) collect(ctx context.Context, actor *models.JWTClaims, filter models.BookingFilter) ([]models.Booking, bool, error) {
	var rows []models.Booking
	filter.PageSize = exportPageSize
	for page := 1; ; page++ {
		filter.Page = page
		items, pagination, err := s.bookings.List(ctx, actor, filter)
		if err != nil {
			return nil, false, err
		}
		rows = append(rows, items...)
		total := len(rows)
		if pagination != nil {
			total = pagination.TotalCount
		}
		if len(rows) >= maxExportRows {
			return rows[:maxExportRows], total > maxExportRows, nil
		}
		if len(items) < exportPageSize || len(rows) >= total {
			return rows, false, nil
		}
	}
}

func bookingTable(rows []models.Booking) export.Table {
	table := export.Table{
		Title:   "Booking schedule (UTC)",
		Columns: []string{"Start", "End", "Minutes", "Subject", "Status", "Teacher", "Student"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, b := range rows {
		table.Rows = append(table.Rows, []string{
			b.StartAt.UTC().Format("2006-01-02 15:04"),
			b.EndAt.UTC().Format("2006-01-02 15:04"),
			strconv.Itoa(b.DurationMinutes),
			b.Subject,
			string(b.Status),
			b.TeacherID,
			b.StudentID,
		})
	}
	return table
}
