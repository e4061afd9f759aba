package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/event-reward-api/internal/dto"
	"github.com/noah-isme/event-reward-api/internal/models"
	appErrors "github.com/noah-isme/event-reward-api/pkg/errors"
	"github.com/noah-isme/event-reward-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

const maxExportRows = 1000

var requestExportHeaders = []string{"id", "userId", "eventId", "rewardId", "status", "requestDate", "processedBy", "processDate", "distributedAt", "distributionDetails", "notes"}

type requestLister interface {
	List(ctx context.Context, filter models.RewardRequestFilter) ([]models.RewardRequest, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered export ready to be served as an attachment.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
	Truncated   bool
}

// ExportService renders filtered reward request listings as CSV or PDF.
type ExportService struct {
	repo     requestLister
	requests *RewardRequestService
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs an ExportService. requests provides query validation.
func NewExportService(repo requestLister, requests *RewardRequestService, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{repo: repo, requests: requests, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Export renders up to 1000 requests matching query.
func (s *ExportService) Export(ctx context.Context, query dto.RewardRequestQuery, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	query.Page, query.Limit = 0, 0
	filter, err := s.requests.buildFilter(query)
	if err != nil {
		return nil, err
	}
	filter.Page = 1
	filter.PageSize = maxExportRows

	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load reward requests")
	}

	dataset := buildRequestDataset(requests)
	var payload []byte
	contentType := "text/csv"
	switch format {
	case ExportFormatPDF:
		contentType = "application/pdf"
		payload, err = s.pdf.Render(dataset, "Reward requests")
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to render export")
	}

	result := &ExportResult{
		Filename:    fmt.Sprintf("reward_requests_%s.%s", s.now().UTC().Format("20060102_150405"), format),
		ContentType: contentType,
		Payload:     payload,
		Rows:        len(requests),
		Truncated:   total > len(requests),
	}
	if result.Truncated {
		s.logger.Info("reward request export truncated", zap.Int("total", total), zap.Int("rows", result.Rows))
	}
	return result, nil
}

func buildRequestDataset(requests []models.RewardRequest) export.Dataset {
	rows := make([]map[string]string, 0, len(requests))
	for _, r := range requests {
		rows = append(rows, map[string]string{
			"id":                  r.ID,
			"userId":              r.UserID,
			"eventId":             r.EventID,
			"rewardId":            r.RewardID,
			"status":              string(r.Status),
			"requestDate":         r.RequestDate.UTC().Format(time.RFC3339),
			"processedBy":         deref(r.ProcessedBy),
			"processDate":         formatTimePtr(r.ProcessDate),
			"distributedAt":       formatTimePtr(r.DistributedAt),
			"distributionDetails": deref(r.DistributionDetails),
			"notes":               strings.ReplaceAll(deref(r.Notes), "\n", " | "),
		})
	}
	return export.Dataset{Headers: requestExportHeaders, Rows: rows}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
