package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mehdifatimi/formation-api/internal/models"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
	"github.com/mehdifatimi/formation-api/pkg/export"
)

type enrollmentLister interface {
	ListByFormation(ctx context.Context, formationID string) ([]models.EnrollmentDetail, error)
}

type absenceLister interface {
	List(ctx context.Context, filter models.AbsenceFilter) ([]models.AbsenceDetail, int, error)
}

// ReportFormat selects the attendance sheet output encoding.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Report is a rendered export ready to stream to the client.
type Report struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ReportService renders attendance sheets for a formation: one line per
// enrolled participant with their pivot status and absence counts.
type ReportService struct {
	formations  formationReader
	enrollments enrollmentLister
	absences    absenceLister
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(formations formationReader, enrollments enrollmentLister, absences absenceLister, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		formations:  formations,
		enrollments: enrollments,
		absences:    absences,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// AttendanceSheet builds and renders the attendance sheet for a formation.
func (s *ReportService) AttendanceSheet(ctx context.Context, formationID string, format ReportFormat) (*Report, error) {
	formation, err := s.formations.FindByID(ctx, formationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "formation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load formation")
	}

	enrollments, err := s.enrollments.ListByFormation(ctx, formationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	counts := make(map[string]int)
	unjustified := make(map[string]int)
	for page := 1; ; page++ {
		absences, total, err := s.absences.List(ctx, models.AbsenceFilter{
			FormationID: formationID,
			Page:        page,
			PageSize:    100,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absences")
		}
		for _, a := range absences {
			counts[a.ParticipantID]++
			if a.Status == models.AbsenceStatusUnjustified {
				unjustified[a.ParticipantID]++
			}
		}
		if len(absences) == 0 || page*100 >= total {
			break
		}
	}

	dataset := export.Dataset{
		Headers: []string{"Participant", "Statut", "Inscrit le", "Absences", "Non justifiées"},
	}
	for _, e := range enrollments {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Participant":    e.ParticipantName,
			"Statut":         string(e.Status),
			"Inscrit le":     e.EnrolledAt.Format("2006-01-02"),
			"Absences":       fmt.Sprintf("%d", counts[e.ParticipantID]),
			"Non justifiées": fmt.Sprintf("%d", unjustified[e.ParticipantID]),
		})
	}

	name := strings.ReplaceAll(strings.ToLower(formation.Titre), " ", "-")
	switch format {
	case ReportFormatPDF:
		content, err := s.pdf.Render(dataset, fmt.Sprintf("Feuille de présence - %s", formation.Titre))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &Report{
			FileName:    fmt.Sprintf("presence-%s.pdf", name),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	case ReportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &Report{
			FileName:    fmt.Sprintf("presence-%s.csv", name),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
}
