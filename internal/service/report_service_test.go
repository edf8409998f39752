package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mehdifatimi/formation-api/internal/models"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
)

type fakeEnrollmentLister struct {
	byFormation map[string][]models.EnrollmentDetail
}

func (f *fakeEnrollmentLister) ListByFormation(ctx context.Context, formationID string) ([]models.EnrollmentDetail, error) {
	return f.byFormation[formationID], nil
}

func reportFixtures(t *testing.T) (*fakeFormationRepo, *fakeEnrollmentLister, *fakeAbsenceRepo, string) {
	t.Helper()
	formations := newFakeFormationRepo()
	formation := pendingFormation(formations)
	formations.formations[formation.ID].Titre = "Go Avancé"

	enrollments := &fakeEnrollmentLister{byFormation: map[string][]models.EnrollmentDetail{
		formation.ID: {
			{
				Enrollment: models.Enrollment{
					ParticipantID: "p-1",
					FormationID:   formation.ID,
					Status:        models.EnrollmentStatusEnrolled,
					EnrolledAt:    time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
				},
				ParticipantName: "Yasmine El Amrani",
			},
			{
				Enrollment: models.Enrollment{
					ParticipantID: "p-2",
					FormationID:   formation.ID,
					Status:        models.EnrollmentStatusPending,
					EnrolledAt:    time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC),
				},
				ParticipantName: "Omar Benali",
			},
		},
	}}

	absences := newFakeAbsenceRepo()
	for _, a := range []models.Absence{
		{ParticipantID: "p-1", FormationID: formation.ID, Status: models.AbsenceStatusJustified},
		{ParticipantID: "p-1", FormationID: formation.ID, Status: models.AbsenceStatusUnjustified},
		{ParticipantID: "p-2", FormationID: formation.ID, Status: models.AbsenceStatusUnjustified},
	} {
		absence := a
		require.NoError(t, absences.Create(context.Background(), &absence))
	}

	return formations, enrollments, absences, formation.ID
}

func TestReportServiceAttendanceSheetCSV(t *testing.T) {
	formations, enrollments, absences, formationID := reportFixtures(t)
	svc := NewReportService(formations, enrollments, absences, zap.NewNop())

	report, err := svc.AttendanceSheet(context.Background(), formationID, ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "presence-go-avancé.csv", report.FileName)
	assert.Equal(t, "text/csv", report.ContentType)

	body := string(report.Content)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Participant")
	assert.Contains(t, lines[0], "Non justifiées")
	assert.Contains(t, body, "Yasmine El Amrani")
	assert.Contains(t, body, "Omar Benali")

	// p-1 has 2 absences, 1 unjustified; p-2 has 1, 1 unjustified.
	for _, line := range lines[1:] {
		if strings.Contains(line, "Yasmine") {
			assert.Contains(t, line, "ENROLLED")
			assert.Contains(t, line, "2026-08-01")
		}
	}
}

func TestReportServiceAttendanceSheetPDF(t *testing.T) {
	formations, enrollments, absences, formationID := reportFixtures(t)
	svc := NewReportService(formations, enrollments, absences, zap.NewNop())

	report, err := svc.AttendanceSheet(context.Background(), formationID, ReportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "presence-go-avancé.pdf", report.FileName)
	assert.Equal(t, "application/pdf", report.ContentType)
	assert.True(t, bytes.HasPrefix(report.Content, []byte("%PDF")))
}

func TestReportServiceAttendanceSheetUnknownFormation(t *testing.T) {
	formations := newFakeFormationRepo()
	svc := NewReportService(formations, &fakeEnrollmentLister{}, newFakeAbsenceRepo(), zap.NewNop())

	_, err := svc.AttendanceSheet(context.Background(), "missing", ReportFormatCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

type failingFormationReader struct {
	err error
}

func (f *failingFormationReader) FindByID(ctx context.Context, id string) (*models.Formation, error) {
	return nil, f.err
}

func TestReportServiceAttendanceSheetFormationLookupFailure(t *testing.T) {
	formations := &failingFormationReader{err: errors.New("connection refused")}
	svc := NewReportService(formations, &fakeEnrollmentLister{}, newFakeAbsenceRepo(), zap.NewNop())

	_, err := svc.AttendanceSheet(context.Background(), "f-1", ReportFormatCSV)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
	assert.Equal(t, 500, appErr.Status)
}

func TestReportServiceAttendanceSheetUnsupportedFormat(t *testing.T) {
	formations, enrollments, absences, formationID := reportFixtures(t)
	svc := NewReportService(formations, enrollments, absences, zap.NewNop())

	_, err := svc.AttendanceSheet(context.Background(), formationID, ReportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
