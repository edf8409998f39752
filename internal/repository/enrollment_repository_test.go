package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehdifatimi/formation-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*EnrollmentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewEnrollmentRepository(sqlxDB), mock, func() { sqlxDB.Close() }
}

func TestEnrollmentRepositoryAttach(t *testing.T) {
	repo, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO enrollments`)).
		WithArgs(sqlmock.AnyArg(), "f-1", "p-1", "ENROLLED", sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{
		FormationID:   "f-1",
		ParticipantID: "p-1",
		Status:        models.EnrollmentStatusEnrolled,
	}
	err := repo.Attach(context.Background(), enrollment)
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, 1, enrollment.Version)
	assert.False(t, enrollment.EnrolledAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAttachDuplicate(t *testing.T) {
	repo, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO enrollments`)).
		WithArgs(sqlmock.AnyArg(), "f-1", "p-1", "PENDING", sqlmock.AnyArg(), 1).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Attach(context.Background(), &models.Enrollment{
		FormationID:   "f-1",
		ParticipantID: "p-1",
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByPair(t *testing.T) {
	repo, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	enrolledAt := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "formation_id", "participant_id", "status", "enrolled_at", "version"}).
		AddRow("e-1", "f-1", "p-1", "ENROLLED", enrolledAt, 2)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM enrollments WHERE formation_id = $1 AND participant_id = $2`)).
		WithArgs("f-1", "p-1").
		WillReturnRows(rows)

	enrollment, err := repo.FindByPair(context.Background(), "f-1", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "e-1", enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.Equal(t, 2, enrollment.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDetachReportsAffected(t *testing.T) {
	repo, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM enrollments WHERE formation_id = $1 AND participant_id = $2`)).
		WithArgs("f-1", "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM enrollments WHERE formation_id = $1 AND participant_id = $2`)).
		WithArgs("f-1", "p-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := repo.Detach(context.Background(), "f-1", "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = repo.Detach(context.Background(), "f-1", "p-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatusStale(t *testing.T) {
	repo, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE enrollments SET status = $3, version = version + 1 WHERE id = $1 AND version = $2`)).
		WithArgs("e-1", 1, models.EnrollmentStatusAbandoned).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "e-1", 1, models.EnrollmentStatusAbandoned)
	assert.ErrorIs(t, err, ErrStaleVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}
