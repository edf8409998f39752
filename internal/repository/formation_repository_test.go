package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehdifatimi/formation-api/internal/models"
)

func newFormationRepoMock(t *testing.T) (*FormationRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewFormationRepository(sqlxDB), mock, func() { sqlxDB.Close() }
}

func TestFormationRepositoryFindByID(t *testing.T) {
	repo, mock, cleanup := newFormationRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "titre", "statut", "version"}).
		AddRow("f-1", "Go avancé", "PENDING", 1)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM formations f WHERE f.id = $1`)).
		WithArgs("f-1").
		WillReturnRows(rows)

	formation, err := repo.FindByID(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, "Go avancé", formation.Titre)
	assert.Equal(t, models.FormationStatusPending, formation.Statut)
	assert.Equal(t, 1, formation.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormationRepositoryFindByIDMissing(t *testing.T) {
	repo, mock, cleanup := newFormationRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM formations f WHERE f.id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormationRepositoryUpdateStatus(t *testing.T) {
	repo, mock, cleanup := newFormationRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE formations SET statut = $3, version = version + 1, updated_at = $4`)).
		WithArgs("f-1", 2, models.FormationStatusOngoing, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "f-1", 2, models.FormationStatusOngoing)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormationRepositoryUpdateStatusStaleVersion(t *testing.T) {
	repo, mock, cleanup := newFormationRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE formations SET statut = $3, version = version + 1, updated_at = $4`)).
		WithArgs("f-1", 1, models.FormationStatusOngoing, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "f-1", 1, models.FormationStatusOngoing)
	assert.ErrorIs(t, err, ErrStaleVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormationRepositoryValidateCommitsAuditRow(t *testing.T) {
	repo, mock, cleanup := newFormationRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE formations SET statut = $3, validated_by = $4, validated_at = $5,`)).
		WithArgs("f-1", 1, models.FormationStatusValidated, "cdc-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO formation_validations`)).
		WithArgs(sqlmock.AnyArg(), "f-1", "cdc-1", "Conforme", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Validate(context.Background(), "f-1", 1, "cdc-1", "Conforme")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormationRepositoryValidateStaleVersionRollsBack(t *testing.T) {
	repo, mock, cleanup := newFormationRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE formations SET statut = $3, validated_by = $4, validated_at = $5,`)).
		WithArgs("f-1", 1, models.FormationStatusValidated, "cdc-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Validate(context.Background(), "f-1", 1, "cdc-1", "")
	assert.ErrorIs(t, err, ErrStaleVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormationRepositoryRejectStaleVersion(t *testing.T) {
	repo, mock, cleanup := newFormationRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE formations SET statut = $3, validated_by = $4, rejection_reason = $5,`)).
		WithArgs("f-1", 3, models.FormationStatusRejected, "drf-1", "Budget insuffisant", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Reject(context.Background(), "f-1", 3, "drf-1", "Budget insuffisant")
	assert.ErrorIs(t, err, ErrStaleVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormationRepositoryDeleteCascades(t *testing.T) {
	repo, mock, cleanup := newFormationRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM absences WHERE formation_id = $1`)).
		WithArgs("f-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM enrollments WHERE formation_id = $1`)).
		WithArgs("f-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM formation_validations WHERE formation_id = $1`)).
		WithArgs("f-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM formations WHERE id = $1`)).
		WithArgs("f-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "f-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormationRepositoryDeleteMissing(t *testing.T) {
	repo, mock, cleanup := newFormationRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM absences WHERE formation_id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM enrollments WHERE formation_id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM formation_validations WHERE formation_id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM formations WHERE id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
