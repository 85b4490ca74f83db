package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/demandes-api/internal/models"
)

func newWorkflowRepo(db *sqlx.DB) *WorkflowRepository {
	return NewWorkflowRepository(db, NewAuditRepository(db), NewAdvisoryRepository(db), NewArchiveRepository(db))
}

func TestWorkflowRepositoryCommitWritesAudit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := newWorkflowRepo(db)

	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE demandes SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("d-1", "SUBMITTED", "FIELD_VALIDATED", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(1))
	mock.ExpectCommit()

	result, err := repo.Commit(context.Background(), TransitionRecord{
		DemandeID: "d-1",
		From:      models.StatusSubmitted,
		To:        models.StatusFieldValidated,
		At:        at,
		Audit:     models.AuditEntry{ActorID: "fa-1", ActorRole: models.RoleFieldAuthority, Action: "validateField"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Audit.Sequence)
	assert.Equal(t, models.StatusSubmitted, result.Audit.FromStatus)
	assert.Equal(t, at, result.Audit.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryCommitConflictRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := newWorkflowRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE demandes SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Commit(context.Background(), TransitionRecord{DemandeID: "d-1", From: models.StatusSigned, To: models.StatusClosed})
	require.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryCommitSignStoresDocument(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := newWorkflowRepo(db)

	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE demandes SET status = $3, updated_at = $4, final_document = $5, signed_by = $6, signed_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("d-1", "PENDING_MINISTER_SIGNATURE", "SIGNED", at, []byte("%PDF"), "min-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(9))
	mock.ExpectCommit()

	_, err := repo.Commit(context.Background(), TransitionRecord{
		DemandeID:     "d-1",
		From:          models.StatusPendingMinisterSignature,
		To:            models.StatusSigned,
		At:            at,
		FinalDocument: []byte("%PDF"),
		SignedBy:      "min-1",
		Audit:         models.AuditEntry{ActorID: "min-1", ActorRole: models.RoleMinister, Action: "sign"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryCommitAdvisoryRequestCreatesBoard(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := newWorkflowRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE demandes SET status")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO advisory_boards")).
		WillReturnRows(sqlmock.NewRows([]string{"round"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO advisory_opinions")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO advisory_opinions")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := repo.Commit(context.Background(), TransitionRecord{
		DemandeID:   "d-1",
		From:        models.StatusDirectorateValidated,
		To:          models.StatusPendingAdvisory,
		Board:       &models.AdvisoryBoard{DemandeID: "d-1", Policy: "MAJORITY", RequestedBy: "dg-1"},
		ReviewerIDs: []string{"r-1", "r-2"},
		Audit:       models.AuditEntry{ActorID: "dg-1", ActorRole: models.RoleGeneralDirectorate, Action: "requestAdvisory"},
	})
	require.NoError(t, err)
	assert.Len(t, result.Opinions, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryCommitCloseArchiveConflictRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := newWorkflowRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE demandes SET status")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(10))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO archive_records")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.Commit(context.Background(), TransitionRecord{
		DemandeID: "d-1",
		From:      models.StatusSigned,
		To:        models.StatusClosed,
		Archive: &models.ArchiveRecord{
			DemandeID:         "d-1",
			Reference:         "AUT-1",
			RequesterSnapshot: json.RawMessage(`{}`),
			PayloadSnapshot:   json.RawMessage(`{}`),
		},
		Audit: models.AuditEntry{ActorID: "min-1", ActorRole: models.RoleMinister, Action: "close"},
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
