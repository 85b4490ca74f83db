package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/demandes-api/internal/models"
)

func TestAuditRepositoryAppendAssignsSequence(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(MAX(sequence), 0) + 1")).
		WithArgs(sqlmock.AnyArg(), "d-1", "u-1", "FIELD_AUTHORITY", "validateField", "SUBMITTED", "FIELD_VALIDATED", "ok", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(3))

	tx, err := db.Beginx()
	require.NoError(t, err)

	entry := &models.AuditEntry{
		DemandeID:  "d-1",
		ActorID:    "u-1",
		ActorRole:  models.RoleFieldAuthority,
		Action:     "validateField",
		FromStatus: models.StatusSubmitted,
		ToStatus:   models.StatusFieldValidated,
		Note:       "ok",
	}
	require.NoError(t, repo.Append(context.Background(), tx, entry))
	assert.Equal(t, 3, entry.Sequence)
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryAppendRequiresTransaction(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	err := repo.Append(context.Background(), nil, &models.AuditEntry{DemandeID: "d-1"})
	require.Error(t, err)
}

func TestAuditRepositoryListByDemandeOrdersBySequence(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "demande_id", "sequence", "actor_id", "actor_role", "action", "from_status", "to_status", "note", "created_at"}).
		AddRow("a-1", "d-1", 1, "u-1", "FIELD_AUTHORITY", "validateField", "SUBMITTED", "FIELD_VALIDATED", "", now).
		AddRow("a-2", "d-1", 2, "u-1", "FIELD_AUTHORITY", "transmitToDirectorate", "FIELD_VALIDATED", "TRANSMITTED_TO_DIRECTORATE", "", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_entries WHERE demande_id = $1 ORDER BY sequence ASC")).
		WithArgs("d-1").
		WillReturnRows(rows)

	entries, err := repo.ListByDemande(context.Background(), "d-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.StatusTransmittedToDirectorate, entries[1].ToStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
