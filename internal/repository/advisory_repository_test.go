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

func TestAdvisoryRepositoryCreateBoardCreatesStubs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvisoryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO advisory_boards")).
		WithArgs(sqlmock.AnyArg(), "d-1", "MAJORITY", "dg-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"round"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO advisory_opinions")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO advisory_opinions")).WillReturnResult(sqlmock.NewResult(1, 1))

	board := &models.AdvisoryBoard{DemandeID: "d-1", Policy: "MAJORITY", RequestedBy: "dg-1"}
	opinions, err := repo.CreateBoard(context.Background(), nil, board, []string{"r-1", "r-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, board.Round)
	require.Len(t, opinions, 2)
	for _, op := range opinions {
		assert.Equal(t, models.OpinionPending, op.Opinion)
		assert.Equal(t, board.ID, op.BoardID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryRepositoryRecordOpinionOnlyOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvisoryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE advisory_opinions SET opinion = $2")).
		WithArgs("op-1", "FAVORABLE", "fine", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE advisory_opinions SET opinion = $2")).
		WithArgs("op-1", "UNFAVORABLE", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.RecordOpinion(context.Background(), "op-1", models.OpinionFavorable, "fine", time.Now()))
	err := repo.RecordOpinion(context.Background(), "op-1", models.OpinionUnfavorable, "", time.Now())
	require.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryRepositoryOpenBoard(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdvisoryRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM advisory_boards WHERE demande_id = $1 AND concluded_at IS NULL")).
		WithArgs(testDemandeID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "demande_id", "round", "policy", "requested_by", "outcome", "created_at", "concluded_at"}).
			AddRow("b-1", testDemandeID, 1, "MAJORITY", "dg-1", nil, now, nil))

	board, err := repo.OpenBoard(context.Background(), testDemandeID)
	require.NoError(t, err)
	assert.True(t, board.Open())
	assert.Nil(t, board.Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}
