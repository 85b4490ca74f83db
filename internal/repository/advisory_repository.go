package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/demandes-api/internal/models"
)

const (
	boardColumns   = `id, demande_id, round, policy, requested_by, outcome, created_at, concluded_at`
	opinionColumns = `id, demande_id, board_id, reviewer_id, opinion, observations, created_at, updated_at`
)

// AdvisoryRepository persists advisory boards and their opinions.
type AdvisoryRepository struct {
	db *sqlx.DB
}

// NewAdvisoryRepository constructs the repository.
func NewAdvisoryRepository(db *sqlx.DB) *AdvisoryRepository {
	return &AdvisoryRepository{db: db}
}

func (r *AdvisoryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateBoard opens a new round for the request with one PENDING opinion per reviewer.
// board.Round is assigned as the previous round plus one.
func (r *AdvisoryRepository) CreateBoard(ctx context.Context, exec sqlx.ExtContext, board *models.AdvisoryBoard, reviewerIDs []string) ([]models.AdvisoryOpinion, error) {
	target := r.exec(exec)
	if board.ID == "" {
		board.ID = uuid.NewString()
	}
	if board.CreatedAt.IsZero() {
		board.CreatedAt = time.Now().UTC()
	}

	const boardQuery = `INSERT INTO advisory_boards (id, demande_id, round, policy, requested_by, created_at)
SELECT $1::uuid, $2::uuid, COALESCE(MAX(round), 0) + 1, $3::text, $4::uuid, $5::timestamptz FROM advisory_boards WHERE demande_id = $2::uuid
RETURNING round`
	var round int
	if err := sqlx.GetContext(ctx, target, &round, boardQuery,
		board.ID, board.DemandeID, board.Policy, board.RequestedBy, board.CreatedAt); err != nil {
		return nil, fmt.Errorf("create advisory board: %w", err)
	}
	board.Round = round

	const opinionQuery = `INSERT INTO advisory_opinions (id, demande_id, board_id, reviewer_id, opinion, observations, created_at, updated_at)
VALUES (:id, :demande_id, :board_id, :reviewer_id, :opinion, :observations, :created_at, :updated_at)`
	opinions := make([]models.AdvisoryOpinion, 0, len(reviewerIDs))
	for _, reviewerID := range reviewerIDs {
		op := models.AdvisoryOpinion{
			ID:         uuid.NewString(),
			DemandeID:  board.DemandeID,
			BoardID:    board.ID,
			ReviewerID: reviewerID,
			Opinion:    models.OpinionPending,
			CreatedAt:  board.CreatedAt,
			UpdatedAt:  board.CreatedAt,
		}
		if _, err := sqlx.NamedExecContext(ctx, target, opinionQuery, op); err != nil {
			return nil, fmt.Errorf("create advisory opinion stub: %w", err)
		}
		opinions = append(opinions, op)
	}
	return opinions, nil
}

// OpenBoard returns the unconcluded board of a request.
func (r *AdvisoryRepository) OpenBoard(ctx context.Context, demandeID string) (*models.AdvisoryBoard, error) {
	if malformedID(demandeID) {
		return nil, sql.ErrNoRows
	}
	query := `SELECT ` + boardColumns + ` FROM advisory_boards
WHERE demande_id = $1 AND concluded_at IS NULL ORDER BY round DESC LIMIT 1`
	var board models.AdvisoryBoard
	if err := r.db.GetContext(ctx, &board, query, demandeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get open advisory board: %w", err)
	}
	return &board, nil
}

// ListBoards returns every round of a request, oldest first.
func (r *AdvisoryRepository) ListBoards(ctx context.Context, demandeID string) ([]models.AdvisoryBoard, error) {
	query := `SELECT ` + boardColumns + ` FROM advisory_boards WHERE demande_id = $1 ORDER BY round ASC`
	var boards []models.AdvisoryBoard
	if err := r.db.SelectContext(ctx, &boards, query, demandeID); err != nil {
		return nil, fmt.Errorf("list advisory boards: %w", err)
	}
	return boards, nil
}

// ListOpinions returns the opinions attached to a board.
func (r *AdvisoryRepository) ListOpinions(ctx context.Context, boardID string) ([]models.AdvisoryOpinion, error) {
	query := `SELECT ` + opinionColumns + ` FROM advisory_opinions WHERE board_id = $1 ORDER BY created_at ASC, reviewer_id ASC`
	var opinions []models.AdvisoryOpinion
	if err := r.db.SelectContext(ctx, &opinions, query, boardID); err != nil {
		return nil, fmt.Errorf("list advisory opinions: %w", err)
	}
	return opinions, nil
}

// FindOpinion returns the reviewer's slot on a board.
func (r *AdvisoryRepository) FindOpinion(ctx context.Context, boardID, reviewerID string) (*models.AdvisoryOpinion, error) {
	if malformedID(boardID, reviewerID) {
		return nil, sql.ErrNoRows
	}
	query := `SELECT ` + opinionColumns + ` FROM advisory_opinions WHERE board_id = $1 AND reviewer_id = $2`
	var op models.AdvisoryOpinion
	if err := r.db.GetContext(ctx, &op, query, boardID, reviewerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find advisory opinion: %w", err)
	}
	return &op, nil
}

// RecordOpinion fills a PENDING slot. ErrStatusConflict means the slot was already recorded.
func (r *AdvisoryRepository) RecordOpinion(ctx context.Context, opinionID string, value models.OpinionValue, observations string, at time.Time) error {
	const query = `UPDATE advisory_opinions SET opinion = $2, observations = $3, updated_at = $4
WHERE id = $1 AND opinion = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, opinionID, value, observations, at)
	if err != nil {
		return fmt.Errorf("record advisory opinion: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check advisory opinion rows: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}
	return nil
}

// Conclude stamps the outcome on an open board.
func (r *AdvisoryRepository) Conclude(ctx context.Context, exec sqlx.ExtContext, boardID string, outcome models.AdvisoryOutcome, at time.Time) error {
	const query = `UPDATE advisory_boards SET outcome = $2, concluded_at = $3 WHERE id = $1 AND concluded_at IS NULL`
	result, err := r.exec(exec).ExecContext(ctx, query, boardID, outcome, at)
	if err != nil {
		return fmt.Errorf("conclude advisory board: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check advisory board rows: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}
	return nil
}
