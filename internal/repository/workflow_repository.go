package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/pkg/database"
)

// TransitionRecord describes everything one lifecycle action writes. Optional
// side writes are skipped when left empty.
type TransitionRecord struct {
	DemandeID string
	From      models.DemandeStatus
	To        models.DemandeStatus
	At        time.Time
	Audit     models.AuditEntry

	// reassign
	AssigneeID *string
	// sign
	FinalDocument []byte
	SignedBy      string
	// requestAdvisory
	Board       *models.AdvisoryBoard
	ReviewerIDs []string
	// advisoryForward / advisoryReturn
	ConcludeBoardID string
	Outcome         models.AdvisoryOutcome
	// close
	Archive *models.ArchiveRecord
}

// CommitResult carries the rows produced by a committed transition.
type CommitResult struct {
	Audit    models.AuditEntry
	Opinions []models.AdvisoryOpinion
}

type auditAppender interface {
	Append(ctx context.Context, exec sqlx.ExtContext, entry *models.AuditEntry) error
}

type boardWriter interface {
	CreateBoard(ctx context.Context, exec sqlx.ExtContext, board *models.AdvisoryBoard, reviewerIDs []string) ([]models.AdvisoryOpinion, error)
	Conclude(ctx context.Context, exec sqlx.ExtContext, boardID string, outcome models.AdvisoryOutcome, at time.Time) error
}

type archiveInserter interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, record *models.ArchiveRecord) error
}

// WorkflowRepository applies a transition and its side writes atomically.
type WorkflowRepository struct {
	db       *sqlx.DB
	audit    auditAppender
	advisory boardWriter
	archive  archiveInserter
}

// NewWorkflowRepository wires the repositories written inside a transition.
func NewWorkflowRepository(db *sqlx.DB, audit auditAppender, advisory boardWriter, archive archiveInserter) *WorkflowRepository {
	return &WorkflowRepository{db: db, audit: audit, advisory: advisory, archive: archive}
}

// Commit compare-and-sets the request status from rec.From to rec.To and writes
// the audit entry plus the action side writes in the same transaction.
// ErrStatusConflict means the status moved since it was read.
func (r *WorkflowRepository) Commit(ctx context.Context, rec TransitionRecord) (*CommitResult, error) {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	result := &CommitResult{}
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := r.compareAndSet(ctx, tx, rec); err != nil {
			return err
		}

		entry := rec.Audit
		entry.DemandeID = rec.DemandeID
		entry.FromStatus = rec.From
		entry.ToStatus = rec.To
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = rec.At
		}
		if err := r.audit.Append(ctx, tx, &entry); err != nil {
			return err
		}
		result.Audit = entry

		if rec.Board != nil {
			opinions, err := r.advisory.CreateBoard(ctx, tx, rec.Board, rec.ReviewerIDs)
			if err != nil {
				return err
			}
			result.Opinions = opinions
		}
		if rec.ConcludeBoardID != "" {
			if err := r.advisory.Conclude(ctx, tx, rec.ConcludeBoardID, rec.Outcome, rec.At); err != nil {
				return err
			}
		}
		if rec.Archive != nil {
			if err := r.archive.Insert(ctx, tx, rec.Archive); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *WorkflowRepository) compareAndSet(ctx context.Context, tx *sqlx.Tx, rec TransitionRecord) error {
	sets := []string{"status = $3", "updated_at = $4"}
	args := []interface{}{rec.DemandeID, rec.From, rec.To, rec.At}
	if rec.AssigneeID != nil {
		args = append(args, *rec.AssigneeID)
		sets = append(sets, fmt.Sprintf("assignee_id = $%d", len(args)))
	}
	if len(rec.FinalDocument) > 0 {
		args = append(args, rec.FinalDocument)
		sets = append(sets, fmt.Sprintf("final_document = $%d", len(args)))
		args = append(args, rec.SignedBy)
		sets = append(sets, fmt.Sprintf("signed_by = $%d", len(args)))
		sets = append(sets, "signed_at = $4")
	}
	query := fmt.Sprintf("UPDATE demandes SET %s WHERE id = $1 AND status = $2", strings.Join(sets, ", "))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update demande status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check demande status rows: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}
	return nil
}
