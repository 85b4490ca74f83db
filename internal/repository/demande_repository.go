package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/internal/workflow"
)

const demandeSummaryColumns = `id, reference, type, status, payload, requester_id, assignee_id, signed_by, signed_at, created_at, updated_at`

// DemandeRepository persists authorization requests.
type DemandeRepository struct {
	db *sqlx.DB
}

// NewDemandeRepository constructs the repository.
func NewDemandeRepository(db *sqlx.DB) *DemandeRepository {
	return &DemandeRepository{db: db}
}

// Create allocates the next reference for the creation day and inserts the row
// in one transaction.
func (r *DemandeRepository) Create(ctx context.Context, prefix string, demande *models.Demande) (err error) {
	if demande.ID == "" {
		demande.ID = uuid.NewString()
	}
	if demande.CreatedAt.IsZero() {
		demande.CreatedAt = time.Now().UTC()
	}
	demande.UpdatedAt = demande.CreatedAt
	if demande.Status == "" {
		demande.Status = models.StatusSubmitted
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create demande: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	seq, err := r.nextSequence(ctx, tx, prefix, demande.CreatedAt)
	if err != nil {
		return err
	}
	demande.Reference = workflow.FormatReference(prefix, demande.CreatedAt, seq)

	const query = `INSERT INTO demandes (id, reference, type, status, payload, requester_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = tx.ExecContext(ctx, query,
		demande.ID,
		demande.Reference,
		demande.Type,
		demande.Status,
		string(demande.Payload),
		demande.RequesterID,
		demande.CreatedAt,
		demande.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create demande: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create demande: %w", err)
	}
	return nil
}

func (r *DemandeRepository) nextSequence(ctx context.Context, exec sqlx.ExtContext, prefix string, at time.Time) (int, error) {
	const query = `INSERT INTO reference_counters (prefix, day, last_value) VALUES ($1, $2, 1)
ON CONFLICT (prefix, day) DO UPDATE SET last_value = reference_counters.last_value + 1
RETURNING last_value`
	var seq int
	if err := sqlx.GetContext(ctx, exec, &seq, query, prefix, at.UTC().Format("2006-01-02")); err != nil {
		return 0, fmt.Errorf("allocate reference: %w", err)
	}
	if seq > workflow.MaxReferenceSequence {
		return 0, fmt.Errorf("allocate reference %s %s: %w", prefix, at.UTC().Format("2006-01-02"), workflow.ErrReferenceExhausted)
	}
	return seq, nil
}

// GetByID fetches a request including its final document bytes.
func (r *DemandeRepository) GetByID(ctx context.Context, id string) (*models.Demande, error) {
	if malformedID(id) {
		return nil, sql.ErrNoRows
	}
	query := `SELECT ` + demandeSummaryColumns + `, final_document FROM demandes WHERE id = $1`
	var demande models.Demande
	if err := r.db.GetContext(ctx, &demande, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get demande: %w", err)
	}
	return &demande, nil
}

// GetByReference fetches a request by its public reference.
func (r *DemandeRepository) GetByReference(ctx context.Context, reference string) (*models.Demande, error) {
	query := `SELECT ` + demandeSummaryColumns + ` FROM demandes WHERE reference = $1`
	var demande models.Demande
	if err := r.db.GetContext(ctx, &demande, query, reference); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get demande by reference: %w", err)
	}
	return &demande, nil
}

// List returns requests matching the filter, newest first, with the total count.
func (r *DemandeRepository) List(ctx context.Context, filter models.DemandeFilter) ([]models.Demande, int, error) {
	args := make([]interface{}, 0, 6)
	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToUpper(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("UPPER(reference) LIKE $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	listQuery := fmt.Sprintf("SELECT %s FROM demandes%s ORDER BY created_at DESC, reference DESC LIMIT %d OFFSET %d",
		demandeSummaryColumns, where, limit, offset)

	var demandes []models.Demande
	if err := r.db.SelectContext(ctx, &demandes, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list demandes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM demandes"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count demandes: %w", err)
	}
	return demandes, total, nil
}

// CountByStatus groups all requests by their current status.
func (r *DemandeRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM demandes GROUP BY status ORDER BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count demandes by status: %w", err)
	}
	return counts, nil
}

// UpdatePayload replaces the payload of a request that is back with its requester.
// Only RETURNED and COMPLEMENT_REQUESTED requests are editable.
func (r *DemandeRepository) UpdatePayload(ctx context.Context, id string, payload []byte, at time.Time) error {
	const query = `UPDATE demandes SET payload = $2, updated_at = $3
WHERE id = $1 AND status IN ('RETURNED', 'COMPLEMENT_REQUESTED')`
	result, err := r.db.ExecContext(ctx, query, id, string(payload), at)
	if err != nil {
		return fmt.Errorf("update demande payload: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check demande payload rows: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}
	return nil
}
