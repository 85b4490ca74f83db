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
	"github.com/noah-isme/demandes-api/pkg/database"
)

const archiveMetaColumns = `id, demande_id, reference, type, requester_snapshot, final_status, payload_snapshot, document_sha256, closed_by, closed_at`

// ArchiveRepository handles immutable archive snapshots. There is no update path.
type ArchiveRepository struct {
	db *sqlx.DB
}

// NewArchiveRepository constructs the repository.
func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// Insert stores a snapshot inside the closing transaction. Unique violations on
// the request or the reference surface as ErrArchiveExists.
func (r *ArchiveRepository) Insert(ctx context.Context, exec sqlx.ExtContext, record *models.ArchiveRecord) error {
	if exec == nil {
		exec = r.db
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ClosedAt.IsZero() {
		record.ClosedAt = time.Now().UTC()
	}
	const query = `INSERT INTO archive_records
	(id, demande_id, reference, type, requester_snapshot, final_status, payload_snapshot, document, document_sha256, closed_by, closed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := exec.ExecContext(ctx, query,
		record.ID,
		record.DemandeID,
		record.Reference,
		record.Type,
		string(record.RequesterSnapshot),
		record.FinalStatus,
		string(record.PayloadSnapshot),
		record.Document,
		record.DocumentSHA256,
		record.ClosedBy,
		record.ClosedAt,
	); err != nil {
		if database.IsUniqueViolation(err, "") {
			return fmt.Errorf("archive %s: %w", record.Reference, ErrArchiveExists)
		}
		return fmt.Errorf("insert archive record: %w", err)
	}
	return nil
}

// GetByDemande returns the snapshot for a request, without the document bytes.
func (r *ArchiveRepository) GetByDemande(ctx context.Context, demandeID string) (*models.ArchiveRecord, error) {
	return r.getOne(ctx, "demande_id", demandeID, false)
}

// GetByID returns a snapshot including its document bytes.
func (r *ArchiveRepository) GetByID(ctx context.Context, id string) (*models.ArchiveRecord, error) {
	return r.getOne(ctx, "id", id, true)
}

// GetByReference returns a snapshot by the archived request reference.
func (r *ArchiveRepository) GetByReference(ctx context.Context, reference string) (*models.ArchiveRecord, error) {
	return r.getOne(ctx, "reference", reference, false)
}

func (r *ArchiveRepository) getOne(ctx context.Context, column, value string, withDocument bool) (*models.ArchiveRecord, error) {
	if column != "reference" && malformedID(value) {
		return nil, sql.ErrNoRows
	}
	columns := archiveMetaColumns
	if withDocument {
		columns += ", document"
	}
	query := fmt.Sprintf("SELECT %s FROM archive_records WHERE %s = $1", columns, column)
	var record models.ArchiveRecord
	if err := r.db.GetContext(ctx, &record, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get archive record: %w", err)
	}
	return &record, nil
}

// List returns snapshots matching the filter, most recently closed first.
func (r *ArchiveRepository) List(ctx context.Context, filter models.ArchiveFilter) ([]models.ArchiveRecord, int, error) {
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 4)
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Reference != "" {
		args = append(args, "%"+strings.ToUpper(filter.Reference)+"%")
		conditions = append(conditions, fmt.Sprintf("UPPER(reference) LIKE $%d", len(args)))
	}
	if filter.ClosedFrom != nil {
		args = append(args, *filter.ClosedFrom)
		conditions = append(conditions, fmt.Sprintf("closed_at >= $%d", len(args)))
	}
	if filter.ClosedTo != nil {
		args = append(args, *filter.ClosedTo)
		conditions = append(conditions, fmt.Sprintf("closed_at < $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM archive_records%s ORDER BY closed_at DESC, reference ASC LIMIT %d OFFSET %d",
		archiveMetaColumns, where, limit, offset)

	var records []models.ArchiveRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list archive records: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM archive_records"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count archive records: %w", err)
	}
	return records, total, nil
}

// Count returns the number of archived requests.
func (r *ArchiveRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM archive_records"); err != nil {
		return 0, fmt.Errorf("count archive records: %w", err)
	}
	return total, nil
}
