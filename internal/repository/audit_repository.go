package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/demandes-api/internal/models"
)

// AuditRepository stores the append-only transition trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts entry with the next per-request sequence number. It must run
// inside the transaction that changed the request status; the status row lock
// taken by that update serialises sequence allocation.
func (r *AuditRepository) Append(ctx context.Context, exec sqlx.ExtContext, entry *models.AuditEntry) error {
	if exec == nil {
		return fmt.Errorf("append audit entry: transaction required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_entries (id, demande_id, sequence, actor_id, actor_role, action, from_status, to_status, note, created_at)
SELECT $1::uuid, $2::uuid, COALESCE(MAX(sequence), 0) + 1, $3::text, $4::text, $5::text, $6::text, $7::text, $8::text, $9::timestamptz
FROM audit_entries WHERE demande_id = $2::uuid
RETURNING sequence`
	var seq int
	if err := sqlx.GetContext(ctx, exec, &seq, query,
		entry.ID,
		entry.DemandeID,
		entry.ActorID,
		entry.ActorRole,
		entry.Action,
		entry.FromStatus,
		entry.ToStatus,
		entry.Note,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	entry.Sequence = seq
	return nil
}

// ListByDemande returns the trail of a request in commit order.
func (r *AuditRepository) ListByDemande(ctx context.Context, demandeID string) ([]models.AuditEntry, error) {
	const query = `SELECT id, demande_id, sequence, actor_id, actor_role, action, from_status, to_status, note, created_at
FROM audit_entries WHERE demande_id = $1 ORDER BY sequence ASC`
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, demandeID); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
