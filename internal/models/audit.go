package models

import "time"

// AuditEntry records one committed lifecycle transition. Rows are append-only.
type AuditEntry struct {
	ID         string        `db:"id" json:"id"`
	DemandeID  string        `db:"demande_id" json:"demande_id"`
	Sequence   int           `db:"sequence" json:"sequence"`
	ActorID    string        `db:"actor_id" json:"actor_id"`
	ActorRole  UserRole      `db:"actor_role" json:"actor_role"`
	Action     string        `db:"action" json:"action"`
	FromStatus DemandeStatus `db:"from_status" json:"from_status"`
	ToStatus   DemandeStatus `db:"to_status" json:"to_status"`
	Note       string        `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}
