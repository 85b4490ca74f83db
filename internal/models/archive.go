package models

import (
	"encoding/json"
	"time"
)

// RequesterSnapshot freezes who asked for the authorization at closing time.
type RequesterSnapshot struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// ArchiveRecord is the immutable snapshot of a closed request.
type ArchiveRecord struct {
	ID                string          `db:"id" json:"id"`
	DemandeID         string          `db:"demande_id" json:"demande_id"`
	Reference         string          `db:"reference" json:"reference"`
	Type              DemandeType     `db:"type" json:"type"`
	RequesterSnapshot json.RawMessage `db:"requester_snapshot" json:"requester"`
	FinalStatus       DemandeStatus   `db:"final_status" json:"final_status"`
	PayloadSnapshot   json.RawMessage `db:"payload_snapshot" json:"payload"`
	Document          []byte          `db:"document" json:"-"`
	DocumentSHA256    string          `db:"document_sha256" json:"document_sha256"`
	ClosedBy          string          `db:"closed_by" json:"closed_by"`
	ClosedAt          time.Time       `db:"closed_at" json:"closed_at"`
}

// Requester decodes the stored requester snapshot.
func (a *ArchiveRecord) Requester() (RequesterSnapshot, error) {
	var snap RequesterSnapshot
	if len(a.RequesterSnapshot) == 0 {
		return snap, nil
	}
	err := json.Unmarshal(a.RequesterSnapshot, &snap)
	return snap, err
}

// ArchiveFilter narrows listing queries by metadata fields.
type ArchiveFilter struct {
	Type       DemandeType
	Reference  string
	ClosedFrom *time.Time
	ClosedTo   *time.Time
	Limit      int
	Offset     int
}

// DownloadLink is a time-limited URL for a stored document.
type DownloadLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
