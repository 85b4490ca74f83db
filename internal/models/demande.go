package models

import (
	"encoding/json"
	"time"
)

// DemandeType is the closed set of installation kinds a request may ask for.
type DemandeType string

const (
	DemandeTypeProduction DemandeType = "PRODUCTION"
	DemandeTypeStorage    DemandeType = "STORAGE"
	DemandeTypeProcessing DemandeType = "PROCESSING"
)

// Label is the lower-case wording used in document subjects.
func (t DemandeType) Label() string {
	switch t {
	case DemandeTypeProduction:
		return "production"
	case DemandeTypeStorage:
		return "storage"
	case DemandeTypeProcessing:
		return "processing"
	default:
		return string(t)
	}
}

// Valid reports whether t is a known request type.
func (t DemandeType) Valid() bool {
	switch t {
	case DemandeTypeProduction, DemandeTypeStorage, DemandeTypeProcessing:
		return true
	}
	return false
}

// DemandeStatus is the lifecycle position of a request.
type DemandeStatus string

const (
	StatusSubmitted                DemandeStatus = "SUBMITTED"
	StatusUnderFieldReview         DemandeStatus = "UNDER_FIELD_REVIEW"
	StatusFieldValidated           DemandeStatus = "FIELD_VALIDATED"
	StatusTransmittedToDirectorate DemandeStatus = "TRANSMITTED_TO_DIRECTORATE"
	StatusUnderDirectorateReview   DemandeStatus = "UNDER_DIRECTORATE_REVIEW"
	StatusDirectorateValidated     DemandeStatus = "DIRECTORATE_VALIDATED"
	StatusTransmittedToMinister    DemandeStatus = "TRANSMITTED_TO_MINISTER"
	StatusPendingAdvisory          DemandeStatus = "PENDING_ADVISORY"
	StatusPendingMinisterSignature DemandeStatus = "PENDING_MINISTER_SIGNATURE"
	StatusSigned                   DemandeStatus = "SIGNED"
	StatusClosed                   DemandeStatus = "CLOSED"
	StatusReturned                 DemandeStatus = "RETURNED"
	StatusComplementRequested      DemandeStatus = "COMPLEMENT_REQUESTED"
	StatusReassigned               DemandeStatus = "REASSIGNED"
)

// AllStatuses lists every status in lifecycle order, side states last.
var AllStatuses = []DemandeStatus{
	StatusSubmitted,
	StatusUnderFieldReview,
	StatusFieldValidated,
	StatusTransmittedToDirectorate,
	StatusUnderDirectorateReview,
	StatusDirectorateValidated,
	StatusTransmittedToMinister,
	StatusPendingAdvisory,
	StatusPendingMinisterSignature,
	StatusSigned,
	StatusClosed,
	StatusReturned,
	StatusComplementRequested,
	StatusReassigned,
}

// Demande is an authorization request moving through the lifecycle.
type Demande struct {
	ID            string          `db:"id" json:"id"`
	Reference     string          `db:"reference" json:"reference"`
	Type          DemandeType     `db:"type" json:"type"`
	Status        DemandeStatus   `db:"status" json:"status"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	RequesterID   string          `db:"requester_id" json:"requester_id"`
	AssigneeID    *string         `db:"assignee_id" json:"assignee_id,omitempty"`
	FinalDocument []byte          `db:"final_document" json:"-"`
	SignedBy      *string         `db:"signed_by" json:"signed_by,omitempty"`
	SignedAt      *time.Time      `db:"signed_at" json:"signed_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// HasFinalDocument reports whether the signed authorization is stored.
func (d *Demande) HasFinalDocument() bool {
	return len(d.FinalDocument) > 0
}

// DemandeFilter constrains listing queries.
type DemandeFilter struct {
	Status      []DemandeStatus
	Type        DemandeType
	RequesterID string
	Search      string
	Limit       int
	Offset      int
}

// CreateDemandeRequest is the ingestion payload for a new request.
type CreateDemandeRequest struct {
	Type    DemandeType     `json:"type" validate:"required,oneof=PRODUCTION STORAGE PROCESSING"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// ActionRequest carries the optional inputs of a named lifecycle action.
type ActionRequest struct {
	Comment     string   `json:"comment" validate:"max=2000"`
	AssigneeID  string   `json:"assignee_id,omitempty" validate:"omitempty,uuid"`
	ReviewerIDs []string `json:"reviewer_ids,omitempty" validate:"omitempty,dive,uuid"`
}

// SignatureUpload is an optional signature asset supplied with the sign action.
type SignatureUpload struct {
	ContentType string
	Data        []byte
}

// TransitionResult reports the outcome of a committed action.
type TransitionResult struct {
	DemandeID string         `json:"demande_id"`
	Reference string         `json:"reference"`
	Action    string         `json:"action"`
	From      DemandeStatus  `json:"from"`
	Status    DemandeStatus  `json:"status"`
	Archive   *ArchiveRecord `json:"archive,omitempty"`
}
