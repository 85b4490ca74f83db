package models

import "time"

// Notification is an inbox entry produced by a lifecycle transition.
type Notification struct {
	ID          string        `db:"id" json:"id"`
	RecipientID string        `db:"recipient_id" json:"recipient_id"`
	DemandeID   *string       `db:"demande_id" json:"demande_id,omitempty"`
	Type        DemandeStatus `db:"type" json:"type"`
	Message     string        `db:"message" json:"message"`
	Read        bool          `db:"read" json:"read"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	ReadAt      *time.Time    `db:"read_at" json:"read_at,omitempty"`
}

// NotificationFilter constrains inbox listings.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
	Offset      int
}

// TransitionEvent describes a committed transition to post-commit listeners.
type TransitionEvent struct {
	DemandeID   string
	Reference   string
	RequesterID string
	Action      string
	From        DemandeStatus
	To          DemandeStatus
	Actor       Actor
	AssigneeID  string
	ReviewerIDs []string
	At          time.Time
}
