package models

import "time"

// OpinionValue is a reviewer's position on a request.
type OpinionValue string

const (
	OpinionPending     OpinionValue = "PENDING"
	OpinionFavorable   OpinionValue = "FAVORABLE"
	OpinionUnfavorable OpinionValue = "UNFAVORABLE"
	OpinionReserved    OpinionValue = "RESERVED"
	OpinionDeferred    OpinionValue = "DEFERRED"
)

// Terminal reports whether the opinion has been recorded.
func (o OpinionValue) Terminal() bool {
	switch o {
	case OpinionFavorable, OpinionUnfavorable, OpinionReserved, OpinionDeferred:
		return true
	}
	return false
}

// AdvisoryOutcome is the aggregated result of a concluded board.
type AdvisoryOutcome string

const (
	AdvisoryOutcomeForward AdvisoryOutcome = "FORWARD"
	AdvisoryOutcomeReturn  AdvisoryOutcome = "RETURN"
)

// AdvisoryBoard is one consultation round on a request.
type AdvisoryBoard struct {
	ID          string           `db:"id" json:"id"`
	DemandeID   string           `db:"demande_id" json:"demande_id"`
	Round       int              `db:"round" json:"round"`
	Policy      string           `db:"policy" json:"policy"`
	RequestedBy string           `db:"requested_by" json:"requested_by"`
	Outcome     *AdvisoryOutcome `db:"outcome" json:"outcome,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	ConcludedAt *time.Time       `db:"concluded_at" json:"concluded_at,omitempty"`
}

// Open reports whether the board still awaits a conclusion.
func (b *AdvisoryBoard) Open() bool {
	return b.ConcludedAt == nil
}

// AdvisoryOpinion is one reviewer's slot on a board.
type AdvisoryOpinion struct {
	ID           string       `db:"id" json:"id"`
	DemandeID    string       `db:"demande_id" json:"demande_id"`
	BoardID      string       `db:"board_id" json:"board_id"`
	ReviewerID   string       `db:"reviewer_id" json:"reviewer_id"`
	Opinion      OpinionValue `db:"opinion" json:"opinion"`
	Observations string       `db:"observations" json:"observations,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// RecordOpinionRequest is the body of an advisory opinion submission.
type RecordOpinionRequest struct {
	Opinion      OpinionValue `json:"opinion" validate:"required,oneof=FAVORABLE UNFAVORABLE RESERVED DEFERRED"`
	Observations string       `json:"observations" validate:"max=4000"`
}

// AdvisoryRound groups a board with its opinions for read endpoints.
type AdvisoryRound struct {
	Board    AdvisoryBoard     `json:"board"`
	Opinions []AdvisoryOpinion `json:"opinions"`
}

// OpinionResult reports the effect of a recorded opinion.
type OpinionResult struct {
	Opinion   AdvisoryOpinion  `json:"opinion"`
	Concluded bool             `json:"concluded"`
	Outcome   *AdvisoryOutcome `json:"outcome,omitempty"`
	Status    DemandeStatus    `json:"status"`
}
