package dto

import "time"

// VerificationResult reports whether a printed verification code matches a signed authorization.
type VerificationResult struct {
	Valid     bool       `json:"valid"`
	Reference string     `json:"reference,omitempty"`
	Type      string     `json:"type,omitempty"`
	Status    string     `json:"status,omitempty"`
	SignedAt  *time.Time `json:"signed_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}
