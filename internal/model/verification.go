package model

import "time"

// VerificationTier is the discrete trust level assigned to a claim.
type VerificationTier string

const (
	TierAuto             VerificationTier = "auto"
	TierAutoHigh         VerificationTier = "auto_high"
	TierCreatorConfirmed VerificationTier = "creator_confirmed"
	TierBrandVerified    VerificationTier = "brand_verified"
	TierDisputed         VerificationTier = "disputed"
)

// VerificationState is the trust summary derived from a claim's confidence
// and provenance, or set by an explicit confirm/correct/dispute action.
type VerificationState struct {
	Tier       VerificationTier `json:"tier"`
	Confidence float64          `json:"confidence"`
	VerifiedAt *time.Time       `json:"verified_at,omitempty"`
	VerifiedBy string           `json:"verified_by,omitempty"`
}
