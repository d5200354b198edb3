// Package verify maps claims to verification tiers and implements the
// confirm/correct/dispute operations. Every operation returns a derived
// claim with the prior state appended to its history; inputs are never
// mutated.
package verify

import (
	"time"

	"github.com/reelmatch/match-cli/internal/model"
)

const (
	// AutoHighThreshold is the confidence at/above which an automatic claim
	// earns the auto_high tier.
	AutoHighThreshold = 85.0
	// ConfirmBonus is added to confidence on confirmation, capped at 100.
	ConfirmBonus = 10.0
	// CorrectedConfidence is the confidence assigned to a human correction.
	CorrectedConfidence = 95.0
)

// TierOf resolves the trust tier for a confidence/provenance pair.
// Provenance overrides are absolute: a brand-verified claim is brand tier
// even at low numeric confidence.
func TierOf(confidence float64, provenance model.Provenance) model.VerificationTier {
	switch provenance {
	case model.ProvenanceBrandVerified:
		return model.TierBrandVerified
	case model.ProvenanceCreatorConfirmed:
		return model.TierCreatorConfirmed
	case model.ProvenanceDisputed:
		return model.TierDisputed
	}
	if confidence >= AutoHighThreshold {
		return model.TierAutoHigh
	}
	return model.TierAuto
}

// StateOf derives the full verification state from a claim.
func StateOf(c model.AttributeClaim) model.VerificationState {
	return model.VerificationState{
		Tier:       TierOf(c.Confidence, c.Provenance),
		Confidence: c.Confidence,
		VerifiedAt: c.VerifiedAt,
		VerifiedBy: c.VerifiedBy,
	}
}

// Confirm returns a new claim with the given provenance, a confidence bonus
// (capped at 100), and a verification stamp. The prior state is appended to
// the new claim's history.
func Confirm[T any](c model.Claim[T], provenance model.Provenance, actor string) model.Claim[T] {
	now := time.Now().UTC()
	next := c
	next.History = appendRevision(c.History, c.Snapshot("confirmed", actor, now))
	next.Provenance = provenance
	next.Confidence = min100(c.Confidence + ConfirmBonus)
	next.VerifiedAt = &now
	next.VerifiedBy = actor
	return next
}

// Correct returns a new claim carrying the corrected value at the fixed
// human-certainty confidence, provenance user_corrected. The prior value,
// confidence, provenance, and reason are appended to history.
func Correct[T any](c model.Claim[T], newValue T, actor, reason string) model.Claim[T] {
	now := time.Now().UTC()
	next := c
	next.History = appendRevision(c.History, c.Snapshot(reason, actor, now))
	next.Value = newValue
	next.Provenance = model.ProvenanceUserCorrected
	next.Confidence = CorrectedConfidence
	next.VerifiedAt = &now
	next.VerifiedBy = actor
	return next
}

// Dispute returns a new claim marked disputed. Confidence is preserved so
// the original belief strength remains visible during resolution.
func Dispute[T any](c model.Claim[T], actor, reason string) model.Claim[T] {
	now := time.Now().UTC()
	next := c
	next.History = appendRevision(c.History, c.Snapshot(reason, actor, now))
	next.Provenance = model.ProvenanceDisputed
	next.VerifiedAt = &now
	next.VerifiedBy = actor
	return next
}

// appendRevision copies the history before appending so the input claim's
// slice is never shared with the derived claim.
func appendRevision[T any](history []model.Revision[T], rev model.Revision[T]) []model.Revision[T] {
	out := make([]model.Revision[T], 0, len(history)+1)
	out = append(out, history...)
	return append(out, rev)
}

func min100(f float64) float64 {
	if f > 100 {
		return 100
	}
	return f
}
